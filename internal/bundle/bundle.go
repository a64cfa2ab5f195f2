// Package bundle exports decisions as portable, digest-sealed bundles.
//
// Exports are deterministic: the same event log always produces the same
// bundle with the same canonical digest. Fields outside the canonical
// payload (meta, provenance) never affect the digest.
package bundle

import (
	"fmt"
	"time"

	"github.com/gavel-sh/gavel/internal/canonical"
	"github.com/gavel-sh/gavel/internal/domain/decision"
)

// Version is the bundle format version.
const Version = "1.0.0"

// exportMethodID identifies the export procedure in provenance records.
const exportMethodID = "gavel.export_v1"

// Decision is the bundle's decision header.
type Decision struct {
	DecisionID string `json:"decision_id"`
	Goal       string `json:"goal"`
	Mode       string `json:"mode"`
	CreatedAt  string `json:"created_at"`
	Status     string `json:"status"`
}

// Event is one event in the bundle, in stored order.
type Event struct {
	EventID    string         `json:"event_id"`
	DecisionID string         `json:"decision_id"`
	Seq        int            `json:"seq"`
	Type       string         `json:"type"`
	Payload    any            `json:"payload"`
	Timestamp  string         `json:"ts"`
	Actor      map[string]any `json:"actor"`
	Digest     string         `json:"digest"`
}

// TemplateSnapshot carries the template the decision's policy came from.
type TemplateSnapshot struct {
	Present   bool           `json:"present"`
	Name      string         `json:"name,omitempty"`
	Digest    string         `json:"digest,omitempty"`
	Snapshot  map[string]any `json:"snapshot,omitempty"`
	Overrides map[string]any `json:"overrides,omitempty"`
}

// RouterLink ties the decision to its latest dispatcher run.
type RouterLink struct {
	RunID               string `json:"run_id,omitempty"`
	AdapterID           string `json:"adapter_id,omitempty"`
	RouterRequestDigest string `json:"router_request_digest,omitempty"`
	RouterResultDigest  string `json:"router_result_digest,omitempty"`
	LinkDigest          string `json:"control_router_link_digest,omitempty"`
}

// Integrity seals the bundle's canonical content.
type Integrity struct {
	Alg             string `json:"alg"`
	CanonicalDigest string `json:"canonical_digest"`
}

// ProvenanceRecord describes how the bundle was produced.
type ProvenanceRecord struct {
	ProvID   string   `json:"prov_id"`
	MethodID string   `json:"method_id"`
	Inputs   []string `json:"inputs"`
	Outputs  []string `json:"outputs"`
}

// Provenance is the bundle's provenance section.
type Provenance struct {
	Records []ProvenanceRecord `json:"records"`
}

// Bundle is a complete, portable decision export.
type Bundle struct {
	BundleVersion    string           `json:"bundle_version"`
	Decision         Decision         `json:"decision"`
	Events           []Event          `json:"events"`
	TemplateSnapshot TemplateSnapshot `json:"template_snapshot"`
	RouterLink       RouterLink       `json:"router_link"`
	Integrity        Integrity        `json:"integrity"`
	Provenance       Provenance       `json:"provenance"`
	Meta             map[string]any   `json:"meta"`
}

// computeDigest hashes the canonical payload of the bundle. meta, integrity,
// and provenance are outside the digest boundary.
func computeDigest(d Decision, events []Event, ts TemplateSnapshot, link RouterLink) (string, error) {
	return canonical.Digest(map[string]any{
		"bundle_version":    Version,
		"decision":          d,
		"events":            events,
		"template_snapshot": ts,
		"router_link":       link,
	})
}

// computeLinkDigest hashes the control-to-execution link for independent
// verification of the decision/run pairing.
func computeLinkDigest(decisionID, runID, requestDigest, resultDigest string) (string, error) {
	if runID == "" {
		return "", nil
	}
	return canonical.Digest(map[string]any{
		"decision_id":           decisionID,
		"run_id":                runID,
		"router_request_digest": requestDigest,
		"router_result_digest":  resultDigest,
	})
}

// Export builds a sealed bundle from a replayed decision.
func Export(d *decision.Decision, exportedAt time.Time) (Bundle, error) {
	header := buildDecision(d)
	events := buildEvents(d)
	snapshot := buildTemplateSnapshot(d)

	link, err := buildRouterLink(d)
	if err != nil {
		return Bundle{}, err
	}

	digest, err := computeDigest(header, events, snapshot, link)
	if err != nil {
		return Bundle{}, err
	}

	provID := fmt.Sprintf("prov_%s", canonical.SHA256Hex([]byte(d.ID+":"+digest))[:12])

	return Bundle{
		BundleVersion:    Version,
		Decision:         header,
		Events:           events,
		TemplateSnapshot: snapshot,
		RouterLink:       link,
		Integrity: Integrity{
			Alg:             "sha256",
			CanonicalDigest: "sha256:" + digest,
		},
		Provenance: Provenance{
			Records: []ProvenanceRecord{{
				ProvID:   provID,
				MethodID: exportMethodID,
				Inputs:   []string{"decision:" + d.ID},
				Outputs:  []string{"bundle:sha256:" + digest},
			}},
		},
		Meta: map[string]any{"exported_at": exportedAt.UTC().Format(time.RFC3339Nano)},
	}, nil
}

// Verify recomputes the bundle's canonical digest and compares it with the
// sealed one.
func Verify(b Bundle) (bool, error) {
	digest, err := computeDigest(b.Decision, b.Events, b.TemplateSnapshot, b.RouterLink)
	if err != nil {
		return false, err
	}
	return "sha256:"+digest == b.Integrity.CanonicalDigest, nil
}

func buildDecision(d *decision.Decision) Decision {
	createdAt := ""
	if len(d.Events) > 0 {
		createdAt = d.Events[0].Timestamp.UTC().Format(time.RFC3339Nano)
	}
	mode := string(d.RequestedMode)
	if mode == "" {
		mode = "dry_run"
	}
	return Decision{
		DecisionID: d.ID,
		Goal:       d.Goal,
		Mode:       mode,
		CreatedAt:  createdAt,
		Status:     statusFor(d.State),
	}
}

func statusFor(s decision.State) string {
	switch s {
	case decision.StateDraft:
		return "DRAFT"
	case decision.StatePendingApproval:
		return "PENDING_APPROVAL"
	case decision.StateApproved:
		return "APPROVED"
	case decision.StateExecuting:
		return "EXECUTING"
	case decision.StateCompleted:
		return "COMPLETED"
	case decision.StateFailed:
		return "FAILED"
	default:
		return string(s)
	}
}

func buildEvents(d *decision.Decision) []Event {
	events := make([]Event, 0, len(d.Events))
	for _, e := range d.Events {
		events = append(events, Event{
			EventID:    e.EventID(),
			DecisionID: e.DecisionID,
			Seq:        e.Seq,
			Type:       string(e.Type),
			Payload:    e.Payload,
			Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
			Actor: map[string]any{
				"type": string(e.Actor.Type),
				"id":   e.Actor.ID,
			},
			Digest: e.Digest,
		})
	}
	return events
}

func buildTemplateSnapshot(d *decision.Decision) TemplateSnapshot {
	if d.TemplateRef == nil {
		return TemplateSnapshot{Present: false}
	}
	return TemplateSnapshot{
		Present:   true,
		Name:      d.TemplateRef.Name,
		Digest:    "sha256:" + d.TemplateRef.Digest,
		Snapshot:  d.TemplateRef.Snapshot,
		Overrides: d.TemplateRef.OverridesApplied,
	}
}

func buildRouterLink(d *decision.Decision) (RouterLink, error) {
	rec := d.LatestExecution()
	if rec == nil {
		return RouterLink{}, nil
	}

	runID := ""
	if rec.RunID != nil {
		runID = *rec.RunID
	}

	linkDigest, err := computeLinkDigest(d.ID, runID, rec.RequestDigest, rec.ResponseDigest)
	if err != nil {
		return RouterLink{}, err
	}

	link := RouterLink{
		RunID:     runID,
		AdapterID: rec.AdapterID,
	}
	if rec.RequestDigest != "" {
		link.RouterRequestDigest = "sha256:" + rec.RequestDigest
	}
	if rec.ResponseDigest != "" {
		link.RouterResultDigest = "sha256:" + rec.ResponseDigest
	}
	if linkDigest != "" {
		link.LinkDigest = "sha256:" + linkDigest
	}
	return link, nil
}
