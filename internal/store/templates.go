package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gavel-sh/gavel/internal/canonical"
	"github.com/gavel-sh/gavel/internal/domain/decision"
	"github.com/gavel-sh/gavel/internal/domain/policy"
	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// StoredTemplate is a template with its storage metadata.
type StoredTemplate struct {
	Template  policy.Template
	Digest    string
	CreatedAt time.Time
	CreatedBy decision.Actor
}

// CreateTemplate persists a template and its TEMPLATE_CREATED event in one
// transaction. Templates are immutable: creating a second template with the
// same name is a conflict, not an update.
func (s *Store) CreateTemplate(ctx context.Context, t policy.Template, actor decision.Actor) (StoredTemplate, error) {
	const op = "store.CreateTemplate"

	exists, err := s.TemplateExists(ctx, t.Name)
	if err != nil {
		return StoredTemplate{}, err
	}
	if exists {
		return StoredTemplate{}, gerrors.Conflict(op, fmt.Sprintf("template already exists: %s", t.Name))
	}

	digest, err := t.Digest()
	if err != nil {
		return StoredTemplate{}, gerrors.StoreWrap(err, op, "failed to compute template digest")
	}

	policyJSON, err := canonical.Marshal(t.Policy.ToMap())
	if err != nil {
		return StoredTemplate{}, gerrors.StoreWrap(err, op, "failed to encode policy")
	}

	payload := decision.NewTemplateCreatedPayload(t)
	eventDigest, err := decision.ComputeDigest(decision.EventTemplateCreated, payload)
	if err != nil {
		return StoredTemplate{}, gerrors.StoreWrap(err, op, "failed to compute event digest")
	}
	payloadJSON, err := canonical.Marshal(payload)
	if err != nil {
		return StoredTemplate{}, gerrors.StoreWrap(err, op, "failed to encode event payload")
	}

	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StoredTemplate{}, gerrors.StoreWrap(err, op, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO templates
		   (name, description, policy_json, digest, created_at, created_by_type, created_by_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Description, string(policyJSON), digest, formatTS(now),
		string(actor.Type), actor.ID,
	)
	if err != nil {
		return StoredTemplate{}, gerrors.Wrapf(err, gerrors.KindConflict, op, "template already exists: %s", t.Name)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO template_events
		   (event_id, template_name, seq, event_type, actor_type, actor_id, payload_json, digest, ts)
		 VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		fmt.Sprintf("tev_%s_0", t.Name), t.Name, string(decision.EventTemplateCreated),
		string(actor.Type), actor.ID, string(payloadJSON), eventDigest, formatTS(now),
	)
	if err != nil {
		return StoredTemplate{}, gerrors.StoreWrap(err, op, "failed to insert template event")
	}

	if err := tx.Commit(); err != nil {
		return StoredTemplate{}, gerrors.StoreWrap(err, op, "failed to commit")
	}

	s.logger.Debug("template created", "name", t.Name, "digest", digest)

	return StoredTemplate{Template: t, Digest: digest, CreatedAt: now, CreatedBy: actor}, nil
}

// GetTemplate returns a template by name.
func (s *Store) GetTemplate(ctx context.Context, name string) (StoredTemplate, error) {
	const op = "store.GetTemplate"

	row := s.db.QueryRowContext(ctx,
		`SELECT name, description, policy_json, digest, created_at, created_by_type, created_by_id
		   FROM templates WHERE name = ?`,
		name,
	)

	st, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredTemplate{}, gerrors.NotFound(op, fmt.Sprintf("template not found: %s", name))
	}
	if err != nil {
		return StoredTemplate{}, gerrors.StoreWrap(err, op, "failed to load template")
	}
	return st, nil
}

// TemplateExists reports whether a template with the given name exists.
func (s *Store) TemplateExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM templates WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, gerrors.StoreWrap(err, "store.TemplateExists", "failed to query template")
	}
	return true, nil
}

// ListTemplates returns templates ordered by creation time descending.
// labelFilter, when non-empty, keeps only templates carrying that label.
func (s *Store) ListTemplates(ctx context.Context, labelFilter string) ([]StoredTemplate, error) {
	const op = "store.ListTemplates"

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description, policy_json, digest, created_at, created_by_type, created_by_id
		   FROM templates ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, gerrors.StoreWrap(err, op, "failed to query templates")
	}
	defer rows.Close()

	var templates []StoredTemplate
	for rows.Next() {
		st, err := scanTemplate(rows)
		if err != nil {
			return nil, gerrors.StoreWrap(err, op, "failed to scan template row")
		}
		if labelFilter != "" && !hasLabel(st.Template.Policy.Labels(), labelFilter) {
			continue
		}
		templates = append(templates, st)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.StoreWrap(err, op, "failed to iterate template rows")
	}

	return templates, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (StoredTemplate, error) {
	var (
		name, description, policyJSON, digest string
		createdAt, actorType, actorID         string
	)
	if err := row.Scan(&name, &description, &policyJSON, &digest, &createdAt, &actorType, &actorID); err != nil {
		return StoredTemplate{}, err
	}

	var policyMap map[string]any
	if err := json.Unmarshal([]byte(policyJSON), &policyMap); err != nil {
		return StoredTemplate{}, err
	}
	pol, err := policy.FromMap(policyMap)
	if err != nil {
		return StoredTemplate{}, err
	}

	t, err := policy.NewTemplate(name, description, pol)
	if err != nil {
		return StoredTemplate{}, err
	}

	ts, err := parseTS(createdAt)
	if err != nil {
		return StoredTemplate{}, err
	}

	return StoredTemplate{
		Template:  t,
		Digest:    digest,
		CreatedAt: ts,
		CreatedBy: decision.Actor{Type: decision.ActorType(actorType), ID: actorID},
	}, nil
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}
