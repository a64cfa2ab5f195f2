package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gavel-sh/gavel/internal/canonical"
	"github.com/gavel-sh/gavel/internal/domain/decision"
	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// DecisionMeta is a decision listing row.
type DecisionMeta struct {
	DecisionID string
	CreatedAt  string
	EventCount int
}

// CreateDecision registers a decision and appends its DECISION_CREATED event
// in one transaction.
func (s *Store) CreateDecision(ctx context.Context, decisionID string, actor decision.Actor, payload *decision.DecisionCreatedPayload) (decision.Event, error) {
	const op = "store.CreateDecision"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decision.Event{}, gerrors.StoreWrap(err, op, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := s.now()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO decisions(decision_id, created_at) VALUES (?, ?)",
		decisionID, formatTS(now),
	)
	if err != nil {
		return decision.Event{}, gerrors.Wrapf(err, gerrors.KindConflict, op, "decision %s already exists", decisionID)
	}

	event, err := s.appendInTx(ctx, tx, decisionID, actor, payload)
	if err != nil {
		return decision.Event{}, err
	}

	if err := tx.Commit(); err != nil {
		return decision.Event{}, gerrors.StoreWrap(err, op, "failed to commit")
	}

	s.logger.Debug("decision created", "decision_id", decisionID, "actor", actor.ID)
	return event, nil
}

// Append appends one event to a decision's log. The sequence number is
// assigned inside the transaction, so concurrent appenders serialize on the
// unique (decision_id, seq) index rather than racing.
func (s *Store) Append(ctx context.Context, decisionID string, actor decision.Actor, payload decision.Payload) (decision.Event, error) {
	const op = "store.Append"

	exists, err := s.decisionExists(ctx, decisionID)
	if err != nil {
		return decision.Event{}, err
	}
	if !exists {
		return decision.Event{}, gerrors.NotFound(op, fmt.Sprintf("decision not found: %s", decisionID))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decision.Event{}, gerrors.StoreWrap(err, op, "failed to begin transaction")
	}
	defer tx.Rollback()

	event, err := s.appendInTx(ctx, tx, decisionID, actor, payload)
	if err != nil {
		return decision.Event{}, err
	}

	if err := tx.Commit(); err != nil {
		return decision.Event{}, gerrors.StoreWrap(err, op, "failed to commit")
	}

	s.logger.Debug("event appended",
		"decision_id", decisionID,
		"seq", event.Seq,
		"type", event.Type,
	)
	return event, nil
}

// appendInTx writes one event row within an open transaction.
func (s *Store) appendInTx(ctx context.Context, tx *sql.Tx, decisionID string, actor decision.Actor, payload decision.Payload) (decision.Event, error) {
	const op = "store.append"

	var seq int
	err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), -1) + 1 FROM decision_events WHERE decision_id = ?",
		decisionID,
	).Scan(&seq)
	if err != nil {
		return decision.Event{}, gerrors.StoreWrap(err, op, "failed to compute next sequence")
	}

	digest, err := decision.ComputeDigest(payload.EventType(), payload)
	if err != nil {
		return decision.Event{}, gerrors.StoreWrap(err, op, "failed to compute event digest")
	}

	payloadJSON, err := canonical.Marshal(payload)
	if err != nil {
		return decision.Event{}, gerrors.StoreWrap(err, op, "failed to encode payload")
	}

	event := decision.Event{
		DecisionID: decisionID,
		Seq:        seq,
		Type:       payload.EventType(),
		Timestamp:  s.now(),
		Actor:      actor,
		Payload:    payload,
		Digest:     digest,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO decision_events
		   (event_id, decision_id, seq, event_type, actor_type, actor_id, payload_json, digest, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID(), decisionID, seq, string(event.Type),
		string(actor.Type), actor.ID, string(payloadJSON), digest, formatTS(event.Timestamp),
	)
	if err != nil {
		return decision.Event{}, gerrors.StoreWrap(err, op, "failed to insert event")
	}

	return event, nil
}

// GetEvents returns a decision's full event log in sequence order.
func (s *Store) GetEvents(ctx context.Context, decisionID string) ([]decision.Event, error) {
	const op = "store.GetEvents"

	exists, err := s.decisionExists(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, gerrors.NotFound(op, fmt.Sprintf("decision not found: %s", decisionID))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT decision_id, seq, event_type, actor_type, actor_id, payload_json, digest, ts
		   FROM decision_events
		  WHERE decision_id = ?
		  ORDER BY seq ASC`,
		decisionID,
	)
	if err != nil {
		return nil, gerrors.StoreWrap(err, op, "failed to query events")
	}
	defer rows.Close()

	var events []decision.Event
	for rows.Next() {
		var (
			e                  decision.Event
			eventType          string
			actorType, actorID string
			payloadJSON, ts    string
		)
		if err := rows.Scan(&e.DecisionID, &e.Seq, &eventType, &actorType, &actorID, &payloadJSON, &e.Digest, &ts); err != nil {
			return nil, gerrors.StoreWrap(err, op, "failed to scan event row")
		}

		e.Type = decision.EventType(eventType)
		e.Actor = decision.Actor{Type: decision.ActorType(actorType), ID: actorID}

		e.Timestamp, err = parseTS(ts)
		if err != nil {
			return nil, gerrors.StoreWrap(err, op, "failed to parse event timestamp")
		}

		e.Payload, err = decision.DecodePayload(e.Type, []byte(payloadJSON))
		if err != nil {
			return nil, err
		}

		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.StoreWrap(err, op, "failed to iterate event rows")
	}

	return events, nil
}

// LoadDecision replays a decision's event log into its current projection.
func (s *Store) LoadDecision(ctx context.Context, decisionID string) (*decision.Decision, error) {
	events, err := s.GetEvents(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	return decision.Replay(decisionID, events), nil
}

// ListDecisions returns decision metadata ordered by creation time descending.
func (s *Store) ListDecisions(ctx context.Context) ([]DecisionMeta, error) {
	const op = "store.ListDecisions"

	rows, err := s.db.QueryContext(ctx,
		`SELECT d.decision_id, d.created_at, COUNT(e.seq)
		   FROM decisions d
		   LEFT JOIN decision_events e ON e.decision_id = d.decision_id
		  GROUP BY d.decision_id
		  ORDER BY d.created_at DESC`,
	)
	if err != nil {
		return nil, gerrors.StoreWrap(err, op, "failed to query decisions")
	}
	defer rows.Close()

	var metas []DecisionMeta
	for rows.Next() {
		var m DecisionMeta
		if err := rows.Scan(&m.DecisionID, &m.CreatedAt, &m.EventCount); err != nil {
			return nil, gerrors.StoreWrap(err, op, "failed to scan decision row")
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.StoreWrap(err, op, "failed to iterate decision rows")
	}

	return metas, nil
}

// IntegrityViolation describes one event whose stored digest does not match
// its recomputed content digest.
type IntegrityViolation struct {
	EventID        string
	Seq            int
	StoredDigest   string
	ComputedDigest string
}

// VerifyIntegrity recomputes the content digest of every event in a decision's
// log and reports mismatches. An empty result means the log is intact.
func (s *Store) VerifyIntegrity(ctx context.Context, decisionID string) ([]IntegrityViolation, error) {
	events, err := s.GetEvents(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	var violations []IntegrityViolation
	for _, e := range events {
		computed, err := decision.ComputeDigest(e.Type, e.Payload)
		if err != nil {
			return nil, gerrors.StoreWrap(err, "store.VerifyIntegrity", "failed to recompute digest")
		}
		if computed != e.Digest {
			violations = append(violations, IntegrityViolation{
				EventID:        e.EventID(),
				Seq:            e.Seq,
				StoredDigest:   e.Digest,
				ComputedDigest: computed,
			})
		}
	}
	return violations, nil
}

func (s *Store) decisionExists(ctx context.Context, decisionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM decisions WHERE decision_id = ?", decisionID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, gerrors.StoreWrap(err, "store.decisionExists", "failed to query decision")
	}
	return true, nil
}
