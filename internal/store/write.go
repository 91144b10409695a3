package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/ir"
)

// PutModel inserts or replaces a model. Writing identical content is a
// no-op: no revision bump and no change notification.
func (s *Store) PutModel(ctx context.Context, raw compiler.RawModel) (bool, error) {
	data, rec, err := MarshalModel(raw)
	if err != nil {
		return false, fmt.Errorf("put model: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("put model: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var oldHash string
	err = tx.QueryRowContext(ctx, `SELECT hash FROM models WHERE id = ?`, rec.ID).Scan(&oldHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("put model %s: %w", rec.ID, err)
	case oldHash == rec.Hash:
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO models (id, label, status, source, hash, revision)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			status = excluded.status,
			source = excluded.source,
			hash = excluded.hash,
			revision = models.revision + 1
	`, rec.ID, rec.Label, string(rec.Status), data, rec.Hash)
	if err != nil {
		return false, fmt.Errorf("put model %s: %w", rec.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("put model %s: commit: %w", rec.ID, err)
	}

	s.Notify(Change{Kind: ChangePut, ModelID: rec.ID})
	return true, nil
}

// SetStatus enables or disables a model.
func (s *Store) SetStatus(ctx context.Context, id string, status ir.Status) error {
	if _, err := NormalizeStatus(string(status)); err != nil || status == "" {
		return fmt.Errorf("set status %s: invalid status %q", id, status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set status %s: begin tx: %w", id, err)
	}
	defer tx.Rollback()

	var source string
	var current string
	err = tx.QueryRowContext(ctx, `SELECT source, status FROM models WHERE id = ?`, id).Scan(&source, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(id)
	}
	if err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	if current == string(status) {
		return nil
	}

	data, hash, err := withStatus(source, status)
	if err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE models SET status = ?, source = ?, hash = ?, revision = revision + 1
		WHERE id = ?
	`, string(status), data, hash, id); err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set status %s: commit: %w", id, err)
	}

	s.Notify(Change{Kind: ChangeStatus, ModelID: id})
	return nil
}

// DeleteModel removes a model. Deleting a missing model returns ErrNotFound.
func (s *Store) DeleteModel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	if n == 0 {
		return notFound(id)
	}
	s.Notify(Change{Kind: ChangeDelete, ModelID: id})
	return nil
}

// WriteReports appends invocation reports in one transaction.
// Uses ON CONFLICT(invocation_id) DO NOTHING for idempotency - a report
// written twice is stored once.
func (s *Store) WriteReports(ctx context.Context, reports []ir.InvocationReport) error {
	if len(reports) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write reports: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO invocation_reports
		(invocation_id, dispatch_id, host_event_id, model_id, event_node_id, state, reason, nodes_visited, depth, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(invocation_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write reports: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range reports {
		if _, err := stmt.ExecContext(ctx,
			r.InvocationID,
			r.DispatchID,
			r.HostEventID,
			r.ModelID,
			r.EventNodeID,
			string(r.State),
			r.Reason,
			r.NodesVisited,
			r.Depth,
			r.Seq,
		); err != nil {
			return fmt.Errorf("write report %s: %w", r.InvocationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write reports: commit: %w", err)
	}
	return nil
}
