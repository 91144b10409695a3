package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/ir"
)

// GetModel returns one model with its stored status applied.
func (s *Store) GetModel(ctx context.Context, id string) (compiler.RawModel, error) {
	var source, status string
	err := s.db.QueryRowContext(ctx, `SELECT source, status FROM models WHERE id = ?`, id).Scan(&source, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return compiler.RawModel{}, notFound(id)
	}
	if err != nil {
		return compiler.RawModel{}, fmt.Errorf("get model %s: %w", id, err)
	}
	return UnmarshalModel(source, ir.Status(status))
}

// ListModels returns the metadata of every stored model, ordered by id.
func (s *Store) ListModels(ctx context.Context) ([]ModelRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, status, hash, revision
		FROM models
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	records := []ModelRecord{}
	for rows.Next() {
		var rec ModelRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.Label, &status, &rec.Hash, &rec.Revision); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		rec.Status = ir.Status(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return records, nil
}

// ListEnabledModels returns every enabled model, ordered by id. It
// implements index.ModelSource.
func (s *Store) ListEnabledModels(ctx context.Context) ([]compiler.RawModel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source
		FROM models
		WHERE status = 'enabled'
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list enabled models: %w", err)
	}
	defer rows.Close()

	var models []compiler.RawModel
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		raw, err := UnmarshalModel(source, ir.StatusEnabled)
		if err != nil {
			return nil, err
		}
		models = append(models, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return models, nil
}

// ReportFilter narrows ReadReports. Zero fields match everything.
type ReportFilter struct {
	ModelID    string
	DispatchID string
	State      ir.TerminalState
	AfterSeq   int64
	Limit      int
}

// ReadReports returns stored reports in execution order.
// Results are ordered deterministically: ORDER BY seq ASC, invocation_id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadReports(ctx context.Context, f ReportFilter) ([]ir.InvocationReport, error) {
	var where []string
	var args []any
	if f.ModelID != "" {
		where = append(where, "model_id = ?")
		args = append(args, f.ModelID)
	}
	if f.DispatchID != "" {
		where = append(where, "dispatch_id = ?")
		args = append(args, f.DispatchID)
	}
	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(f.State))
	}
	if f.AfterSeq > 0 {
		where = append(where, "seq > ?")
		args = append(args, f.AfterSeq)
	}

	query := `
		SELECT invocation_id, dispatch_id, host_event_id, model_id, event_node_id,
		       state, reason, nodes_visited, depth, seq
		FROM invocation_reports`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY seq ASC, invocation_id COLLATE BINARY ASC"
	if f.Limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read reports: %w", err)
	}
	defer rows.Close()

	reports := []ir.InvocationReport{}
	for rows.Next() {
		var r ir.InvocationReport
		var state string
		if err := rows.Scan(
			&r.InvocationID,
			&r.DispatchID,
			&r.HostEventID,
			&r.ModelID,
			&r.EventNodeID,
			&state,
			&r.Reason,
			&r.NodesVisited,
			&r.Depth,
			&r.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.State = ir.TerminalState(state)
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}

// MaxSeq returns the highest stored report seq, or 0 for an empty log. The
// engine clock resumes from it so that Seq stays monotonic across restarts.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM invocation_reports`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}
