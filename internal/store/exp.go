package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// applyDeltaTx appends a ledger row and folds its amount into the balance.
// Every balance mutation in the system flows through here; reconstructing
// the total from the delta log stays a valid integrity check.
func applyDeltaTx(ctx context.Context, tx *sql.Tx, d *EXPDelta, karma string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO exp_deltas (id, agent_did, amount, reason, source_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.AgentDID, d.Amount, d.Reason, d.SourceID, d.CreatedAt)
	if err != nil {
		return err
	}

	update := `UPDATE exp_balances SET total = total + $2, updated_at = $3`
	switch karma {
	case KarmaPost:
		update += `, post_karma = post_karma + $2`
	case KarmaComment:
		update += `, comment_karma = comment_karma + $2`
	}
	update += ` WHERE did = $1`

	res, err := tx.ExecContext(ctx, update, d.AgentDID, d.Amount, d.CreatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Registration seeds the balance row, so this only fires for ledger
		// writes against pre-schema agents.
		return errors.Errorf("no balance row for %s", d.AgentDID)
	}
	return nil
}

// ApplyDelta runs one ledger mutation in its own transaction. karma selects
// the extra balance column a vote delta also lands in (KarmaNone otherwise).
func (s *Store) ApplyDelta(ctx context.Context, d *EXPDelta, karma string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return applyDeltaTx(ctx, tx, d, karma)
	})
	if err != nil {
		return storeErr(err, "apply exp delta")
	}
	return nil
}

// GetBalance returns the balance row for a DID, or nil when absent.
func (s *Store) GetBalance(ctx context.Context, did string) (*EXPBalance, error) {
	var b EXPBalance
	err := s.db.QueryRowContext(ctx,
		`SELECT did, total, post_karma, comment_karma, updated_at
		 FROM exp_balances WHERE did = $1`, did).
		Scan(&b.DID, &b.Total, &b.PostKarma, &b.CommentKarma, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "get balance")
	}
	return &b, nil
}

// HasDelta reports whether a (agent, reason, source) delta already exists.
// The spam-confirmed penalty uses this as its idempotency guard.
func (s *Store) HasDelta(ctx context.Context, agentDID, reason, sourceID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM exp_deltas WHERE agent_did = $1 AND reason = $2 AND source_id = $3 LIMIT 1`,
		agentDID, reason, sourceID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storeErr(err, "check delta")
	}
	return true, nil
}

// ListDeltas pages the ledger newest-first by delta ID.
func (s *Store) ListDeltas(ctx context.Context, did, cursor string, limit int) ([]EXPDelta, int, error) {
	query := `SELECT id, agent_did, amount, reason, source_id, created_at
	          FROM exp_deltas WHERE agent_did = $1`
	args := []interface{}{did}
	if cursor != "" {
		query += ` AND id < $2 ORDER BY id DESC LIMIT $3`
		args = append(args, cursor, limit)
	} else {
		query += ` ORDER BY id DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, storeErr(err, "list deltas")
	}
	defer rows.Close()

	deltas := make([]EXPDelta, 0, limit)
	for rows.Next() {
		var d EXPDelta
		if err := rows.Scan(&d.ID, &d.AgentDID, &d.Amount, &d.Reason, &d.SourceID, &d.CreatedAt); err != nil {
			return nil, 0, storeErr(err, "scan delta")
		}
		deltas = append(deltas, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storeErr(err, "list deltas")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exp_deltas WHERE agent_did = $1`, did).Scan(&total); err != nil {
		return nil, 0, storeErr(err, "count deltas")
	}
	return deltas, total, nil
}

// SumDeltas recomputes an agent's total from the ledger. Exposed for
// integrity checks; the balance row is the serving copy.
func (s *Store) SumDeltas(ctx context.Context, did string) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM exp_deltas WHERE agent_did = $1`, did).Scan(&sum)
	if err != nil {
		return 0, storeErr(err, "sum deltas")
	}
	return sum, nil
}
