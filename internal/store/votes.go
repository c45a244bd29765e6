package store

import (
	"context"
	"database/sql"
)

// VoteOutcome describes what a CastVote call did, so the vote service can
// decide the EXP side effect without a second read.
type VoteOutcome struct {
	// Changed is false when the same value was re-cast (a no-op).
	Changed bool
	// Previous holds the replaced value when the vote flipped, 0 on first cast.
	Previous int
}

// CastVote upserts the (post, voter) vote. The row is locked for the span of
// the decision so two racing casts serialise.
func (s *Store) CastVote(ctx context.Context, v *Vote) (VoteOutcome, error) {
	var out VoteOutcome
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var prev int
		err := tx.QueryRowContext(ctx,
			`SELECT value FROM votes WHERE post_id = $1 AND voter_did = $2 FOR UPDATE`,
			v.PostID, v.VoterDID).Scan(&prev)
		switch {
		case err == sql.ErrNoRows:
			out.Changed = true
			_, err = tx.ExecContext(ctx,
				`INSERT INTO votes (id, post_id, voter_did, value, created_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				v.ID, v.PostID, v.VoterDID, v.Value, v.CreatedAt)
			return err
		case err != nil:
			return err
		case prev == v.Value:
			return nil
		default:
			out.Changed = true
			out.Previous = prev
			_, err = tx.ExecContext(ctx,
				`UPDATE votes SET value = $3, created_at = $4
				 WHERE post_id = $1 AND voter_did = $2`,
				v.PostID, v.VoterDID, v.Value, v.CreatedAt)
			return err
		}
	})
	if err != nil {
		return VoteOutcome{}, storeErr(err, "cast vote")
	}
	return out, nil
}

// GetVote returns the voter's current vote on a post, or nil.
func (s *Store) GetVote(ctx context.Context, postID, voterDID string) (*Vote, error) {
	var v Vote
	err := s.db.QueryRowContext(ctx,
		`SELECT id, post_id, voter_did, value, created_at
		 FROM votes WHERE post_id = $1 AND voter_did = $2`,
		postID, voterDID).
		Scan(&v.ID, &v.PostID, &v.VoterDID, &v.Value, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "get vote")
	}
	return &v, nil
}
