package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/latticesocial/lattice/internal/apperr"
)

// CreateAgent inserts a new agent and its zero balance in one transaction.
// A DID or username collision surfaces as CONFLICT.
func (s *Store) CreateAgent(ctx context.Context, a *Agent) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO agents (did, username, public_key, created_at) VALUES ($1, $2, $3, $4)`,
			a.DID, a.Username, a.PublicKey, a.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO exp_balances (did, total, updated_at) VALUES ($1, 0, $2)
			 ON CONFLICT (did) DO NOTHING`,
			a.DID, a.CreatedAt)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.CodeConflict, "did or username already registered")
		}
		return storeErr(err, "create agent")
	}
	return nil
}

// GetAgent returns the agent for a DID, or nil when unregistered.
func (s *Store) GetAgent(ctx context.Context, did string) (*Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx,
		`SELECT did, username, public_key, created_at, attested_by, attested_at
		 FROM agents WHERE did = $1`, did).
		Scan(&a.DID, &a.Username, &a.PublicKey, &a.CreatedAt, &a.AttestedBy, &a.AttestedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "get agent")
	}
	return &a, nil
}

// UsernameTaken reports whether a username is already claimed.
func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM agents WHERE username = $1`, username).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storeErr(err, "check username")
	}
	return true, nil
}

// CreateFollow inserts a follow edge. Reinsertion is a no-op; the bool
// reports whether a new edge was created.
func (s *Store) CreateFollow(ctx context.Context, follower, followed string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO follows (follower_did, followed_did, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (follower_did, followed_did) DO NOTHING`,
		follower, followed, at)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, apperr.New(apperr.CodeNotFound, "agent not found")
		}
		return false, storeErr(err, "create follow")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(err, "create follow")
	}
	return n > 0, nil
}

// DeleteFollow removes a follow edge; the bool reports whether it existed.
func (s *Store) DeleteFollow(ctx context.Context, follower, followed string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_did = $1 AND followed_did = $2`,
		follower, followed)
	if err != nil {
		return false, storeErr(err, "delete follow")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(err, "delete follow")
	}
	return n > 0, nil
}

// FollowAgent is one edge endpoint joined with its agent row, as returned by
// the follower/following listings.
type FollowAgent struct {
	DID        string
	Username   *string
	FollowedAt time.Time
}

// ListFollowers pages over the agents following did, newest edge first.
func (s *Store) ListFollowers(ctx context.Context, did string, limit, offset int) ([]FollowAgent, int, error) {
	return s.listFollowEdges(ctx,
		`SELECT f.follower_did, a.username, f.created_at
		 FROM follows f JOIN agents a ON a.did = f.follower_did
		 WHERE f.followed_did = $1
		 ORDER BY f.created_at DESC, f.follower_did LIMIT $2 OFFSET $3`,
		`SELECT COUNT(*) FROM follows WHERE followed_did = $1`,
		did, limit, offset)
}

// ListFollowing pages over the agents did follows, newest edge first.
func (s *Store) ListFollowing(ctx context.Context, did string, limit, offset int) ([]FollowAgent, int, error) {
	return s.listFollowEdges(ctx,
		`SELECT f.followed_did, a.username, f.created_at
		 FROM follows f JOIN agents a ON a.did = f.followed_did
		 WHERE f.follower_did = $1
		 ORDER BY f.created_at DESC, f.followed_did LIMIT $2 OFFSET $3`,
		`SELECT COUNT(*) FROM follows WHERE follower_did = $1`,
		did, limit, offset)
}

func (s *Store) listFollowEdges(ctx context.Context, query, countQuery, did string, limit, offset int) ([]FollowAgent, int, error) {
	rows, err := s.db.QueryContext(ctx, query, did, limit, offset)
	if err != nil {
		return nil, 0, storeErr(err, "list follow edges")
	}
	defer rows.Close()

	edges := make([]FollowAgent, 0, limit)
	for rows.Next() {
		var e FollowAgent
		if err := rows.Scan(&e.DID, &e.Username, &e.FollowedAt); err != nil {
			return nil, 0, storeErr(err, "scan follow edge")
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storeErr(err, "list follow edges")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, did).Scan(&total); err != nil {
		return nil, 0, storeErr(err, "count follow edges")
	}
	return edges, total, nil
}

// GetAttestation returns the attestation recorded for an agent, or nil.
func (s *Store) GetAttestation(ctx context.Context, agentDID string) (*Attestation, error) {
	var a Attestation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_did, attestor_did, signature, created_at
		 FROM attestations WHERE agent_did = $1`, agentDID).
		Scan(&a.ID, &a.AgentDID, &a.AttestorDID, &a.Signature, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "get attestation")
	}
	return &a, nil
}

// CountAttestationsBy counts attestations issued by an attestor since a
// point in time; the identity service holds issuers to 5 per rolling 30 days.
func (s *Store) CountAttestationsBy(ctx context.Context, attestorDID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attestations WHERE attestor_did = $1 AND created_at >= $2`,
		attestorDID, since).Scan(&n)
	if err != nil {
		return 0, storeErr(err, "count attestations")
	}
	return n, nil
}

// AttestAgent records an attestation atomically: the attestation row, the
// mirror columns on the agent, the reward delta and the balance update all
// land or none do. A second attestation of the same agent is a CONFLICT.
func (s *Store) AttestAgent(ctx context.Context, att *Attestation, reward *EXPDelta) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO attestations (id, agent_did, attestor_did, signature, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			att.ID, att.AgentDID, att.AttestorDID, att.Signature, att.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE agents SET attested_by = $2, attested_at = $3 WHERE did = $1`,
			att.AgentDID, att.AttestorDID, att.CreatedAt)
		if err != nil {
			return err
		}
		return applyDeltaTx(ctx, tx, reward, KarmaNone)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.CodeConflict, "agent is already attested")
		}
		return storeErr(err, "attest agent")
	}
	return nil
}
