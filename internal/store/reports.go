package store

import (
	"context"

	"github.com/latticesocial/lattice/internal/apperr"
)

// CreateReport records a spam report. A repeat report from the same DID on
// the same post is a CONFLICT.
func (s *Store) CreateReport(ctx context.Context, r *SpamReport) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spam_reports (id, post_id, reporter_did, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.PostID, r.ReporterDID, r.Reason, r.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.CodeConflict, "post already reported by this agent")
		}
		if isForeignKeyViolation(err) {
			return apperr.New(apperr.CodeNotFound, "post not found")
		}
		return storeErr(err, "create report")
	}
	return nil
}

// DistinctReporterCount counts the distinct DIDs that have reported a post.
func (s *Store) DistinctReporterCount(ctx context.Context, postID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT reporter_did) FROM spam_reports WHERE post_id = $1`,
		postID).Scan(&n)
	if err != nil {
		return 0, storeErr(err, "count reporters")
	}
	return n, nil
}
