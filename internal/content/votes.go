package content

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/events"
	"github.com/latticesocial/lattice/internal/ratelimit"
	"github.com/latticesocial/lattice/internal/store"
)

// VoteResult is what a cast reports back: the recorded value, whether state
// changed, and whether the author's ledger moved.
type VoteResult struct {
	PostID  string
	Value   int
	Changed bool
	// EXPApplied is false for no-op recasts and for voters under the gate.
	EXPApplied bool
}

// Vote upserts the caller's vote on a post. Re-casting the same value is a
// no-op; a flipped vote applies only the new value's EXP effect. Votes spend
// the comment rate budget.
func (s *Service) Vote(ctx context.Context, voterDID, postID string, value int) (*VoteResult, ratelimit.Status, error) {
	var status ratelimit.Status

	if value != 1 && value != -1 {
		return nil, status, apperr.New(apperr.CodeValidation, "vote value must be +1 or -1")
	}

	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, status, err
	}
	if post == nil || post.Deleted {
		return nil, status, apperr.New(apperr.CodeNotFound, "post not found")
	}
	if post.AuthorDID == voterDID {
		return nil, status, apperr.New(apperr.CodeForbidden, "cannot vote on your own post")
	}

	level, err := s.ledger.LevelOf(ctx, voterDID)
	if err != nil {
		return nil, status, err
	}
	status, err = s.limiter.Check(ctx, voterDID, level, ratelimit.ActionComment)
	if err != nil {
		return nil, status, err
	}
	if !status.Allowed {
		s.metrics.RecordRateLimitDenied(string(ratelimit.ActionComment))
		return nil, status, rateLimitErr(status)
	}

	outcome, err := s.store.CastVote(ctx, &store.Vote{
		ID:        s.ids.NewID(),
		PostID:    postID,
		VoterDID:  voterDID,
		Value:     value,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, status, err
	}

	result := &VoteResult{PostID: postID, Value: value, Changed: outcome.Changed}
	if !outcome.Changed {
		return result, status, nil
	}

	if err := s.limiter.Record(ctx, voterDID, ratelimit.ActionComment); err != nil {
		s.log.WithError(err).Error("rate-limit record failed")
	}
	if status.Remaining > 0 {
		status.Remaining--
	}

	applied, err := s.ledger.ApplyVoteEffect(ctx, voterDID, post.AuthorDID, postID, value, post.ParentID != nil)
	if err != nil {
		s.log.WithError(err).Error("vote exp effect failed")
	} else {
		result.EXPApplied = applied
	}

	s.bus.Publish(events.TypeVoteCast, map[string]interface{}{
		"postId":   postID,
		"voterDid": voterDID,
		"value":    value,
	})
	s.log.WithFields(logrus.Fields{
		"post":  postID,
		"voter": voterDID,
		"value": value,
	}).Debug("vote cast")
	return result, status, nil
}
