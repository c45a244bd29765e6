package exp

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/ids"
	"github.com/latticesocial/lattice/internal/metrics"
	"github.com/latticesocial/lattice/internal/store"
)

// LedgerStore is the slice of the store the service consumes.
type LedgerStore interface {
	ApplyDelta(ctx context.Context, d *store.EXPDelta, karma string) error
	GetBalance(ctx context.Context, did string) (*store.EXPBalance, error)
	HasDelta(ctx context.Context, agentDID, reason, sourceID string) (bool, error)
	ListDeltas(ctx context.Context, did, cursor string, limit int) ([]store.EXPDelta, int, error)
}

// Service owns every ledger mutation outside the attestation transaction.
type Service struct {
	store   LedgerStore
	ids     ids.Generator
	metrics *metrics.Metrics
	log     *logrus.Entry
	now     func() time.Time
}

// NewService builds the ledger service.
func NewService(s LedgerStore, gen ids.Generator, m *metrics.Metrics, log *logrus.Entry) *Service {
	return &Service{store: s, ids: gen, metrics: m, log: log, now: time.Now}
}

// Balance returns the balance row for a DID, or nil when none exists.
func (s *Service) Balance(ctx context.Context, did string) (*store.EXPBalance, error) {
	return s.store.GetBalance(ctx, did)
}

// LevelOf resolves a DID's current level; unknown DIDs are level 0.
func (s *Service) LevelOf(ctx context.Context, did string) (int, error) {
	b, err := s.store.GetBalance(ctx, did)
	if err != nil {
		return 0, err
	}
	if b == nil {
		return 0, nil
	}
	return Level(b.Total), nil
}

// History pages the delta log newest-first.
func (s *Service) History(ctx context.Context, did, cursor string, limit int) ([]store.EXPDelta, int, error) {
	return s.store.ListDeltas(ctx, did, cursor, limit)
}

// ApplyVoteEffect moves the author's balance for one cast vote. Voters
// below the gate cause no change. The returned bool reports whether a delta
// was appended.
func (s *Service) ApplyVoteEffect(ctx context.Context, voterDID, authorDID, postID string, value int, isReply bool) (bool, error) {
	voter, err := s.store.GetBalance(ctx, voterDID)
	if err != nil {
		return false, err
	}
	if voter == nil || voter.Total < VoterGate {
		return false, nil
	}

	reason := ReasonUpvoteReceived
	if value < 0 {
		reason = ReasonDownvoteReceived
	}
	karma := store.KarmaPost
	if isReply {
		karma = store.KarmaComment
	}

	if err := s.apply(ctx, authorDID, int64(value), reason, postID, karma); err != nil {
		return false, err
	}
	return true, nil
}

// PenalizeSpamDetected records the -5 admitted-but-flagged penalty.
func (s *Service) PenalizeSpamDetected(ctx context.Context, authorDID, postID string) error {
	return s.apply(ctx, authorDID, SpamDetectedPenalty, ReasonSpamDetected, postID, store.KarmaNone)
}

// ConfirmSpam records the one-time -50 penalty for a post confirmed by
// reporter consensus. The delta log is the idempotency guard: a post that
// already carries the penalty yields (false, nil).
func (s *Service) ConfirmSpam(ctx context.Context, authorDID, postID string) (bool, error) {
	done, err := s.store.HasDelta(ctx, authorDID, ReasonSpamConfirmed, postID)
	if err != nil {
		return false, err
	}
	if done {
		return false, nil
	}
	if err := s.apply(ctx, authorDID, SpamConfirmedPenalty, ReasonSpamConfirmed, postID, store.KarmaNone); err != nil {
		return false, err
	}
	return true, nil
}

// GrantWeeklyActivity records the +10 activity reward. No HTTP surface
// mints this; the maintenance path calls it with the week as sourceID.
func (s *Service) GrantWeeklyActivity(ctx context.Context, did, weekID string) (bool, error) {
	done, err := s.store.HasDelta(ctx, did, ReasonWeeklyActivity, weekID)
	if err != nil {
		return false, err
	}
	if done {
		return false, nil
	}
	if err := s.apply(ctx, did, WeeklyActivityReward, ReasonWeeklyActivity, weekID, store.KarmaNone); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) apply(ctx context.Context, did string, amount int64, reason, sourceID, karma string) error {
	d := &store.EXPDelta{
		ID:        s.ids.NewID(),
		AgentDID:  did,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: s.now(),
	}
	if sourceID != "" {
		d.SourceID = &sourceID
	}
	if err := s.store.ApplyDelta(ctx, d, karma); err != nil {
		return err
	}
	s.metrics.RecordEXPDelta(reason)
	s.log.WithFields(logrus.Fields{
		"did":    did,
		"amount": amount,
		"reason": reason,
		"source": sourceID,
	}).Debug("exp delta applied")
	return nil
}
