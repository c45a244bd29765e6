package spam

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/events"
	"github.com/latticesocial/lattice/internal/exp"
	"github.com/latticesocial/lattice/internal/ids"
	"github.com/latticesocial/lattice/internal/metrics"
	"github.com/latticesocial/lattice/internal/ratelimit"
	"github.com/latticesocial/lattice/internal/store"
)

// Report reasons accepted on the wire.
var reportReasons = map[string]bool{
	"spam":           true,
	"harassment":     true,
	"misinformation": true,
	"other":          true,
}

// ReportStore is the slice of the store the consensus service consumes.
type ReportStore interface {
	GetPost(ctx context.Context, id string) (*store.Post, error)
	CreateReport(ctx context.Context, r *store.SpamReport) error
	DistinctReporterCount(ctx context.Context, postID string) (int, error)
}

// ReportLedger applies the consensus penalty.
type ReportLedger interface {
	LevelOf(ctx context.Context, did string) (int, error)
	ConfirmSpam(ctx context.Context, authorDID, postID string) (bool, error)
}

// ReportLimiter meters report submissions; reports spend the comment budget.
type ReportLimiter interface {
	Check(ctx context.Context, did string, level int, action ratelimit.Action) (ratelimit.Status, error)
	Record(ctx context.Context, did string, action ratelimit.Action) error
}

// ReportService records spam reports and fires the one-time consensus
// penalty when three distinct reporters agree.
type ReportService struct {
	store   ReportStore
	ledger  ReportLedger
	limiter ReportLimiter
	ids     ids.Generator
	bus     *events.Bus
	metrics *metrics.Metrics
	log     *logrus.Entry
	now     func() time.Time
}

// NewReportService builds the consensus service.
func NewReportService(s ReportStore, ledger ReportLedger, lim ReportLimiter, gen ids.Generator, bus *events.Bus, m *metrics.Metrics, log *logrus.Entry) *ReportService {
	return &ReportService{
		store:   s,
		ledger:  ledger,
		limiter: lim,
		ids:     gen,
		bus:     bus,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// ReportResult is one recorded report plus the consensus state after it.
type ReportResult struct {
	Report    *store.SpamReport
	Reporters int
	// Confirmed is true only on the report that crossed the threshold.
	Confirmed bool
}

// Report files a report against a post. Duplicate (post, reporter) pairs are
// a CONFLICT; authors cannot report themselves. On the third distinct
// reporter the author takes the one-time spam_confirmed penalty.
func (s *ReportService) Report(ctx context.Context, reporterDID, postID, reason string) (*ReportResult, ratelimit.Status, error) {
	var status ratelimit.Status

	if !reportReasons[reason] {
		return nil, status, apperr.New(apperr.CodeValidation, "reason must be one of spam, harassment, misinformation, other")
	}

	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, status, err
	}
	if post == nil || post.Deleted {
		return nil, status, apperr.New(apperr.CodeNotFound, "post not found")
	}
	if post.AuthorDID == reporterDID {
		return nil, status, apperr.New(apperr.CodeForbidden, "cannot report your own post")
	}

	level, err := s.ledger.LevelOf(ctx, reporterDID)
	if err != nil {
		return nil, status, err
	}
	status, err = s.limiter.Check(ctx, reporterDID, level, ratelimit.ActionComment)
	if err != nil {
		return nil, status, err
	}
	if !status.Allowed {
		s.metrics.RecordRateLimitDenied(string(ratelimit.ActionComment))
		return nil, status, apperr.New(apperr.CodeRateLimited, "rate limit exceeded").
			WithDetail("limit", status.Limit).
			WithDetail("remaining", status.Remaining).
			WithDetail("resetAt", status.ResetAt)
	}

	report := &store.SpamReport{
		ID:          s.ids.NewID(),
		PostID:      postID,
		ReporterDID: reporterDID,
		Reason:      reason,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateReport(ctx, report); err != nil {
		return nil, status, err
	}

	if err := s.limiter.Record(ctx, reporterDID, ratelimit.ActionComment); err != nil {
		s.log.WithError(err).Error("rate-limit record failed")
	}
	if status.Remaining > 0 {
		status.Remaining--
	}

	reporters, err := s.store.DistinctReporterCount(ctx, postID)
	if err != nil {
		return nil, status, err
	}

	result := &ReportResult{Report: report, Reporters: reporters}
	if reporters >= exp.SpamConfirmThreshold {
		applied, err := s.ledger.ConfirmSpam(ctx, post.AuthorDID, postID)
		if err != nil {
			return nil, status, err
		}
		result.Confirmed = applied
		if applied {
			s.bus.Publish(events.TypeReportConfirmed, map[string]interface{}{
				"postId":    postID,
				"authorDid": post.AuthorDID,
				"reporters": reporters,
			})
			s.log.WithFields(logrus.Fields{
				"post":      postID,
				"author":    post.AuthorDID,
				"reporters": reporters,
			}).Info("spam confirmed by reporter consensus")
		}
	}
	return result, status, nil
}
