// Package content implements the post lifecycle: the admission pipeline
// (validation, rate limiting, spam filtering, persistence), edits, soft
// deletion and votes.
package content

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/events"
	"github.com/latticesocial/lattice/internal/ids"
	"github.com/latticesocial/lattice/internal/metrics"
	"github.com/latticesocial/lattice/internal/ratelimit"
	"github.com/latticesocial/lattice/internal/spam"
	"github.com/latticesocial/lattice/internal/store"
)

// Validation bounds. Content length is measured in bytes, title and excerpt
// in runes.
const (
	maxContentBytes = 50 * 1024
	maxTitleRunes   = 300
	maxExcerptRunes = 600

	// editWindow is how long after creation an author may still edit.
	editWindow = 5 * time.Minute
)

// Store is the slice of the store the content service consumes.
type Store interface {
	GetAgent(ctx context.Context, did string) (*store.Agent, error)
	GetPost(ctx context.Context, id string) (*store.Post, error)
	CreatePost(ctx context.Context, p *store.Post, topics []store.TopicLink) error
	UpdatePost(ctx context.Context, id string, content string, title, excerpt *string, simhash string, editedAt time.Time, topics []store.TopicLink) error
	SoftDeletePost(ctx context.Context, id, reason string, at time.Time) error
	GetPostTopics(ctx context.Context, postID string) ([]store.Topic, error)
	CastVote(ctx context.Context, v *store.Vote) (store.VoteOutcome, error)
}

// Ledger is the slice of the EXP service the pipeline touches.
type Ledger interface {
	LevelOf(ctx context.Context, did string) (int, error)
	PenalizeSpamDetected(ctx context.Context, authorDID, postID string) error
	ApplyVoteEffect(ctx context.Context, voterDID, authorDID, postID string, value int, isReply bool) (bool, error)
}

// Limiter is the admission rate limiter.
type Limiter interface {
	Check(ctx context.Context, did string, level int, action ratelimit.Action) (ratelimit.Status, error)
	Record(ctx context.Context, did string, action ratelimit.Action) error
}

// Service runs the content pipeline.
type Service struct {
	store    Store
	detector *spam.Detector
	limiter  Limiter
	ledger   Ledger
	ids      ids.Generator
	bus      *events.Bus
	metrics  *metrics.Metrics
	log      *logrus.Entry
	now      func() time.Time
}

// NewService builds the content service.
func NewService(s Store, det *spam.Detector, lim Limiter, ledger Ledger, gen ids.Generator, bus *events.Bus, m *metrics.Metrics, log *logrus.Entry) *Service {
	return &Service{
		store:    s,
		detector: det,
		limiter:  lim,
		ledger:   ledger,
		ids:      gen,
		bus:      bus,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// CreateInput is a decoded post submission. Signature is the envelope
// signature from X-Signature, stored with the post as its authorship proof.
type CreateInput struct {
	AuthorDID string
	ParentID  *string
	Title     *string
	Content   string
	Excerpt   *string
	Signature string
}

// CreatePost runs the admission pipeline. The returned status carries the
// rate-limit headers for the response; it is valid whenever err is nil or
// carries RATE_LIMIT_EXCEEDED.
func (s *Service) CreatePost(ctx context.Context, in CreateInput) (*store.Post, ratelimit.Status, error) {
	var status ratelimit.Status

	if err := validateContent(in.Content, in.Title, in.Excerpt); err != nil {
		return nil, status, err
	}

	action := ratelimit.ActionPost
	if in.ParentID != nil {
		action = ratelimit.ActionComment
		parent, err := s.store.GetPost(ctx, *in.ParentID)
		if err != nil {
			return nil, status, err
		}
		if parent == nil || parent.Deleted {
			return nil, status, apperr.New(apperr.CodeNotFound, "parent post not found")
		}
	}

	author, err := s.store.GetAgent(ctx, in.AuthorDID)
	if err != nil {
		return nil, status, err
	}
	if author == nil {
		return nil, status, apperr.New(apperr.CodeNotFound, "agent not found")
	}

	level, err := s.ledger.LevelOf(ctx, in.AuthorDID)
	if err != nil {
		return nil, status, err
	}
	status, err = s.limiter.Check(ctx, in.AuthorDID, level, action)
	if err != nil {
		return nil, status, err
	}
	if !status.Allowed {
		s.metrics.RecordRateLimitDenied(string(action))
		return nil, status, rateLimitErr(status)
	}

	verdict, err := s.detector.EvaluatePost(ctx, in.AuthorDID, in.Content, author.CreatedAt)
	if err != nil {
		return nil, status, err
	}
	s.metrics.ObserveSpamScores(verdict.InjectionScore, verdict.Entropy)

	if verdict.Action == spam.ActionReject {
		s.metrics.RecordAdmission("reject", string(verdict.Reason))
		if verdict.Penalize {
			if err := s.ledger.PenalizeSpamDetected(ctx, in.AuthorDID, ""); err != nil {
				s.log.WithError(err).Error("spam penalty failed")
			}
		}
		return nil, status, apperr.New(apperr.CodeSpam, "content rejected by spam filter").
			WithDetail("reason", string(verdict.Reason))
	}

	now := s.now()
	post := &store.Post{
		ID:          s.ids.NewID(),
		AuthorDID:   in.AuthorDID,
		ParentID:    in.ParentID,
		Title:       in.Title,
		Content:     in.Content,
		Excerpt:     resolveExcerpt(in.Excerpt, in.Content),
		ContentType: "TEXT",
		Signature:   in.Signature,
		SimHash:     spam.FormatSimHash(verdict.SimHash),
		Quarantined: verdict.Action == spam.ActionQuarantine,
		CreatedAt:   now,
	}
	if err := s.store.CreatePost(ctx, post, s.topicLinks(in.Content)); err != nil {
		return nil, status, err
	}

	if err := s.limiter.Record(ctx, in.AuthorDID, action); err != nil {
		s.log.WithError(err).Error("rate-limit record failed")
	}
	if status.Remaining > 0 {
		status.Remaining--
	}

	if post.Quarantined {
		s.metrics.RecordAdmission("quarantine", string(verdict.Reason))
		if err := s.ledger.PenalizeSpamDetected(ctx, in.AuthorDID, post.ID); err != nil {
			s.log.WithError(err).Error("spam penalty failed")
		}
		s.bus.Publish(events.TypePostQuarantined, map[string]interface{}{
			"postId": post.ID,
			"reason": string(verdict.Reason),
		})
	} else {
		s.metrics.RecordAdmission("publish", "")
	}

	s.bus.Publish(events.TypePostCreated, map[string]interface{}{
		"postId":    post.ID,
		"authorDid": post.AuthorDID,
		"parentId":  in.ParentID,
	})
	s.log.WithFields(logrus.Fields{
		"post":        post.ID,
		"author":      post.AuthorDID,
		"action":      string(action),
		"quarantined": post.Quarantined,
	}).Info("post created")

	post.AuthorUsername = author.Username
	return post, status, nil
}

// EditInput carries the replacement fields for an edit. Nil title or excerpt
// keeps the stored value (the excerpt is then re-synthesised from the new
// content).
type EditInput struct {
	Title   *string
	Content string
	Excerpt *string
}

// EditPost rewrites a post within the edit window. Only the author may edit,
// only while the post is live, and the replacement body must clear the
// prompt-injection filter.
func (s *Service) EditPost(ctx context.Context, editorDID, postID string, in EditInput) (*store.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil || post.Deleted {
		return nil, apperr.New(apperr.CodeNotFound, "post not found")
	}
	if post.AuthorDID != editorDID {
		return nil, apperr.New(apperr.CodeForbidden, "only the author may edit a post")
	}
	if s.now().Sub(post.CreatedAt) > editWindow {
		return nil, apperr.New(apperr.CodeForbidden, "edit window has closed")
	}
	if err := validateContent(in.Content, in.Title, in.Excerpt); err != nil {
		return nil, err
	}

	verdict := s.detector.CheckEdit(in.Content)
	s.metrics.ObserveSpamScores(verdict.InjectionScore, verdict.Entropy)
	if verdict.Action == spam.ActionReject {
		return nil, apperr.New(apperr.CodeSpam, "edit rejected by spam filter").
			WithDetail("reason", string(verdict.Reason))
	}

	title := in.Title
	if title == nil {
		title = post.Title
	}
	now := s.now()
	err = s.store.UpdatePost(ctx, postID, in.Content, title,
		resolveExcerpt(in.Excerpt, in.Content),
		spam.FormatSimHash(verdict.SimHash), now, s.topicLinks(in.Content))
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"post": postID, "author": editorDID}).Info("post edited")
	return s.store.GetPost(ctx, postID)
}

// DeletePost soft-deletes an author's own post. Deleting an already deleted
// post is a no-op.
func (s *Service) DeletePost(ctx context.Context, callerDID, postID string) error {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return apperr.New(apperr.CodeNotFound, "post not found")
	}
	if post.AuthorDID != callerDID {
		return apperr.New(apperr.CodeForbidden, "only the author may delete a post")
	}
	if post.Deleted {
		return nil
	}

	if err := s.store.SoftDeletePost(ctx, postID, "author", s.now()); err != nil {
		return err
	}
	s.bus.Publish(events.TypePostDeleted, map[string]interface{}{
		"postId":    postID,
		"authorDid": callerDID,
	})
	s.log.WithFields(logrus.Fields{"post": postID, "author": callerDID}).Info("post deleted")
	return nil
}

// GetPost returns one post with its topics, soft-deleted rows included.
func (s *Service) GetPost(ctx context.Context, id string) (*store.Post, []store.Topic, error) {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if post == nil {
		return nil, nil, apperr.New(apperr.CodeNotFound, "post not found")
	}
	topics, err := s.store.GetPostTopics(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return post, topics, nil
}

func (s *Service) topicLinks(content string) []store.TopicLink {
	tags := ExtractHashtags(content)
	links := make([]store.TopicLink, len(tags))
	for i, tag := range tags {
		links[i] = store.TopicLink{CandidateID: s.ids.NewID(), Name: tag}
	}
	return links
}

func validateContent(content string, title, excerpt *string) error {
	if strings.TrimSpace(content) == "" {
		return apperr.New(apperr.CodeValidation, "content must not be empty")
	}
	if len(content) > maxContentBytes {
		return apperr.Newf(apperr.CodeValidation, "content exceeds %d bytes", maxContentBytes)
	}
	if title != nil && utf8.RuneCountInString(*title) > maxTitleRunes {
		return apperr.Newf(apperr.CodeValidation, "title exceeds %d characters", maxTitleRunes)
	}
	if excerpt != nil && utf8.RuneCountInString(*excerpt) > maxExcerptRunes {
		return apperr.Newf(apperr.CodeValidation, "excerpt exceeds %d characters", maxExcerptRunes)
	}
	return nil
}

// resolveExcerpt prefers the author's excerpt and synthesises one otherwise.
func resolveExcerpt(supplied *string, content string) *string {
	if supplied != nil && strings.TrimSpace(*supplied) != "" {
		return supplied
	}
	e := Excerpt(content)
	return &e
}

func rateLimitErr(status ratelimit.Status) *apperr.Error {
	return apperr.New(apperr.CodeRateLimited, "rate limit exceeded").
		WithDetail("limit", status.Limit).
		WithDetail("remaining", status.Remaining).
		WithDetail("resetAt", status.ResetAt)
}
