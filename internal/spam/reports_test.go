package spam

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/events"
	"github.com/latticesocial/lattice/internal/ids"
	"github.com/latticesocial/lattice/internal/metrics"
	"github.com/latticesocial/lattice/internal/ratelimit"
	"github.com/latticesocial/lattice/internal/store"
)

type fakeReportStore struct {
	posts   map[string]*store.Post
	reports map[string]map[string]bool // postID -> reporter set
}

func newFakeReportStore() *fakeReportStore {
	return &fakeReportStore{
		posts:   make(map[string]*store.Post),
		reports: make(map[string]map[string]bool),
	}
}

func (f *fakeReportStore) GetPost(_ context.Context, id string) (*store.Post, error) {
	return f.posts[id], nil
}

func (f *fakeReportStore) CreateReport(_ context.Context, r *store.SpamReport) error {
	set := f.reports[r.PostID]
	if set == nil {
		set = make(map[string]bool)
		f.reports[r.PostID] = set
	}
	if set[r.ReporterDID] {
		return apperr.New(apperr.CodeConflict, "post already reported by this agent")
	}
	set[r.ReporterDID] = true
	return nil
}

func (f *fakeReportStore) DistinctReporterCount(_ context.Context, postID string) (int, error) {
	return len(f.reports[postID]), nil
}

type fakeReportLedger struct {
	confirmed map[string]bool // postID -> penalty already applied
}

func (f *fakeReportLedger) LevelOf(context.Context, string) (int, error) { return 0, nil }

func (f *fakeReportLedger) ConfirmSpam(_ context.Context, _, postID string) (bool, error) {
	if f.confirmed[postID] {
		return false, nil
	}
	f.confirmed[postID] = true
	return true, nil
}

type openLimiter struct {
	allowed bool
	records int
}

func (l *openLimiter) Check(context.Context, string, int, ratelimit.Action) (ratelimit.Status, error) {
	return ratelimit.Status{Allowed: l.allowed, Limit: 5, Remaining: 5}, nil
}

func (l *openLimiter) Record(context.Context, string, ratelimit.Action) error {
	l.records++
	return nil
}

func newReportService(fs *fakeReportStore) (*ReportService, *fakeReportLedger, *openLimiter, *events.Bus) {
	m := metrics.New(prometheus.NewRegistry())
	bus := events.NewBus(m, testLog())
	ledger := &fakeReportLedger{confirmed: make(map[string]bool)}
	limiter := &openLimiter{allowed: true}
	svc := NewReportService(fs, ledger, limiter, ids.NewSequence(time.UnixMilli(1_700_000_000_000)), bus, m, testLog())
	return svc, ledger, limiter, bus
}

func TestReportValidation(t *testing.T) {
	fs := newFakeReportStore()
	fs.posts["01POST"] = &store.Post{ID: "01POST", AuthorDID: "did:key:zAuthor"}
	svc, _, _, _ := newReportService(fs)
	ctx := context.Background()

	_, _, err := svc.Report(ctx, "did:key:zReporter", "01POST", "dislike")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, _, err = svc.Report(ctx, "did:key:zReporter", "01NOPE", "spam")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, _, err = svc.Report(ctx, "did:key:zAuthor", "01POST", "spam")
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestReportDuplicateReporter(t *testing.T) {
	fs := newFakeReportStore()
	fs.posts["01POST"] = &store.Post{ID: "01POST", AuthorDID: "did:key:zAuthor"}
	svc, _, _, _ := newReportService(fs)
	ctx := context.Background()

	_, _, err := svc.Report(ctx, "did:key:zReporter", "01POST", "spam")
	require.NoError(t, err)

	_, _, err = svc.Report(ctx, "did:key:zReporter", "01POST", "harassment")
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestReportConsensusAtThreeDistinctReporters(t *testing.T) {
	fs := newFakeReportStore()
	fs.posts["01POST"] = &store.Post{ID: "01POST", AuthorDID: "did:key:zAuthor"}
	svc, ledger, limiter, bus := newReportService(fs)
	ctx := context.Background()

	sub, cancel := bus.Subscribe()
	defer cancel()

	res, _, err := svc.Report(ctx, "did:key:zR1", "01POST", "spam")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reporters)
	assert.False(t, res.Confirmed)

	res, _, err = svc.Report(ctx, "did:key:zR2", "01POST", "misinformation")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Reporters)
	assert.False(t, res.Confirmed)

	res, _, err = svc.Report(ctx, "did:key:zR3", "01POST", "other")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Reporters)
	assert.True(t, res.Confirmed, "the third distinct reporter confirms")

	select {
	case e := <-sub:
		assert.Equal(t, events.TypeReportConfirmed, e.Type)
		assert.Equal(t, "01POST", e.Data["postId"])
	case <-time.After(time.Second):
		t.Fatal("no report.confirmed event")
	}

	// A fourth reporter adds no second penalty.
	res, _, err = svc.Report(ctx, "did:key:zR4", "01POST", "spam")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Reporters)
	assert.False(t, res.Confirmed)
	assert.True(t, ledger.confirmed["01POST"])
	assert.Equal(t, 4, limiter.records, "each accepted report spends budget")
}

func TestReportRateLimited(t *testing.T) {
	fs := newFakeReportStore()
	fs.posts["01POST"] = &store.Post{ID: "01POST", AuthorDID: "did:key:zAuthor"}
	svc, _, limiter, _ := newReportService(fs)
	limiter.allowed = false

	_, _, err := svc.Report(context.Background(), "did:key:zReporter", "01POST", "spam")
	assert.Equal(t, apperr.CodeRateLimited, apperr.CodeOf(err))
	assert.Empty(t, fs.reports)
}

func TestReportDeletedPost(t *testing.T) {
	fs := newFakeReportStore()
	fs.posts["01POST"] = &store.Post{ID: "01POST", AuthorDID: "did:key:zAuthor", Deleted: true}
	svc, _, _, _ := newReportService(fs)

	_, _, err := svc.Report(context.Background(), "did:key:zReporter", "01POST", "spam")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}
