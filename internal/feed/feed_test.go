package feed

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/store"
)

type fakeFeedStore struct {
	posts  []store.Post
	total  int
	parent *store.Post

	lastCall   string
	lastQuery  store.FeedQuery
	lastTopic  string
	lastCursor string
	lastLimit  int
	lastHours  int
	lastOffset int
}

func (f *fakeFeedStore) GetPost(_ context.Context, id string) (*store.Post, error) {
	if f.parent != nil && f.parent.ID == id {
		return f.parent, nil
	}
	return nil, nil
}

func (f *fakeFeedStore) ListFeed(_ context.Context, q store.FeedQuery) ([]store.Post, int, error) {
	f.lastCall = "feed"
	f.lastQuery = q
	return f.posts, f.total, nil
}

func (f *fakeFeedStore) ListPopular(_ context.Context, topic, cursor string, limit int) ([]store.Post, int, error) {
	f.lastCall = "popular"
	f.lastTopic, f.lastCursor, f.lastLimit = topic, cursor, limit
	return f.posts, f.total, nil
}

func (f *fakeFeedStore) ListRandom(_ context.Context, topic string, limit int) ([]store.Post, int, error) {
	f.lastCall = "random"
	f.lastTopic, f.lastLimit = topic, limit
	return f.posts, f.total, nil
}

func (f *fakeFeedStore) ListHot(_ context.Context, hoursBack, offset, limit int) ([]store.Post, int, error) {
	f.lastCall = "hot"
	f.lastHours, f.lastOffset, f.lastLimit = hoursBack, offset, limit
	return f.posts, f.total, nil
}

// makePosts builds n rows with descending IDs, newest first like the store
// returns them.
func makePosts(n int) []store.Post {
	posts := make([]store.Post, n)
	for i := range posts {
		posts[i] = store.Post{
			ID:        fmt.Sprintf("01FEED%06d", n-i),
			AuthorDID: "did:key:zWriter",
			Content:   "hello world",
			CreatedAt: time.UnixMilli(1_700_000_000_000),
		}
	}
	return posts
}

func TestRecentPageAndCursor(t *testing.T) {
	fs := &fakeFeedStore{posts: makePosts(21), total: 37}
	svc := NewService(fs)

	page, err := svc.Recent(context.Background(), Query{})
	require.NoError(t, err)

	assert.Equal(t, 20, fs.lastQuery.Limit, "zero limit defaults")
	assert.Empty(t, fs.lastQuery.ParentID)
	assert.Len(t, page.Posts, 20, "the extra row is trimmed")
	assert.Equal(t, 37, page.Pagination.Total)
	assert.True(t, page.Pagination.HasMore)
	require.NotNil(t, page.Pagination.NextCursor)
	assert.Equal(t, page.Posts[19].ID, *page.Pagination.NextCursor, "cursor is the last returned ID")
	assert.Nil(t, page.Pagination.NextOffset)
}

func TestRecentLastPage(t *testing.T) {
	fs := &fakeFeedStore{posts: makePosts(3), total: 3}
	svc := NewService(fs)

	page, err := svc.Recent(context.Background(), Query{Limit: 20})
	require.NoError(t, err)
	assert.Len(t, page.Posts, 3)
	assert.False(t, page.Pagination.HasMore)
	assert.Nil(t, page.Pagination.NextCursor)
}

func TestRecentPassesFilters(t *testing.T) {
	fs := &fakeFeedStore{}
	svc := NewService(fs)

	_, err := svc.Recent(context.Background(), Query{
		AuthorDID: "did:key:zAuthor",
		Topic:     "lattice",
		Following: true,
		ViewerDID: "did:key:zViewer",
		Cursor:    "01CURSOR",
		Limit:     5,
	})
	require.NoError(t, err)
	assert.Equal(t, "did:key:zAuthor", fs.lastQuery.AuthorDID)
	assert.Equal(t, "lattice", fs.lastQuery.Topic)
	assert.Equal(t, "did:key:zViewer", fs.lastQuery.FollowerOf)
	assert.Equal(t, "01CURSOR", fs.lastQuery.Cursor)
	assert.Equal(t, 5, fs.lastQuery.Limit)
}

func TestRecentFollowingRequiresViewer(t *testing.T) {
	svc := NewService(&fakeFeedStore{})

	_, err := svc.Recent(context.Background(), Query{Following: true})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestRecentClampsLimit(t *testing.T) {
	fs := &fakeFeedStore{}
	svc := NewService(fs)

	_, err := svc.Recent(context.Background(), Query{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, fs.lastQuery.Limit)

	_, err = svc.Recent(context.Background(), Query{Limit: -1})
	require.NoError(t, err)
	assert.Equal(t, 20, fs.lastQuery.Limit)
}

func TestHomeScopesToViewer(t *testing.T) {
	fs := &fakeFeedStore{}
	svc := NewService(fs)

	_, err := svc.Home(context.Background(), "did:key:zViewer", "", 10)
	require.NoError(t, err)
	assert.Equal(t, "did:key:zViewer", fs.lastQuery.FollowerOf)

	_, err = svc.Home(context.Background(), "", "", 10)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestDiscoverDispatch(t *testing.T) {
	fs := &fakeFeedStore{}
	svc := NewService(fs)
	ctx := context.Background()

	_, err := svc.Discover(ctx, "", "lattice", "", 10)
	require.NoError(t, err)
	assert.Equal(t, "feed", fs.lastCall, "empty sort means newest")
	assert.Equal(t, "lattice", fs.lastQuery.Topic)

	_, err = svc.Discover(ctx, SortPopular, "lattice", "01CURSOR", 10)
	require.NoError(t, err)
	assert.Equal(t, "popular", fs.lastCall)
	assert.Equal(t, "01CURSOR", fs.lastCursor)

	_, err = svc.Discover(ctx, SortRandom, "", "", 10)
	require.NoError(t, err)
	assert.Equal(t, "random", fs.lastCall)

	_, err = svc.Discover(ctx, "trending", "", "", 10)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestDiscoverRandomHasNoCursor(t *testing.T) {
	fs := &fakeFeedStore{posts: makePosts(10), total: 50}
	svc := NewService(fs)

	page, err := svc.Discover(context.Background(), SortRandom, "", "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Posts, 10)
	assert.Equal(t, 50, page.Pagination.Total)
	assert.False(t, page.Pagination.HasMore)
	assert.Nil(t, page.Pagination.NextCursor)
	assert.Nil(t, page.Pagination.NextOffset)
}

func TestHotBoundsAndOffsetPage(t *testing.T) {
	fs := &fakeFeedStore{posts: makePosts(11), total: 40}
	svc := NewService(fs)
	ctx := context.Background()

	page, err := svc.Hot(ctx, 0, 20, 10)
	require.NoError(t, err)
	assert.Equal(t, 48, fs.lastHours, "hoursBack defaults to 48")
	assert.Equal(t, 20, fs.lastOffset)
	assert.Len(t, page.Posts, 10)
	assert.True(t, page.Pagination.HasMore)
	require.NotNil(t, page.Pagination.NextOffset)
	assert.Equal(t, 30, *page.Pagination.NextOffset)
	assert.Nil(t, page.Pagination.NextCursor)

	_, err = svc.Hot(ctx, 500, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 168, fs.lastHours, "hoursBack caps at one week")

	fs.posts = makePosts(4)
	page, err = svc.Hot(ctx, 48, 0, 10)
	require.NoError(t, err)
	assert.False(t, page.Pagination.HasMore)
	assert.Nil(t, page.Pagination.NextOffset)
}

func TestRepliesRequireParent(t *testing.T) {
	fs := &fakeFeedStore{}
	svc := NewService(fs)

	_, err := svc.Replies(context.Background(), "01GONE", "", 10)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestRepliesListChildren(t *testing.T) {
	fs := &fakeFeedStore{
		parent: &store.Post{ID: "01PARENT", AuthorDID: "did:key:zWriter", Deleted: true},
		posts:  makePosts(2),
		total:  2,
	}
	svc := NewService(fs)

	// A deleted parent still exposes its reply tree, same as fetch by ID.
	page, err := svc.Replies(context.Background(), "01PARENT", "", 10)
	require.NoError(t, err)
	assert.Equal(t, "01PARENT", fs.lastQuery.ParentID)
	assert.Len(t, page.Posts, 2)
}

func TestPreviewPrefersStoredExcerpt(t *testing.T) {
	stored := "stored excerpt"
	username := "writer_bot"
	edited := time.UnixMilli(1_700_000_060_000)
	p := &store.Post{
		ID:             "01POST",
		AuthorDID:      "did:key:zWriter",
		Content:        "full body that should not leak into the preview",
		Excerpt:        &stored,
		CreatedAt:      time.UnixMilli(1_700_000_000_000),
		EditedAt:       &edited,
		ReplyCount:     3,
		Upvotes:        5,
		Downvotes:      1,
		AuthorUsername: &username,
		AuthorEXP:      120,
	}

	pv := Preview(p)
	assert.Equal(t, "stored excerpt", pv.Excerpt)
	assert.Equal(t, "did:key:zWriter", pv.Author.DID)
	require.NotNil(t, pv.Author.Username)
	assert.Equal(t, "writer_bot", *pv.Author.Username)
	assert.Equal(t, 20, pv.Author.Level)
	assert.Equal(t, int64(120), pv.Author.TotalEXP)
	assert.Equal(t, int64(1_700_000_000_000), pv.CreatedAt)
	require.NotNil(t, pv.EditedAt)
	assert.Equal(t, int64(1_700_000_060_000), *pv.EditedAt)
	assert.Equal(t, 3, pv.ReplyCount)
}

func TestPreviewSynthesisFallback(t *testing.T) {
	p := &store.Post{
		ID:        "01POST",
		AuthorDID: "did:key:zWriter",
		Content:   strings.Repeat("lattice gossip ", 40),
		CreatedAt: time.UnixMilli(1_700_000_000_000),
	}

	pv := Preview(p)
	runes := []rune(pv.Excerpt)
	assert.LessOrEqual(t, len(runes), 280)
	assert.Equal(t, '…', runes[len(runes)-1], "synthesised excerpts mark truncation")
}

func TestBuildDocument(t *testing.T) {
	reason := "author"
	deletedAt := time.UnixMilli(1_700_000_100_000)
	p := &store.Post{
		ID:            "01POST",
		AuthorDID:     "did:key:zWriter",
		Content:       "the whole body",
		ContentType:   "TEXT",
		Signature:     "c2ln",
		CreatedAt:     time.UnixMilli(1_700_000_000_000),
		Deleted:       true,
		DeletedAt:     &deletedAt,
		DeletedReason: &reason,
	}
	doc := BuildDocument(p, []string{"lattice", "gossip"})
	assert.Equal(t, "the whole body", doc.Content)
	assert.Equal(t, "c2ln", doc.Signature)
	assert.Equal(t, []string{"lattice", "gossip"}, doc.Topics)
	assert.True(t, doc.Deleted)
	require.NotNil(t, doc.DeletedAt)
	assert.Equal(t, int64(1_700_000_100_000), *doc.DeletedAt)
	require.NotNil(t, doc.DeletedReason)
	assert.Equal(t, "author", *doc.DeletedReason)
}
