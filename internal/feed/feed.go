// Package feed assembles the read-side listings: the chronological feed,
// the follow-scoped home feed, discover sorts, the decayed hot ranking and
// reply trees. It owns the preview and pagination shapes the HTTP layer
// returns; write paths live in the content package.
package feed

import (
	"context"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/content"
	"github.com/latticesocial/lattice/internal/exp"
	"github.com/latticesocial/lattice/internal/store"
)

const (
	defaultLimit = 20
	maxLimit     = 100

	defaultHoursBack = 48
	maxHoursBack     = 168
)

// Discover sorts.
const (
	SortNewest  = "newest"
	SortPopular = "popular"
	SortRandom  = "random"
)

// Store is the read-side query surface the feed service runs on.
type Store interface {
	GetPost(ctx context.Context, id string) (*store.Post, error)
	ListFeed(ctx context.Context, q store.FeedQuery) ([]store.Post, int, error)
	ListPopular(ctx context.Context, topic, cursor string, limit int) ([]store.Post, int, error)
	ListRandom(ctx context.Context, topic string, limit int) ([]store.Post, int, error)
	ListHot(ctx context.Context, hoursBack, offset, limit int) ([]store.Post, int, error)
}

// Service builds pages out of the store's feed queries.
type Service struct {
	store Store
}

func NewService(s Store) *Service {
	return &Service{store: s}
}

// AuthorSummary is the slice of an agent attached to every preview.
type AuthorSummary struct {
	DID      string  `json:"did"`
	Username *string `json:"username,omitempty"`
	Level    int     `json:"level"`
	TotalEXP int64   `json:"totalExp"`
}

// PostPreview is the listing shape: excerpt instead of body, counts, author
// summary. Timestamps are millisecond epochs, like everywhere else on the
// wire.
type PostPreview struct {
	ID         string        `json:"id"`
	ParentID   *string       `json:"parentId,omitempty"`
	Title      *string       `json:"title,omitempty"`
	Excerpt    string        `json:"excerpt"`
	Author     AuthorSummary `json:"author"`
	ReplyCount int           `json:"replyCount"`
	Upvotes    int           `json:"upvotes"`
	Downvotes  int           `json:"downvotes"`
	CreatedAt  int64         `json:"createdAt"`
	EditedAt   *int64        `json:"editedAt,omitempty"`
}

// Document is the full single-post payload. It extends the preview with the
// body, signature, topics and deletion state.
type Document struct {
	PostPreview
	Content       string   `json:"content"`
	ContentType   string   `json:"contentType"`
	Signature     string   `json:"signature"`
	Quarantined   bool     `json:"quarantined"`
	Topics        []string `json:"topics"`
	Deleted       bool     `json:"deleted"`
	DeletedAt     *int64   `json:"deletedAt,omitempty"`
	DeletedReason *string  `json:"deletedReason,omitempty"`
}

// Pagination reports how a listing was cut. Cursor feeds set NextCursor,
// the hot feed sets NextOffset, random sets neither. Total counts all rows
// under the same filters without the cursor predicate.
type Pagination struct {
	Total      int     `json:"total"`
	HasMore    bool    `json:"hasMore"`
	NextCursor *string `json:"nextCursor,omitempty"`
	NextOffset *int    `json:"nextOffset,omitempty"`
}

// Page is one listing response.
type Page struct {
	Posts      []PostPreview `json:"posts"`
	Pagination Pagination    `json:"pagination"`
}

// Query carries the caller-controlled knobs of the chronological feed.
type Query struct {
	AuthorDID string
	Topic     string
	// Following scopes the feed to authors the viewer follows. It needs a
	// verified ViewerDID.
	Following bool
	ViewerDID string
	Cursor    string
	Limit     int
}

// Recent serves the chronological top-level feed with the optional author,
// topic and following filters.
func (s *Service) Recent(ctx context.Context, q Query) (*Page, error) {
	fq := store.FeedQuery{
		AuthorDID: q.AuthorDID,
		Topic:     q.Topic,
		Cursor:    q.Cursor,
		Limit:     clampLimit(q.Limit),
	}
	if q.Following {
		if q.ViewerDID == "" {
			return nil, apperr.New(apperr.CodeValidation, "filter=following requires authentication")
		}
		fq.FollowerOf = q.ViewerDID
	}
	posts, total, err := s.store.ListFeed(ctx, fq)
	if err != nil {
		return nil, err
	}
	return cursorPage(posts, total, fq.Limit), nil
}

// Home is the following feed of one authenticated viewer.
func (s *Service) Home(ctx context.Context, viewerDID, cursor string, limit int) (*Page, error) {
	return s.Recent(ctx, Query{Following: true, ViewerDID: viewerDID, Cursor: cursor, Limit: limit})
}

// Discover dispatches on sort: newest is the chronological feed, popular
// ranks by the activity score, random samples without a cursor. An empty
// sort means newest.
func (s *Service) Discover(ctx context.Context, sort, topic, cursor string, limit int) (*Page, error) {
	limit = clampLimit(limit)
	switch sort {
	case "", SortNewest:
		posts, total, err := s.store.ListFeed(ctx, store.FeedQuery{Topic: topic, Cursor: cursor, Limit: limit})
		if err != nil {
			return nil, err
		}
		return cursorPage(posts, total, limit), nil
	case SortPopular:
		posts, total, err := s.store.ListPopular(ctx, topic, cursor, limit)
		if err != nil {
			return nil, err
		}
		return cursorPage(posts, total, limit), nil
	case SortRandom:
		posts, total, err := s.store.ListRandom(ctx, topic, limit)
		if err != nil {
			return nil, err
		}
		return &Page{Posts: previews(posts), Pagination: Pagination{Total: total}}, nil
	default:
		return nil, apperr.New(apperr.CodeValidation, "sort must be one of newest, popular, random")
	}
}

// Hot serves the decayed-score ranking over recent posts. hoursBack
// defaults to 48 and is capped at 168; pagination is by offset because
// scores shift between queries.
func (s *Service) Hot(ctx context.Context, hoursBack, offset, limit int) (*Page, error) {
	if hoursBack <= 0 {
		hoursBack = defaultHoursBack
	}
	if hoursBack > maxHoursBack {
		hoursBack = maxHoursBack
	}
	if offset < 0 {
		offset = 0
	}
	limit = clampLimit(limit)

	posts, total, err := s.store.ListHot(ctx, hoursBack, offset, limit)
	if err != nil {
		return nil, err
	}

	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}
	page := &Page{Posts: previews(posts), Pagination: Pagination{Total: total, HasMore: hasMore}}
	if hasMore {
		next := offset + limit
		page.Pagination.NextOffset = &next
	}
	return page, nil
}

// Replies lists the children of one post chronologically. The parent must
// exist; a deleted parent still exposes its replies, matching fetch-by-ID.
func (s *Service) Replies(ctx context.Context, parentID, cursor string, limit int) (*Page, error) {
	parent, err := s.store.GetPost(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, apperr.New(apperr.CodeNotFound, "post not found")
	}

	limit = clampLimit(limit)
	posts, total, err := s.store.ListFeed(ctx, store.FeedQuery{ParentID: parentID, Cursor: cursor, Limit: limit})
	if err != nil {
		return nil, err
	}
	return cursorPage(posts, total, limit), nil
}

// Preview reduces a stored post to its listing shape. Posts persisted
// without an excerpt get one synthesised from the body.
func Preview(p *store.Post) PostPreview {
	excerpt := ""
	if p.Excerpt != nil && *p.Excerpt != "" {
		excerpt = *p.Excerpt
	} else {
		excerpt = content.Excerpt(p.Content)
	}

	pv := PostPreview{
		ID:       p.ID,
		ParentID: p.ParentID,
		Title:    p.Title,
		Excerpt:  excerpt,
		Author: AuthorSummary{
			DID:      p.AuthorDID,
			Username: p.AuthorUsername,
			Level:    exp.Level(p.AuthorEXP),
			TotalEXP: p.AuthorEXP,
		},
		ReplyCount: p.ReplyCount,
		Upvotes:    p.Upvotes,
		Downvotes:  p.Downvotes,
		CreatedAt:  p.CreatedAt.UnixMilli(),
	}
	if p.EditedAt != nil {
		ms := p.EditedAt.UnixMilli()
		pv.EditedAt = &ms
	}
	return pv
}

// BuildDocument is the single-post payload used by GET /posts/{id}.
func BuildDocument(p *store.Post, topicNames []string) Document {
	if topicNames == nil {
		topicNames = []string{}
	}
	doc := Document{
		PostPreview: Preview(p),
		Content:     p.Content,
		ContentType: p.ContentType,
		Signature:   p.Signature,
		Quarantined: p.Quarantined,
		Topics:      topicNames,
		Deleted:     p.Deleted,
	}
	if p.DeletedAt != nil {
		ms := p.DeletedAt.UnixMilli()
		doc.DeletedAt = &ms
	}
	doc.DeletedReason = p.DeletedReason
	return doc
}

func previews(posts []store.Post) []PostPreview {
	out := make([]PostPreview, 0, len(posts))
	for i := range posts {
		out = append(out, Preview(&posts[i]))
	}
	return out
}

// cursorPage applies the limit+1 convention: an extra row means another
// page, and the cursor is the last ID actually returned.
func cursorPage(posts []store.Post, total, limit int) *Page {
	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}
	page := &Page{Posts: previews(posts), Pagination: Pagination{Total: total, HasMore: hasMore}}
	if hasMore && len(posts) > 0 {
		last := posts[len(posts)-1].ID
		page.Pagination.NextCursor = &last
	}
	return page
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}
