package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// scoreExpr is the popularity signal shared by the popular and hot feeds:
// replies weigh double, votes count once each.
const scoreExpr = `(
	(SELECT COUNT(*) FROM posts r WHERE r.parent_id = p.id AND r.deleted = FALSE) * 2
	+ (SELECT COUNT(*) FROM votes v WHERE v.post_id = p.id AND v.value = 1)
	- (SELECT COUNT(*) FROM votes v WHERE v.post_id = p.id AND v.value = -1))`

// hotExpr decays the score by age: score / (age_hours + 2)^1.5.
const hotExpr = scoreExpr + ` / POWER(EXTRACT(EPOCH FROM (NOW() - p.created_at)) / 3600.0 + 2, 1.5)`

// FeedQuery selects the chronological feed variants: the NEW feed, author
// and topic filters, the following filter, and reply listings.
type FeedQuery struct {
	// ParentID switches the query to the replies of one post. Empty selects
	// top-level posts only.
	ParentID string
	// AuthorDID restricts to one author when set.
	AuthorDID string
	// Topic restricts to posts carrying a topic name (lowercase) when set.
	Topic string
	// FollowerOf restricts to authors followed by this DID when set.
	FollowerOf string
	// Cursor is an exclusive upper bound on post ID; empty starts at the top.
	Cursor string
	// Limit is the page size; one extra row is fetched to detect more pages.
	Limit int
}

func (q FeedQuery) filters() ([]string, []interface{}) {
	where := []string{"p.deleted = FALSE"}
	var args []interface{}

	if q.ParentID != "" {
		args = append(args, q.ParentID)
		where = append(where, fmt.Sprintf("p.parent_id = $%d", len(args)))
	} else {
		where = append(where, "p.parent_id IS NULL")
	}
	if q.AuthorDID != "" {
		args = append(args, q.AuthorDID)
		where = append(where, fmt.Sprintf("p.author_did = $%d", len(args)))
	}
	if q.Topic != "" {
		args = append(args, q.Topic)
		where = append(where, fmt.Sprintf(
			`p.id IN (SELECT pt.post_id FROM post_topics pt
			          JOIN topics t ON t.id = pt.topic_id WHERE t.name = $%d)`, len(args)))
	}
	if q.FollowerOf != "" {
		args = append(args, q.FollowerOf)
		where = append(where, fmt.Sprintf(
			`p.author_did IN (SELECT followed_did FROM follows WHERE follower_did = $%d)`, len(args)))
	}
	return where, args
}

// ListFeed runs the chronological query: ULID ordering is the sort, the
// cursor is an exclusive ID bound, and limit+1 rows are requested so the
// caller can detect a next page without a second query. The returned total
// counts all rows under the same filters without the cursor.
func (s *Store) ListFeed(ctx context.Context, q FeedQuery) ([]Post, int, error) {
	where, args := q.filters()

	var total int
	countQuery := `SELECT COUNT(*) FROM posts p WHERE ` + strings.Join(where, " AND ")
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, storeErr(err, "count feed")
	}

	if q.Cursor != "" {
		args = append(args, q.Cursor)
		where = append(where, fmt.Sprintf("p.id < $%d", len(args)))
	}
	args = append(args, q.Limit+1)
	query := `SELECT` + postColumns + postFrom +
		` WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY p.id DESC LIMIT $%d`, len(args))

	posts, err := s.queryPosts(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// ListPopular orders by the activity score, ties broken by ID descending.
// The cursor is the last returned post ID; its score is resolved server-side
// and the composite (score, id) comparison applied. A vanished cursor post
// restarts from the top.
func (s *Store) ListPopular(ctx context.Context, topic, cursor string, limit int) ([]Post, int, error) {
	q := FeedQuery{Topic: topic}
	where, args := q.filters()

	var total int
	countQuery := `SELECT COUNT(*) FROM posts p WHERE ` + strings.Join(where, " AND ")
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, storeErr(err, "count popular")
	}

	outer := ""
	if cursor != "" {
		var cursorScore int64
		err := s.db.QueryRowContext(ctx,
			`SELECT `+scoreExpr+` FROM posts p WHERE p.id = $1 AND p.deleted = FALSE`,
			cursor).Scan(&cursorScore)
		switch {
		case err == sql.ErrNoRows:
			// Cursor post vanished; restart from the top.
		case err != nil:
			return nil, 0, storeErr(err, "resolve popular cursor")
		default:
			args = append(args, cursorScore)
			scoreArg := len(args)
			args = append(args, cursor)
			outer = fmt.Sprintf(
				` WHERE (q.score < $%d OR (q.score = $%d AND q.id < $%d))`,
				scoreArg, scoreArg, scoreArg+1)
		}
	}

	args = append(args, limit+1)
	query := `SELECT * FROM (SELECT` + postColumns + `, ` + scoreExpr + ` AS score` + postFrom +
		` WHERE ` + strings.Join(where, " AND ") + `) q` + outer +
		fmt.Sprintf(` ORDER BY q.score DESC, q.id DESC LIMIT $%d`, len(args))

	posts, err := s.queryRankedPosts(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// ListRandom samples posts in random order. No cursor, no stability claims.
func (s *Store) ListRandom(ctx context.Context, topic string, limit int) ([]Post, int, error) {
	q := FeedQuery{Topic: topic}
	where, args := q.filters()

	var total int
	countQuery := `SELECT COUNT(*) FROM posts p WHERE ` + strings.Join(where, " AND ")
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, storeErr(err, "count random")
	}

	args = append(args, limit)
	query := `SELECT` + postColumns + postFrom +
		` WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY RANDOM() LIMIT $%d`, len(args))

	posts, err := s.queryPosts(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// ListHot ranks recent posts by the decayed activity score. Offset
// pagination keeps a traversal stable within itself even as scores shift
// between queries.
func (s *Store) ListHot(ctx context.Context, hoursBack, offset, limit int) ([]Post, int, error) {
	where := []string{
		"p.deleted = FALSE",
		"p.parent_id IS NULL",
		"p.created_at > NOW() - ($1 * INTERVAL '1 hour')",
	}
	args := []interface{}{hoursBack}

	var total int
	countQuery := `SELECT COUNT(*) FROM posts p WHERE ` + strings.Join(where, " AND ")
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, storeErr(err, "count hot")
	}

	args = append(args, limit+1, offset)
	query := `SELECT * FROM (SELECT` + postColumns + `, ` + hotExpr + ` AS score` + postFrom +
		` WHERE ` + strings.Join(where, " AND ") + `) q` +
		fmt.Sprintf(` ORDER BY q.score DESC, q.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	posts, err := s.queryRankedPosts(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (s *Store) queryPosts(ctx context.Context, query string, args ...interface{}) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err, "query posts")
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, storeErr(err, "scan post")
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "query posts")
	}
	return posts, nil
}

// queryRankedPosts scans the ranked variants, which carry a trailing score
// column the caller does not need back.
func (s *Store) queryRankedPosts(ctx context.Context, query string, args ...interface{}) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err, "query ranked posts")
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		var score float64
		err := rows.Scan(
			&p.ID, &p.AuthorDID, &p.ParentID, &p.Title, &p.Content, &p.Excerpt, &p.ContentType,
			&p.Signature, &p.SimHash, &p.Quarantined, &p.CreatedAt, &p.EditedAt,
			&p.Deleted, &p.DeletedAt, &p.DeletedReason,
			&p.ReplyCount, &p.Upvotes, &p.Downvotes,
			&p.AuthorUsername, &p.AuthorEXP,
			&score,
		)
		if err != nil {
			return nil, storeErr(err, "scan ranked post")
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "query ranked posts")
	}
	return posts, nil
}
