package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/latticesocial/lattice/internal/apperr"
)

// postColumns is the shared projection for every post read: the row itself,
// the derived counts, and the author summary. Reply and vote counts are
// always computed, never stored, so feeds and live rows cannot drift.
const postColumns = `
	p.id, p.author_did, p.parent_id, p.title, p.content, p.excerpt, p.content_type,
	p.signature, p.simhash, p.quarantined, p.created_at, p.edited_at,
	p.deleted, p.deleted_at, p.deleted_reason,
	(SELECT COUNT(*) FROM posts r WHERE r.parent_id = p.id AND r.deleted = FALSE) AS reply_count,
	(SELECT COUNT(*) FROM votes v WHERE v.post_id = p.id AND v.value = 1) AS upvotes,
	(SELECT COUNT(*) FROM votes v WHERE v.post_id = p.id AND v.value = -1) AS downvotes,
	a.username, COALESCE(b.total, 0)`

const postFrom = `
	FROM posts p
	JOIN agents a ON a.did = p.author_did
	LEFT JOIN exp_balances b ON b.did = p.author_did`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*Post, error) {
	var p Post
	err := row.Scan(
		&p.ID, &p.AuthorDID, &p.ParentID, &p.Title, &p.Content, &p.Excerpt, &p.ContentType,
		&p.Signature, &p.SimHash, &p.Quarantined, &p.CreatedAt, &p.EditedAt,
		&p.Deleted, &p.DeletedAt, &p.DeletedReason,
		&p.ReplyCount, &p.Upvotes, &p.Downvotes,
		&p.AuthorUsername, &p.AuthorEXP,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePost inserts the post and its topic links in one transaction. Topic
// upserts increment post_count in the same statement, so no reader sees a
// post without its topics or a count that excludes it.
func (s *Store) CreatePost(ctx context.Context, p *Post, topics []TopicLink) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO posts (id, author_did, parent_id, title, content, excerpt,
			                    content_type, signature, simhash, quarantined, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			p.ID, p.AuthorDID, p.ParentID, p.Title, p.Content, p.Excerpt,
			p.ContentType, p.Signature, p.SimHash, p.Quarantined, p.CreatedAt)
		if err != nil {
			return err
		}
		return linkTopicsTx(ctx, tx, p.ID, p.CreatedAt, topics)
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperr.New(apperr.CodeNotFound, "parent post not found")
		}
		return storeErr(err, "create post")
	}
	return nil
}

func linkTopicsTx(ctx context.Context, tx *sql.Tx, postID string, at time.Time, topics []TopicLink) error {
	for _, t := range topics {
		var topicID string
		err := tx.QueryRowContext(ctx,
			`INSERT INTO topics (id, name, post_count, created_at) VALUES ($1, $2, 1, $3)
			 ON CONFLICT (name) DO UPDATE SET post_count = topics.post_count + 1
			 RETURNING id`,
			t.CandidateID, t.Name, at).Scan(&topicID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO post_topics (post_id, topic_id, created_at) VALUES ($1, $2, $3)`,
			postID, topicID, at); err != nil {
			return err
		}
	}
	return nil
}

// GetPost fetches one post by ID, soft-deleted rows included; feeds filter
// deletion, single-post reads keep it visible for audit.
func (s *Store) GetPost(ctx context.Context, id string) (*Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx,
		`SELECT`+postColumns+postFrom+` WHERE p.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "get post")
	}
	return p, nil
}

// GetPostTopics returns the topics linked to a post, alphabetically.
func (s *Store) GetPostTopics(ctx context.Context, postID string) ([]Topic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.post_count
		 FROM post_topics pt JOIN topics t ON t.id = pt.topic_id
		 WHERE pt.post_id = $1 ORDER BY t.name`, postID)
	if err != nil {
		return nil, storeErr(err, "get post topics")
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.PostCount); err != nil {
			return nil, storeErr(err, "scan topic")
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// UpdatePost rewrites an edited post's content fields and replaces its topic
// links, all in one transaction. Topic counts are decremented for dropped
// links and incremented for new ones.
func (s *Store) UpdatePost(ctx context.Context, id string, content string, title, excerpt *string, simhash string, editedAt time.Time, topics []TopicLink) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE posts SET content = $2, title = $3, excerpt = $4, simhash = $5, edited_at = $6
			 WHERE id = $1`,
			id, content, title, excerpt, simhash, editedAt)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE topics SET post_count = GREATEST(post_count - 1, 0)
			 WHERE id IN (SELECT topic_id FROM post_topics WHERE post_id = $1)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM post_topics WHERE post_id = $1`, id); err != nil {
			return err
		}
		return linkTopicsTx(ctx, tx, id, editedAt, topics)
	})
	if err != nil {
		return storeErr(err, "update post")
	}
	return nil
}

// SoftDeletePost marks a post deleted. The row stays fetchable by ID; feeds
// and reply counts exclude it from then on.
func (s *Store) SoftDeletePost(ctx context.Context, id, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE posts SET deleted = TRUE, deleted_at = $2, deleted_reason = $3 WHERE id = $1`,
		id, at, reason)
	if err != nil {
		return storeErr(err, "delete post")
	}
	return nil
}

// RecentSimHashes returns the simhashes of an author's non-deleted posts
// created since the given time. Feeds the near-duplicate check.
func (s *Store) RecentSimHashes(ctx context.Context, authorDID string, since time.Time) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT simhash FROM posts
		 WHERE author_did = $1 AND created_at >= $2 AND deleted = FALSE`,
		authorDID, since)
	if err != nil {
		return nil, storeErr(err, "recent simhashes")
	}
	defer rows.Close()

	var hashes []uint64
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, storeErr(err, "scan simhash")
		}
		h, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return nil, storeErr(err, "parse simhash")
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}
