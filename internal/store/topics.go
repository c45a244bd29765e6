package store

import "context"

// TrendingTopics returns topics ordered by how many posts carry them.
func (s *Store) TrendingTopics(ctx context.Context, limit int) ([]Topic, error) {
	return s.queryTopics(ctx,
		`SELECT id, name, post_count FROM topics
		 WHERE post_count > 0
		 ORDER BY post_count DESC, name LIMIT $1`, limit)
}

// SearchTopics prefix-matches topic names. Names are stored lowercase; the
// caller lowercases the query.
func (s *Store) SearchTopics(ctx context.Context, prefix string, limit int) ([]Topic, error) {
	return s.queryTopics(ctx,
		`SELECT id, name, post_count FROM topics
		 WHERE name LIKE $1 || '%'
		 ORDER BY name LIMIT $2`, prefix, limit)
}

func (s *Store) queryTopics(ctx context.Context, query string, args ...interface{}) ([]Topic, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err, "query topics")
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
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "query topics")
	}
	return topics, nil
}
