package store

import (
	"context"
)

// WindowCounts returns the action counts recorded in the current and
// previous hour buckets. The limiter sums them for its sliding check.
func (s *Store) WindowCounts(ctx context.Context, did, actionType string, currentStart, previousStart int64) (current, previous int, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT window_start, count FROM rate_limit_counters
		 WHERE did = $1 AND action_type = $2 AND window_start IN ($3, $4)`,
		did, actionType, currentStart, previousStart)
	if err != nil {
		return 0, 0, storeErr(err, "window counts")
	}
	defer rows.Close()

	for rows.Next() {
		var start int64
		var count int
		if err := rows.Scan(&start, &count); err != nil {
			return 0, 0, storeErr(err, "scan window count")
		}
		switch start {
		case currentStart:
			current = count
		case previousStart:
			previous = count
		}
	}
	return current, previous, rows.Err()
}

// RecordAction upserts count+1 into the current hour bucket. Called only
// after the rate-limited action has succeeded.
func (s *Store) RecordAction(ctx context.Context, did, actionType string, windowStart int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_limit_counters (did, action_type, window_start, count)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (did, action_type, window_start)
		 DO UPDATE SET count = rate_limit_counters.count + 1`,
		did, actionType, windowStart)
	if err != nil {
		return storeErr(err, "record action")
	}
	return nil
}

// SweepWindowsBefore deletes rate buckets that ended before the cutoff.
// Best-effort maintenance; losing a bucket is bounded by the 1-hour window.
func (s *Store) SweepWindowsBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limit_counters WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, storeErr(err, "sweep rate windows")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(err, "sweep rate windows")
	}
	return n, nil
}
