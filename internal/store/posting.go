package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/jobwatch/jobwatch/internal/posting"
	"github.com/pkg/errors"
)

// UpsertThread inserts the thread or refreshes its title and sync time.
func (s *Store) UpsertThread(ctx context.Context, thread *posting.Thread) error {
	stmt := `INSERT INTO thread (id, title, author, time, last_synced)
VALUES (:id, :title, :author, :time, :last_synced)
ON CONFLICT (id) DO UPDATE SET title = excluded.title, last_synced = excluded.last_synced`

	_, err := s.db.NamedExecContext(ctx, stmt, thread)
	return errors.Wrapf(err, "cannot upsert thread %d", thread.ID)
}

// ThreadByID returns one thread or ErrNotFound.
func (s *Store) ThreadByID(ctx context.Context, id int64) (*posting.Thread, error) {
	var thread posting.Thread

	err := s.db.GetContext(ctx, &thread, `SELECT id, title, author, time, last_synced FROM thread WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "cannot select thread %d", id)
	}

	return &thread, nil
}

// Threads returns all tracked threads, newest first.
func (s *Store) Threads(ctx context.Context) ([]*posting.Thread, error) {
	var threads []*posting.Thread

	err := s.db.SelectContext(ctx, &threads, `SELECT id, title, author, time, last_synced FROM thread ORDER BY id DESC`)
	return threads, errors.Wrap(err, "cannot select threads")
}

// UpsertPostings writes all postings in one transaction. Edited postings
// replace their stored text and tags, keeping the original submit time.
func (s *Store) UpsertPostings(ctx context.Context, postings []*posting.Posting) error {
	if len(postings) == 0 {
		return nil
	}

	stmt := `INSERT INTO posting (id, thread_id, author, time, text, tags)
VALUES (:id, :thread_id, :author, :time, :text, :tags)
ON CONFLICT (id) DO UPDATE SET text = excluded.text, tags = excluded.tags`

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, p := range postings {
			if _, err := tx.NamedExecContext(ctx, stmt, p); err != nil {
				return errors.Wrapf(err, "cannot upsert posting %d", p.ID)
			}
		}

		return nil
	})
}

// PostingByID returns one posting or ErrNotFound.
func (s *Store) PostingByID(ctx context.Context, id int64) (*posting.Posting, error) {
	var p posting.Posting

	err := s.db.GetContext(ctx, &p, `SELECT id, thread_id, author, time, text, tags FROM posting WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "cannot select posting %d", id)
	}

	return &p, nil
}

// PostingsByThread returns the stored postings of one thread, newest first.
func (s *Store) PostingsByThread(ctx context.Context, threadID int64) ([]*posting.Posting, error) {
	var postings []*posting.Posting

	err := s.db.SelectContext(ctx, &postings,
		`SELECT id, thread_id, author, time, text, tags FROM posting WHERE thread_id = ? ORDER BY id DESC`, threadID)
	return postings, errors.Wrapf(err, "cannot select postings of thread %d", threadID)
}

// PostingIDs returns the IDs of all stored postings of one thread.
func (s *Store) PostingIDs(ctx context.Context, threadID int64) ([]int64, error) {
	var ids []int64

	err := s.db.SelectContext(ctx, &ids, `SELECT id FROM posting WHERE thread_id = ? ORDER BY id`, threadID)
	return ids, errors.Wrapf(err, "cannot select posting IDs of thread %d", threadID)
}
