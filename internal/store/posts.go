package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const postColumns = `post_id, author_id, created_at, text, metrics_json,
	conversation_id, in_reply_to_id, last_seen_at`

const upsertPostStatement = `
	INSERT INTO posts (` + postColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (post_id) DO UPDATE SET
		author_id = excluded.author_id,
		created_at = excluded.created_at,
		text = excluded.text,
		metrics_json = excluded.metrics_json,
		conversation_id = excluded.conversation_id,
		in_reply_to_id = excluded.in_reply_to_id,
		last_seen_at = excluded.last_seen_at`

// UpsertPost inserts a post or overwrites one seen before. Callers
// supply a creation timestamp; the collector falls back to the fetch
// time when the upstream omits it.
func (s *Store) UpsertPost(ctx context.Context, p Post) error {
	_, err := s.db.ExecContext(ctx, upsertPostStatement, upsertPostArgs(p)...)
	if err != nil {
		return fmt.Errorf("upserting post %s: %w", p.ID, err)
	}

	return nil
}

// UpsertPosts writes a batch of posts in one transaction.
func (s *Store) UpsertPosts(ctx context.Context, posts []Post) error {
	if len(posts) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertPostStatement)
		if err != nil {
			return fmt.Errorf("upserting posts: %w", err)
		}
		defer stmt.Close()

		for _, p := range posts {
			_, err = stmt.ExecContext(ctx, upsertPostArgs(p)...)
			if err != nil {
				return fmt.Errorf("upserting post %s: %w", p.ID, err)
			}
		}

		return nil
	})
}

func upsertPostArgs(p Post) []any {
	return []any{
		p.ID, p.AuthorID, p.CreatedAt.UTC(), p.Text, nullString(p.MetricsJSON),
		nullString(p.ConversationID), nullString(p.InReplyToID), p.LastSeenAt.UTC(),
	}
}

// GetPost returns one post by id.
func (s *Store) GetPost(ctx context.Context, id string) (Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE post_id = ?`, id)

	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}

	if err != nil {
		return Post{}, fmt.Errorf("reading post %s: %w", id, err)
	}

	return p, nil
}

// ListPostsSince returns posts created at or after since, newest first.
// A zero since lists all posts.
func (s *Store) ListPostsSince(ctx context.Context, since time.Time, limit int) ([]Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts`
	args := []any{}

	if !since.IsZero() {
		query += ` WHERE created_at >= ?`
		args = append(args, since.UTC())
	}

	query += ` ORDER BY created_at DESC, post_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	defer rows.Close()

	var posts []Post

	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("listing posts: %w", err)
		}

		posts = append(posts, p)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}

	return posts, nil
}

// DeletePostsWithPrefix removes posts whose id starts with prefix and
// returns how many were deleted. Used to clear mock data.
func (s *Store) DeletePostsWithPrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM posts WHERE post_id LIKE ?`, prefix+"%")
	if err != nil {
		return 0, fmt.Errorf("deleting posts with prefix %q: %w", prefix, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting posts with prefix %q: %w", prefix, err)
	}

	return n, nil
}

func scanPost(row rowScanner) (Post, error) {
	var (
		p              Post
		metricsJSON    sql.NullString
		conversationID sql.NullString
		inReplyToID    sql.NullString
	)

	err := row.Scan(&p.ID, &p.AuthorID, &p.CreatedAt, &p.Text, &metricsJSON, &conversationID, &inReplyToID, &p.LastSeenAt)
	if err != nil {
		return Post{}, err
	}

	p.CreatedAt = p.CreatedAt.UTC()
	p.LastSeenAt = p.LastSeenAt.UTC()
	p.MetricsJSON = fromNullString(metricsJSON)
	p.ConversationID = fromNullString(conversationID)
	p.InReplyToID = fromNullString(inReplyToID)

	return p, nil
}
