package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const accountColumns = `account_id, handle, name, avatar_url, bio,
	followers_count, following_count, tweet_count, media_count, favourites_count,
	is_automated, possibly_sensitive, can_dm, created_at, last_seen_at`

const upsertAccountStatement = `
	INSERT INTO accounts (` + accountColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (account_id) DO UPDATE SET
		handle = excluded.handle,
		name = excluded.name,
		avatar_url = excluded.avatar_url,
		bio = excluded.bio,
		followers_count = excluded.followers_count,
		following_count = excluded.following_count,
		tweet_count = excluded.tweet_count,
		media_count = excluded.media_count,
		favourites_count = excluded.favourites_count,
		is_automated = excluded.is_automated,
		possibly_sensitive = excluded.possibly_sensitive,
		can_dm = excluded.can_dm,
		created_at = COALESCE(excluded.created_at, accounts.created_at),
		last_seen_at = excluded.last_seen_at`

// UpsertAccount inserts or overwrites one account. Later observations
// win, except that a missing creation timestamp never clears a known one.
func (s *Store) UpsertAccount(ctx context.Context, a Account) error {
	_, err := s.db.ExecContext(ctx, upsertAccountStatement, upsertAccountArgs(a)...)
	if err != nil {
		return fmt.Errorf("upserting account %s: %w", a.ID, err)
	}

	return nil
}

// UpsertAccounts writes a batch of accounts in one transaction. Used by
// the collector once per page.
func (s *Store) UpsertAccounts(ctx context.Context, accounts []Account) error {
	if len(accounts) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertAccountStatement)
		if err != nil {
			return fmt.Errorf("upserting accounts: %w", err)
		}
		defer stmt.Close()

		for _, a := range accounts {
			_, err = stmt.ExecContext(ctx, upsertAccountArgs(a)...)
			if err != nil {
				return fmt.Errorf("upserting account %s: %w", a.ID, err)
			}
		}

		return nil
	})
}

func upsertAccountArgs(a Account) []any {
	return []any{
		a.ID, nullString(a.Handle), nullString(a.Name), nullString(a.AvatarURL), nullString(a.Bio),
		a.FollowersCount, a.FollowingCount, a.TweetCount, a.MediaCount, a.FavouritesCount,
		a.IsAutomated, a.PossiblySensitive, a.CanDM, nullTime(a.CreatedAt), a.LastSeenAt.UTC(),
	}
}

// GetAccount returns one account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = ?`, id)

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}

	if err != nil {
		return Account{}, fmt.Errorf("reading account %s: %w", id, err)
	}

	return a, nil
}

// GetAccountByHandle returns one account by handle.
func (s *Store) GetAccountByHandle(ctx context.Context, handle string) (Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE handle = ? ORDER BY last_seen_at DESC LIMIT 1`, handle)

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}

	if err != nil {
		return Account{}, fmt.Errorf("reading account @%s: %w", handle, err)
	}

	return a, nil
}

// ListAccounts returns up to limit accounts, most recently seen first.
// A non-empty search filters on handle and display name.
func (s *Store) ListAccounts(ctx context.Context, limit int, search string) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	args := []any{}

	if search != "" {
		query += ` WHERE handle LIKE ? OR name LIKE ?`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}

	query += ` ORDER BY last_seen_at DESC, account_id LIMIT ?`
	args = append(args, limit)

	return s.queryAccounts(ctx, query, args...)
}

// AccountsByID returns the accounts with the given ids, keyed by id.
// Missing ids are simply absent from the result.
func (s *Store) AccountsByID(ctx context.Context, ids []string) (map[string]Account, error) {
	out := make(map[string]Account, len(ids))

	for _, part := range chunk(ids, maxSQLParams) {
		args := make([]any, len(part))
		for i, id := range part {
			args[i] = id
		}

		accounts, err := s.queryAccounts(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE account_id IN (`+placeholders(len(part))+`)`, args...)
		if err != nil {
			return nil, err
		}

		for _, a := range accounts {
			out[a.ID] = a
		}
	}

	return out, nil
}

// AccountsMissingProfile returns accounts without an avatar or bio, most
// recently seen first. Used by profile refresh.
func (s *Store) AccountsMissingProfile(ctx context.Context, limit int) ([]Account, error) {
	return s.queryAccounts(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE avatar_url IS NULL OR avatar_url = '' OR bio IS NULL OR bio = ''
		ORDER BY last_seen_at DESC, account_id LIMIT ?`, limit)
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("querying accounts: %w", err)
		}

		accounts = append(accounts, a)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}

	return accounts, nil
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		a         Account
		handle    sql.NullString
		name      sql.NullString
		avatarURL sql.NullString
		bio       sql.NullString
		createdAt sql.NullTime
	)

	err := row.Scan(&a.ID, &handle, &name, &avatarURL, &bio,
		&a.FollowersCount, &a.FollowingCount, &a.TweetCount, &a.MediaCount, &a.FavouritesCount,
		&a.IsAutomated, &a.PossiblySensitive, &a.CanDM, &createdAt, &a.LastSeenAt)
	if err != nil {
		return Account{}, err
	}

	a.Handle = fromNullString(handle)
	a.Name = fromNullString(name)
	a.AvatarURL = fromNullString(avatarURL)
	a.Bio = fromNullString(bio)
	a.CreatedAt = fromNullTime(createdAt)
	a.LastSeenAt = a.LastSeenAt.UTC()

	return a, nil
}
