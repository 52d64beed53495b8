package storage

import (
	"context"

	"github.com/pkg/errors"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		account_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS follows (
		follower_id TEXT NOT NULL,
		followed_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY(follower_id, followed_id)
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		post_id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS posts_owner_id_idx ON posts (owner_id)`,
	`CREATE INDEX IF NOT EXISTS posts_created_at_idx ON posts (created_at)`,
	`CREATE TABLE IF NOT EXISTS likes (
		post_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY(post_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		comment_id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS comments_post_id_idx ON comments (post_id, created_at)`,
}

// InitSchema creates the tables if they do not exist yet.
func (p *SQLiteServer) InitSchema(parentCtx context.Context) error {
	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := p.DB.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "initializing sqlite schema failed")
		}
	}
	return nil
}

// TruncateTables removes every row, keeping the schema.
func (p *SQLiteServer) TruncateTables(parentCtx context.Context) error {
	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	for _, table := range []string{"accounts", "follows", "posts", "likes", "comments"} {
		if _, err := p.DB.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.Wrapf(err, "clearing table %s failed", table)
		}
	}
	return nil
}
