package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const (
	dbMinix    = "minixdb"
	dbPostgres = "postgres"
)

const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		account_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS follows (
		follower_id TEXT NOT NULL,
		followed_id TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY(follower_id, followed_id)
	);

	CREATE TABLE IF NOT EXISTS posts (
		post_id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS posts_owner_id_idx ON posts (owner_id);
	CREATE INDEX IF NOT EXISTS posts_created_at_idx ON posts (created_at DESC);

	CREATE TABLE IF NOT EXISTS likes (
		post_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY(post_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS likes_post_id_idx ON likes (post_id);

	CREATE TABLE IF NOT EXISTS comments (
		comment_id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS comments_post_id_idx ON comments (post_id, created_at);
`

type DBManager struct {
	Options *ConnStringOptions
	Logger  *slog.Logger
}

func NewDBManager(options *ConnStringOptions) *DBManager {
	return &DBManager{
		Options: options,
		Logger:  slog.Default().With("component", "postgres"),
	}
}

// InitDB creates the application database if it is missing and applies the
// schema. Safe to run repeatedly.
func (d *DBManager) InitDB(parentCtx context.Context) error {
	dbName := d.Options.appDBName()

	postgresConn, err := d.openConn(parentCtx, dbPostgres)
	if err != nil {
		return err
	}
	defer d.closeConn(parentCtx, postgresConn)

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	dbExists := false
	row := postgresConn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT datname
			FROM pg_catalog.pg_database
			WHERE datname = $1
			LIMIT 1
		);
	`, dbName)
	err = row.Scan(&dbExists)
	if err != nil {
		return errors.Wrap(err, "checking if minix database exists failed")
	}

	if !dbExists {
		_, err = postgresConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s;", dbName))
		if err != nil {
			return errors.Wrap(err, "creating minix db failed")
		}
		d.Logger.Info("created database", "db", dbName)
	}

	appConn, err := d.openConn(parentCtx, dbName)
	if err != nil {
		return err
	}
	defer d.closeConn(parentCtx, appConn)

	ctx, cancel = getQueryContext(parentCtx)
	defer cancel()

	_, err = appConn.Exec(ctx, schema)
	if err != nil {
		return errors.Wrap(err, "initializing minix db failed")
	}

	return nil
}

func (d *DBManager) DropDB(parentCtx context.Context) error {
	conn, err := d.openConn(parentCtx, dbPostgres)
	if err != nil {
		return err
	}
	defer d.closeConn(parentCtx, conn)

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	_, err = conn.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s;", d.Options.appDBName()))
	if err != nil {
		return errors.Wrap(err, "dropping db failed")
	}

	return nil
}

func (d *DBManager) TruncateTables(parentCtx context.Context) error {
	conn, err := d.openConn(parentCtx, d.Options.appDBName())
	if err != nil {
		return err
	}
	defer d.closeConn(parentCtx, conn)

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	_, err = conn.Exec(ctx, `
		TRUNCATE accounts, follows, posts, likes, comments;
	`)
	if err != nil {
		return errors.Wrap(err, "clearing minix db failed")
	}

	return nil
}

func (d *DBManager) openConn(ctx context.Context, dbName string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, d.Options.GetConnString(dbName))
	if err != nil {
		return nil, errors.Wrapf(err, "opening connection failed, connString=\"%s\"", d.Options.GetDebugConnString(dbName))
	}

	return conn, nil
}

func (d *DBManager) closeConn(parentCtx context.Context, conn *pgx.Conn) {
	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	err := conn.Close(ctx)
	if err != nil {
		d.Logger.Warn("closing connection failed", "error", err)
	}
}
