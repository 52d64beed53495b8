// Package storage is the embedded backend: the same record model as the
// Postgres backend, kept in a local SQLite file (or in memory).
package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	s "github.com/jlym/minix/internal/server"
	"github.com/jlym/minix/internal/util"
)

const driverName = "sqlite"

const selectPostColumns = `
	SELECT p.post_id, p.owner_id, p.content, p.created_at,
		(SELECT group_concat(user_id) FROM (
			SELECT user_id FROM likes WHERE likes.post_id = p.post_id ORDER BY created_at
		))
	FROM posts p`

type SQLiteServer struct {
	DB    *sql.DB
	Clock util.Clock
	NewID func() string
}

// Enforce that SQLiteServer implements s.Server interface.
var _ s.Server = &SQLiteServer{}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*SQLiteServer, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening sqlite database failed, path=\"%s\"", path)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	server := NewSQLiteServer(db)
	if err := server.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return server, nil
}

func NewSQLiteServer(db *sql.DB) *SQLiteServer {
	return &SQLiteServer{
		DB:    db,
		Clock: util.NewMonotonicClock(util.NewRealClock()),
		NewID: uuid.NewString,
	}
}

func (p *SQLiteServer) Close() {
	p.DB.Close()
}

func (p *SQLiteServer) CreateAccount(
	parentCtx context.Context,
	request *s.CreateAccountRequest) (*s.CreateAccountResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	row := accountRow{
		AccountID:    p.NewID(),
		DisplayName:  request.DisplayName,
		Email:        request.Email,
		PasswordHash: request.PasswordHash,
		CreatedAt:    toNanos(p.Clock.NowUtc()),
	}
	res, err := p.DB.ExecContext(ctx, `
		INSERT INTO accounts (account_id, display_name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (email) DO NOTHING
	`, row.AccountID, row.DisplayName, row.Email, row.PasswordHash, row.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "creating account failed")
	}
	if err := expectOneRow(res, s.ErrAlreadyExists); err != nil {
		return nil, err
	}

	return &s.CreateAccountResponse{Account: row.toAccount()}, nil
}

func (p *SQLiteServer) GetAccount(
	parentCtx context.Context,
	request *s.GetAccountRequest) (*s.GetAccountResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	var row accountRow
	err := p.DB.QueryRowContext(ctx, `
		SELECT account_id, display_name, email, created_at
		FROM accounts
		WHERE account_id = ?
	`, request.AccountID).Scan(&row.AccountID, &row.DisplayName, &row.Email, &row.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, s.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "getting account failed")
	}

	return &s.GetAccountResponse{Account: row.toAccount()}, nil
}

func (p *SQLiteServer) GetCredentials(
	parentCtx context.Context,
	request *s.GetCredentialsRequest) (*s.GetCredentialsResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	var creds s.Credentials
	err := p.DB.QueryRowContext(ctx, `
		SELECT account_id, email, password_hash
		FROM accounts
		WHERE email = ?
	`, request.Email).Scan(&creds.AccountID, &creds.Email, &creds.PasswordHash)
	if err == sql.ErrNoRows {
		return nil, s.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "getting credentials failed")
	}

	return &s.GetCredentialsResponse{Credentials: &creds}, nil
}

func (p *SQLiteServer) UpdateAccount(
	parentCtx context.Context,
	request *s.UpdateAccountRequest) (*s.UpdateAccountResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	res, err := p.DB.ExecContext(ctx, `
		UPDATE accounts
		SET display_name = COALESCE(NULLIF(?, ''), display_name),
			password_hash = COALESCE(NULLIF(?, ''), password_hash)
		WHERE account_id = ?
	`, request.DisplayName, request.PasswordHash, request.AccountID)
	cancel()
	if err != nil {
		return nil, errors.Wrap(err, "updating account failed")
	}
	if err := expectOneRow(res, s.ErrNotFound); err != nil {
		return nil, err
	}

	getResp, err := p.GetAccount(parentCtx, &s.GetAccountRequest{AccountID: request.AccountID})
	if err != nil {
		return nil, err
	}
	return &s.UpdateAccountResponse{Account: getResp.Account}, nil
}

func (p *SQLiteServer) ListPosts(
	parentCtx context.Context,
	request *s.ListPostsRequest) (*s.ListPostsResponse, error) {

	if request.AuthorIDs != nil && len(request.AuthorIDs) == 0 {
		return &s.ListPostsResponse{Posts: []*s.Post{}}, nil
	}

	query := selectPostColumns
	args := make([]any, 0, len(request.AuthorIDs)+1)
	if request.AuthorIDs != nil {
		query += " WHERE p.owner_id IN (" + placeholders(len(request.AuthorIDs)) + ")"
		for _, id := range request.AuthorIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY p.created_at DESC"
	if request.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, request.Limit)
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing posts failed")
	}
	defer rows.Close()

	posts := []*s.Post{}
	for rows.Next() {
		var row postRow
		if err := rows.Scan(&row.PostID, &row.OwnerID, &row.Content, &row.CreatedAt, &row.LikerIDs); err != nil {
			return nil, errors.Wrap(err, "scanning post failed")
		}
		posts = append(posts, row.toPost())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "listing posts failed")
	}

	return &s.ListPostsResponse{Posts: posts}, nil
}

func (p *SQLiteServer) GetPost(
	parentCtx context.Context,
	request *s.GetPostRequest) (*s.GetPostResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	var row postRow
	err := p.DB.QueryRowContext(ctx, selectPostColumns+" WHERE p.post_id = ?", request.PostID).
		Scan(&row.PostID, &row.OwnerID, &row.Content, &row.CreatedAt, &row.LikerIDs)
	if err == sql.ErrNoRows {
		return nil, s.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "getting post failed")
	}

	return &s.GetPostResponse{Post: row.toPost()}, nil
}

func (p *SQLiteServer) CreatePost(
	parentCtx context.Context,
	request *s.CreatePostRequest) (*s.CreatePostResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	row := postRow{
		PostID:    p.NewID(),
		OwnerID:   request.CallerID,
		Content:   request.Content,
		CreatedAt: toNanos(p.Clock.NowUtc()),
	}
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO posts (post_id, owner_id, content, created_at)
		VALUES (?, ?, ?, ?)
	`, row.PostID, row.OwnerID, row.Content, row.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "creating post failed")
	}

	return &s.CreatePostResponse{
		CallerID: request.CallerID,
		Post:     row.toPost(),
	}, nil
}

func (p *SQLiteServer) DeletePost(parentCtx context.Context, request *s.DeletePostRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}

	return p.withTx(parentCtx, "deleting post", func(ctx context.Context, tx *sql.Tx) error {
		var ownerID string
		err := tx.QueryRowContext(ctx, `SELECT owner_id FROM posts WHERE post_id = ?`, request.PostID).Scan(&ownerID)
		if err == sql.ErrNoRows {
			return s.ErrNotFound
		} else if err != nil {
			return err
		}
		if ownerID != request.CallerID {
			return s.ErrPermissionDenied
		}

		for _, stmt := range []string{
			`DELETE FROM likes WHERE post_id = ?`,
			`DELETE FROM comments WHERE post_id = ?`,
			`DELETE FROM posts WHERE post_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, request.PostID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *SQLiteServer) GetLike(
	parentCtx context.Context,
	request *s.LikeRequest) (*s.GetLikeResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	var liked bool
	err := p.DB.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM likes WHERE post_id = ? AND user_id = ?)
	`, request.PostID, request.CallerID).Scan(&liked)
	if err != nil {
		return nil, errors.Wrap(err, "getting like failed")
	}

	return &s.GetLikeResponse{Liked: liked}, nil
}

func (p *SQLiteServer) CreateLike(parentCtx context.Context, request *s.LikeRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}

	return p.withTx(parentCtx, "creating like", func(ctx context.Context, tx *sql.Tx) error {
		if err := requireExists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM posts WHERE post_id = ?)`, request.PostID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO likes (post_id, user_id, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT (post_id, user_id) DO NOTHING
		`, request.PostID, request.CallerID, toNanos(p.Clock.NowUtc()))
		return err
	})
}

func (p *SQLiteServer) DeleteLike(parentCtx context.Context, request *s.LikeRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	_, err := p.DB.ExecContext(ctx, `DELETE FROM likes WHERE post_id = ? AND user_id = ?`, request.PostID, request.CallerID)
	if err != nil {
		return errors.Wrap(err, "deleting like failed")
	}
	return nil
}

func (p *SQLiteServer) ListComments(
	parentCtx context.Context,
	request *s.ListCommentsRequest) (*s.ListCommentsResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	rows, err := p.DB.QueryContext(ctx, `
		SELECT comment_id, post_id, owner_id, content, created_at
		FROM comments
		WHERE post_id = ?
		ORDER BY created_at ASC
	`, request.PostID)
	if err != nil {
		return nil, errors.Wrap(err, "listing comments failed")
	}
	defer rows.Close()

	comments := []*s.Comment{}
	for rows.Next() {
		var row commentRow
		if err := rows.Scan(&row.CommentID, &row.PostID, &row.OwnerID, &row.Content, &row.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning comment failed")
		}
		comments = append(comments, row.toComment())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "listing comments failed")
	}

	return &s.ListCommentsResponse{Comments: comments}, nil
}

func (p *SQLiteServer) GetComment(
	parentCtx context.Context,
	request *s.GetCommentRequest) (*s.GetCommentResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	var row commentRow
	err := p.DB.QueryRowContext(ctx, `
		SELECT comment_id, post_id, owner_id, content, created_at
		FROM comments
		WHERE post_id = ? AND comment_id = ?
	`, request.PostID, request.CommentID).Scan(&row.CommentID, &row.PostID, &row.OwnerID, &row.Content, &row.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, s.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "getting comment failed")
	}

	return &s.GetCommentResponse{Comment: row.toComment()}, nil
}

func (p *SQLiteServer) CreateComment(
	parentCtx context.Context,
	request *s.CreateCommentRequest) (*s.CreateCommentResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	row := commentRow{
		CommentID: p.NewID(),
		PostID:    request.PostID,
		OwnerID:   request.CallerID,
		Content:   request.Content,
		CreatedAt: toNanos(p.Clock.NowUtc()),
	}
	err := p.withTx(parentCtx, "creating comment", func(ctx context.Context, tx *sql.Tx) error {
		if err := requireExists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM posts WHERE post_id = ?)`, request.PostID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comments (comment_id, post_id, owner_id, content, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, row.CommentID, row.PostID, row.OwnerID, row.Content, row.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &s.CreateCommentResponse{Comment: row.toComment()}, nil
}

func (p *SQLiteServer) DeleteComment(parentCtx context.Context, request *s.DeleteCommentRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}

	return p.withTx(parentCtx, "deleting comment", func(ctx context.Context, tx *sql.Tx) error {
		var ownerID string
		err := tx.QueryRowContext(ctx, `
			SELECT owner_id FROM comments WHERE post_id = ? AND comment_id = ?
		`, request.PostID, request.CommentID).Scan(&ownerID)
		if err == sql.ErrNoRows {
			return s.ErrNotFound
		} else if err != nil {
			return err
		}
		if ownerID != request.CallerID {
			return s.ErrPermissionDenied
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM comments WHERE comment_id = ?`, request.CommentID)
		return err
	})
}

func (p *SQLiteServer) GetFollow(
	parentCtx context.Context,
	request *s.FollowRequest) (*s.GetFollowResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	var following bool
	err := p.DB.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = ? AND followed_id = ?)
	`, request.CallerID, request.TargetUserID).Scan(&following)
	if err != nil {
		return nil, errors.Wrap(err, "getting follow failed")
	}

	return &s.GetFollowResponse{Following: following}, nil
}

func (p *SQLiteServer) CreateFollow(parentCtx context.Context, request *s.FollowRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}

	return p.withTx(parentCtx, "creating follow", func(ctx context.Context, tx *sql.Tx) error {
		if err := requireExists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE account_id = ?)`, request.TargetUserID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO follows (follower_id, followed_id, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT (follower_id, followed_id) DO NOTHING
		`, request.CallerID, request.TargetUserID, toNanos(p.Clock.NowUtc()))
		return err
	})
}

func (p *SQLiteServer) DeleteFollow(parentCtx context.Context, request *s.FollowRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	_, err := p.DB.ExecContext(ctx, `
		DELETE FROM follows WHERE follower_id = ? AND followed_id = ?
	`, request.CallerID, request.TargetUserID)
	if err != nil {
		return errors.Wrap(err, "deleting follow failed")
	}
	return nil
}

func (p *SQLiteServer) ListFollowed(
	parentCtx context.Context,
	request *s.ListFollowedRequest) (*s.ListFollowedResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	rows, err := p.DB.QueryContext(ctx, `
		SELECT followed_id FROM follows WHERE follower_id = ? ORDER BY created_at
	`, request.CallerID)
	if err != nil {
		return nil, errors.Wrap(err, "listing followed users failed")
	}
	defer rows.Close()

	userIDs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning followed user failed")
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "listing followed users failed")
	}

	return &s.ListFollowedResponse{UserIDs: userIDs}, nil
}

// withTx runs fn in a transaction. Sentinel errors from package server pass
// through unwrapped; anything else is wrapped with action.
func (p *SQLiteServer) withTx(parentCtx context.Context, action string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "%s failed", action)
	}

	if err := fn(ctx, tx); err != nil {
		tx.Rollback()
		if isSentinel(err) {
			return err
		}
		return errors.Wrapf(err, "%s failed", action)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "%s failed", action)
	}
	return nil
}

func requireExists(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return s.ErrNotFound
	}
	return nil
}

func expectOneRow(res sql.Result, otherwise error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows failed")
	}
	if affected == 0 {
		return otherwise
	}
	return nil
}

func isSentinel(err error) bool {
	return errors.Is(err, s.ErrNotFound) ||
		errors.Is(err, s.ErrAlreadyExists) ||
		errors.Is(err, s.ErrPermissionDenied)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func getQueryContext(parentCtx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parentCtx, 10*time.Second)
}
