package postgres

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	s "github.com/jlym/minix/internal/server"
	"github.com/jlym/minix/internal/util"
)

const selectPostColumns = `
	SELECT p.post_id, p.owner_id, p.content, p.created_at,
		COALESCE((
			SELECT array_agg(l.user_id ORDER BY l.created_at)
			FROM likes l
			WHERE l.post_id = p.post_id
		), '{}')
	FROM posts p`

type PGServer struct {
	DBPool *pgxpool.Pool
	Clock  util.Clock
}

// Enforce that PGServer implements s.Server interface.
var _ s.Server = &PGServer{}

func NewPGServer(parentCtx context.Context, connOptions *ConnStringOptions) (*PGServer, error) {
	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	dbName := connOptions.appDBName()
	dbPool, err := pgxpool.New(ctx, connOptions.GetConnString(dbName))
	if err != nil {
		return nil, errors.Wrapf(err, "creating connection pool failed, connString=\"%s\"", connOptions.GetDebugConnString(dbName))
	}

	return &PGServer{
		DBPool: dbPool,
		Clock:  util.NewMonotonicClock(util.NewRealClock()),
	}, nil
}

func (p *PGServer) Close() {
	p.DBPool.Close()
}

func (p *PGServer) CreateAccount(
	parentCtx context.Context,
	request *s.CreateAccountRequest) (*s.CreateAccountResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()
	row := p.DBPool.QueryRow(ctx, `
		INSERT INTO accounts (account_id, display_name, email, password_hash, created_at)
		VALUES (gen_random_uuid()::text, $1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING account_id, display_name, email, created_at
	`, request.DisplayName, request.Email, request.PasswordHash, p.Clock.NowUtc())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.ErrAlreadyExists
	} else if err != nil {
		return nil, errors.Wrap(err, "creating account failed")
	}

	return &s.CreateAccountResponse{Account: account}, nil
}

func (p *PGServer) GetAccount(parentCtx context.Context, request *s.GetAccountRequest) (*s.GetAccountResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	row := p.DBPool.QueryRow(ctx, `
		SELECT account_id, display_name, email, created_at
		FROM accounts
		WHERE account_id = $1
		LIMIT 1;
	`, request.AccountID)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "getting account failed")
	}

	return &s.GetAccountResponse{Account: account}, nil
}

func (p *PGServer) GetCredentials(
	parentCtx context.Context,
	request *s.GetCredentialsRequest) (*s.GetCredentialsResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	var creds s.Credentials
	err := p.DBPool.QueryRow(ctx, `
		SELECT account_id, email, password_hash
		FROM accounts
		WHERE email = $1
		LIMIT 1;
	`, request.Email).Scan(&creds.AccountID, &creds.Email, &creds.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "getting credentials failed")
	}

	return &s.GetCredentialsResponse{Credentials: &creds}, nil
}

func (p *PGServer) UpdateAccount(
	parentCtx context.Context,
	request *s.UpdateAccountRequest) (*s.UpdateAccountResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	row := p.DBPool.QueryRow(ctx, `
		UPDATE accounts
		SET display_name = COALESCE(NULLIF($1, ''), display_name),
			password_hash = COALESCE(NULLIF($2, ''), password_hash)
		WHERE account_id = $3
		RETURNING account_id, display_name, email, created_at
	`, request.DisplayName, request.PasswordHash, request.AccountID)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "updating account failed")
	}

	return &s.UpdateAccountResponse{Account: account}, nil
}

func (p *PGServer) ListPosts(parentCtx context.Context, request *s.ListPostsRequest) (*s.ListPostsResponse, error) {
	if request.AuthorIDs != nil && len(request.AuthorIDs) == 0 {
		return &s.ListPostsResponse{Posts: []*s.Post{}}, nil
	}

	query := selectPostColumns
	args := []any{}
	if request.AuthorIDs != nil {
		args = append(args, request.AuthorIDs)
		query += " WHERE p.owner_id = ANY($1)"
	}
	query += " ORDER BY p.created_at DESC"
	if request.Limit > 0 {
		args = append(args, request.Limit)
		if len(args) == 1 {
			query += " LIMIT $1"
		} else {
			query += " LIMIT $2"
		}
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	rows, err := p.DBPool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing posts failed")
	}
	defer rows.Close()

	posts := []*s.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning post failed")
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "listing posts failed")
	}

	return &s.ListPostsResponse{Posts: posts}, nil
}

func (p *PGServer) GetPost(parentCtx context.Context, request *s.GetPostRequest) (*s.GetPostResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	post, err := scanPost(p.DBPool.QueryRow(ctx, selectPostColumns+" WHERE p.post_id = $1", request.PostID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "getting post failed")
	}

	return &s.GetPostResponse{Post: post}, nil
}

func (p *PGServer) CreatePost(parentCtx context.Context, request *s.CreatePostRequest) (*s.CreatePostResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	post := &s.Post{LikerIDs: []string{}}
	err := p.DBPool.QueryRow(ctx, `
		INSERT INTO posts (post_id, owner_id, content, created_at)
		VALUES (gen_random_uuid()::text, $1, $2, $3)
		RETURNING post_id, owner_id, content, created_at
	`, request.CallerID, request.Content, p.Clock.NowUtc()).Scan(&post.PostID, &post.OwnerID, &post.Content, &post.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "creating post failed")
	}
	post.CreatedAt = post.CreatedAt.UTC()

	return &s.CreatePostResponse{
		CallerID: request.CallerID,
		Post:     post,
	}, nil
}

func (p *PGServer) DeletePost(parentCtx context.Context, request *s.DeletePostRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}

	return p.withTx(parentCtx, "deleting post", func(ctx context.Context, tx pgx.Tx) error {
		var ownerID string
		err := tx.QueryRow(ctx, `SELECT owner_id FROM posts WHERE post_id = $1 FOR UPDATE`, request.PostID).Scan(&ownerID)
		if errors.Is(err, pgx.ErrNoRows) {
			return s.ErrNotFound
		} else if err != nil {
			return err
		}
		if ownerID != request.CallerID {
			return s.ErrPermissionDenied
		}

		for _, stmt := range []string{
			`DELETE FROM likes WHERE post_id = $1`,
			`DELETE FROM comments WHERE post_id = $1`,
			`DELETE FROM posts WHERE post_id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, request.PostID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *PGServer) GetLike(parentCtx context.Context, request *s.LikeRequest) (*s.GetLikeResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	var liked bool
	err := p.DBPool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM likes WHERE post_id = $1 AND user_id = $2)
	`, request.PostID, request.CallerID).Scan(&liked)
	if err != nil {
		return nil, errors.Wrap(err, "getting like failed")
	}

	return &s.GetLikeResponse{Liked: liked}, nil
}

func (p *PGServer) CreateLike(parentCtx context.Context, request *s.LikeRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}

	return p.withTx(parentCtx, "creating like", func(ctx context.Context, tx pgx.Tx) error {
		if err := requireExists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM posts WHERE post_id = $1)`, request.PostID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO likes (post_id, user_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (post_id, user_id) DO NOTHING
		`, request.PostID, request.CallerID, p.Clock.NowUtc())
		return err
	})
}

func (p *PGServer) DeleteLike(parentCtx context.Context, request *s.LikeRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	_, err := p.DBPool.Exec(ctx, `DELETE FROM likes WHERE post_id = $1 AND user_id = $2`, request.PostID, request.CallerID)
	if err != nil {
		return errors.Wrap(err, "deleting like failed")
	}
	return nil
}

func (p *PGServer) ListComments(
	parentCtx context.Context,
	request *s.ListCommentsRequest) (*s.ListCommentsResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	rows, err := p.DBPool.Query(ctx, `
		SELECT comment_id, post_id, owner_id, content, created_at
		FROM comments
		WHERE post_id = $1
		ORDER BY created_at ASC
	`, request.PostID)
	if err != nil {
		return nil, errors.Wrap(err, "listing comments failed")
	}
	defer rows.Close()

	comments := []*s.Comment{}
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning comment failed")
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "listing comments failed")
	}

	return &s.ListCommentsResponse{Comments: comments}, nil
}

func (p *PGServer) GetComment(parentCtx context.Context, request *s.GetCommentRequest) (*s.GetCommentResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	comment, err := scanComment(p.DBPool.QueryRow(ctx, `
		SELECT comment_id, post_id, owner_id, content, created_at
		FROM comments
		WHERE post_id = $1 AND comment_id = $2
	`, request.PostID, request.CommentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "getting comment failed")
	}

	return &s.GetCommentResponse{Comment: comment}, nil
}

func (p *PGServer) CreateComment(
	parentCtx context.Context,
	request *s.CreateCommentRequest) (*s.CreateCommentResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	var comment *s.Comment
	err := p.withTx(parentCtx, "creating comment", func(ctx context.Context, tx pgx.Tx) error {
		if err := requireExists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM posts WHERE post_id = $1)`, request.PostID); err != nil {
			return err
		}
		var err error
		comment, err = scanComment(tx.QueryRow(ctx, `
			INSERT INTO comments (comment_id, post_id, owner_id, content, created_at)
			VALUES (gen_random_uuid()::text, $1, $2, $3, $4)
			RETURNING comment_id, post_id, owner_id, content, created_at
		`, request.PostID, request.CallerID, request.Content, p.Clock.NowUtc()))
		return err
	})
	if err != nil {
		return nil, err
	}

	return &s.CreateCommentResponse{Comment: comment}, nil
}

func (p *PGServer) DeleteComment(parentCtx context.Context, request *s.DeleteCommentRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}

	return p.withTx(parentCtx, "deleting comment", func(ctx context.Context, tx pgx.Tx) error {
		var ownerID string
		err := tx.QueryRow(ctx, `
			SELECT owner_id FROM comments WHERE post_id = $1 AND comment_id = $2 FOR UPDATE
		`, request.PostID, request.CommentID).Scan(&ownerID)
		if errors.Is(err, pgx.ErrNoRows) {
			return s.ErrNotFound
		} else if err != nil {
			return err
		}
		if ownerID != request.CallerID {
			return s.ErrPermissionDenied
		}

		_, err = tx.Exec(ctx, `DELETE FROM comments WHERE comment_id = $1`, request.CommentID)
		return err
	})
}

func (p *PGServer) GetFollow(parentCtx context.Context, request *s.FollowRequest) (*s.GetFollowResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	var following bool
	err := p.DBPool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followed_id = $2)
	`, request.CallerID, request.TargetUserID).Scan(&following)
	if err != nil {
		return nil, errors.Wrap(err, "getting follow failed")
	}

	return &s.GetFollowResponse{Following: following}, nil
}

func (p *PGServer) CreateFollow(parentCtx context.Context, request *s.FollowRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}

	return p.withTx(parentCtx, "creating follow", func(ctx context.Context, tx pgx.Tx) error {
		if err := requireExists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE account_id = $1)`, request.TargetUserID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO follows (follower_id, followed_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (follower_id, followed_id) DO NOTHING
		`, request.CallerID, request.TargetUserID, p.Clock.NowUtc())
		return err
	})
}

func (p *PGServer) DeleteFollow(parentCtx context.Context, request *s.FollowRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	_, err := p.DBPool.Exec(ctx, `
		DELETE FROM follows WHERE follower_id = $1 AND followed_id = $2
	`, request.CallerID, request.TargetUserID)
	if err != nil {
		return errors.Wrap(err, "deleting follow failed")
	}
	return nil
}

func (p *PGServer) ListFollowed(
	parentCtx context.Context,
	request *s.ListFollowedRequest) (*s.ListFollowedResponse, error) {

	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	rows, err := p.DBPool.Query(ctx, `
		SELECT followed_id FROM follows WHERE follower_id = $1 ORDER BY created_at
	`, request.CallerID)
	if err != nil {
		return nil, errors.Wrap(err, "listing followed users failed")
	}

	userIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "listing followed users failed")
	}

	return &s.ListFollowedResponse{UserIDs: userIDs}, nil
}

func (p *PGServer) withTx(parentCtx context.Context, action string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	ctx, cancel := getQueryContext(parentCtx)
	defer cancel()

	tx, err := p.DBPool.Begin(ctx)
	if err != nil {
		return errors.Wrapf(err, "%s failed", action)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		if isSentinel(err) {
			return err
		}
		return errors.Wrapf(err, "%s failed", action)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrapf(err, "%s failed", action)
	}
	return nil
}

func requireExists(ctx context.Context, tx pgx.Tx, query string, args ...any) error {
	var exists bool
	if err := tx.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return s.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*s.Account, error) {
	var account s.Account
	if err := row.Scan(&account.AccountID, &account.DisplayName, &account.Email, &account.CreatedAt); err != nil {
		return nil, err
	}
	account.CreatedAt = account.CreatedAt.UTC()
	return &account, nil
}

func scanPost(row pgx.Row) (*s.Post, error) {
	var post s.Post
	if err := row.Scan(&post.PostID, &post.OwnerID, &post.Content, &post.CreatedAt, &post.LikerIDs); err != nil {
		return nil, err
	}
	if post.LikerIDs == nil {
		post.LikerIDs = []string{}
	}
	post.CreatedAt = post.CreatedAt.UTC()
	post.LikeCount = len(post.LikerIDs)
	return &post, nil
}

func scanComment(row pgx.Row) (*s.Comment, error) {
	var comment s.Comment
	if err := row.Scan(&comment.CommentID, &comment.PostID, &comment.OwnerID, &comment.Content, &comment.CreatedAt); err != nil {
		return nil, err
	}
	comment.CreatedAt = comment.CreatedAt.UTC()
	return &comment, nil
}

func isSentinel(err error) bool {
	return errors.Is(err, s.ErrNotFound) ||
		errors.Is(err, s.ErrAlreadyExists) ||
		errors.Is(err, s.ErrPermissionDenied)
}

func getQueryContext(parentCtx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parentCtx, 10*time.Second)
}
