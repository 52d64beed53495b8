package storage_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	s "github.com/jlym/minix/internal/server"
	"github.com/jlym/minix/internal/storage"
	"github.com/jlym/minix/internal/util"
)

func newTestServer(ctx context.Context, t *testing.T) *storage.SQLiteServer {
	server, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(server.Close)
	return server
}

func getTestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func createAccount(ctx context.Context, t *testing.T, server s.Server) *s.Account {
	resp, err := server.CreateAccount(ctx, &s.CreateAccountRequest{
		DisplayName:  gofakeit.Username(),
		Email:        gofakeit.Email(),
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return resp.Account
}

func TestCreateAccount(t *testing.T) {
	ctx, cancel := getTestContext()
	defer cancel()
	server := newTestServer(ctx, t)
	stubClock := util.NewStubClock()
	server.Clock = stubClock

	displayName := gofakeit.Username()
	email := gofakeit.Email()

	resp, err := server.CreateAccount(ctx, &s.CreateAccountRequest{
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Account.AccountID)
	require.Equal(t, displayName, resp.Account.DisplayName)
	require.Equal(t, email, resp.Account.Email)
	require.Equal(t, stubClock.NowUtc(), resp.Account.CreatedAt)

	getResp, err := server.GetAccount(ctx, &s.GetAccountRequest{AccountID: resp.Account.AccountID})
	require.NoError(t, err)
	require.Equal(t, resp.Account, getResp.Account)

	credsResp, err := server.GetCredentials(ctx, &s.GetCredentialsRequest{Email: email})
	require.NoError(t, err)
	require.Equal(t, resp.Account.AccountID, credsResp.Credentials.AccountID)
	require.Equal(t, "hash", credsResp.Credentials.PasswordHash)

	// Act: Registering the same email again.
	_, err = server.CreateAccount(ctx, &s.CreateAccountRequest{
		DisplayName:  gofakeit.Username(),
		Email:        email,
		PasswordHash: "other",
	})
	require.ErrorIs(t, err, s.ErrAlreadyExists)
}

func TestUpdateAccount(t *testing.T) {
	ctx, cancel := getTestContext()
	defer cancel()
	server := newTestServer(ctx, t)
	account := createAccount(ctx, t, server)

	resp, err := server.UpdateAccount(ctx, &s.UpdateAccountRequest{
		AccountID:   account.AccountID,
		DisplayName: "renamed",
	})
	require.NoError(t, err)
	require.Equal(t, "renamed", resp.Account.DisplayName)

	credsResp, err := server.GetCredentials(ctx, &s.GetCredentialsRequest{Email: account.Email})
	require.NoError(t, err)
	require.Equal(t, "hash", credsResp.Credentials.PasswordHash)

	_, err = server.UpdateAccount(ctx, &s.UpdateAccountRequest{AccountID: "missing", DisplayName: "x"})
	require.ErrorIs(t, err, s.ErrNotFound)
}

func TestPost(t *testing.T) {
	ctx, cancel := getTestContext()
	defer cancel()
	server := newTestServer(ctx, t)

	// Setup: Create a creator and 2 viewers.
	creator := createAccount(ctx, t, server)
	viewer1 := createAccount(ctx, t, server)
	viewer2 := createAccount(ctx, t, server)

	// Act: The creator writes a post.
	content := gofakeit.Sentence(8)
	createResp, err := server.CreatePost(ctx, &s.CreatePostRequest{
		CallerID: creator.AccountID,
		Content:  content,
	})
	require.NoError(t, err)
	post := createResp.Post
	require.NotEmpty(t, post.PostID)
	require.Equal(t, content, post.Content)
	require.Equal(t, creator.AccountID, post.OwnerID)
	require.Equal(t, 0, post.LikeCount)
	require.Empty(t, post.LikerIDs)

	// Act: Both viewers like it, viewer 1 twice.
	for _, id := range []string{viewer1.AccountID, viewer1.AccountID, viewer2.AccountID} {
		err = server.CreateLike(ctx, &s.LikeRequest{CallerID: id, PostID: post.PostID})
		require.NoError(t, err)
	}

	// Assert: Like count equals the size of the liker set.
	getResp, err := server.GetPost(ctx, &s.GetPostRequest{PostID: post.PostID})
	require.NoError(t, err)
	require.Equal(t, 2, getResp.Post.LikeCount)
	require.Equal(t, []string{viewer1.AccountID, viewer2.AccountID}, getResp.Post.LikerIDs)

	likeResp, err := server.GetLike(ctx, &s.LikeRequest{CallerID: viewer2.AccountID, PostID: post.PostID})
	require.NoError(t, err)
	require.True(t, likeResp.Liked)

	// Act: Viewer 2 unlikes.
	err = server.DeleteLike(ctx, &s.LikeRequest{CallerID: viewer2.AccountID, PostID: post.PostID})
	require.NoError(t, err)

	getResp, err = server.GetPost(ctx, &s.GetPostRequest{PostID: post.PostID})
	require.NoError(t, err)
	require.Equal(t, 1, getResp.Post.LikeCount)
	require.False(t, getResp.Post.LikedBy(viewer2.AccountID))

	// Act: Liking a post that does not exist.
	err = server.CreateLike(ctx, &s.LikeRequest{CallerID: viewer1.AccountID, PostID: "missing"})
	require.ErrorIs(t, err, s.ErrNotFound)
}

func TestListPosts_OrderAndFilter(t *testing.T) {
	ctx, cancel := getTestContext()
	defer cancel()
	server := newTestServer(ctx, t)
	stubClock := util.NewStubClock()
	server.Clock = util.NewMonotonicClock(stubClock)

	alice := createAccount(ctx, t, server)
	bob := createAccount(ctx, t, server)

	var created []string
	for i, owner := range []string{alice.AccountID, bob.AccountID, alice.AccountID} {
		resp, err := server.CreatePost(ctx, &s.CreatePostRequest{
			CallerID: owner,
			Content:  gofakeit.Sentence(i + 3),
		})
		require.NoError(t, err)
		created = append(created, resp.Post.PostID)
	}

	listResp, err := server.ListPosts(ctx, &s.ListPostsRequest{})
	require.NoError(t, err)
	require.Len(t, listResp.Posts, 3)
	require.Equal(t, created[2], listResp.Posts[0].PostID)
	require.Equal(t, created[1], listResp.Posts[1].PostID)
	require.Equal(t, created[0], listResp.Posts[2].PostID)

	listResp, err = server.ListPosts(ctx, &s.ListPostsRequest{AuthorIDs: []string{alice.AccountID}})
	require.NoError(t, err)
	require.Len(t, listResp.Posts, 2)
	for _, post := range listResp.Posts {
		require.Equal(t, alice.AccountID, post.OwnerID)
	}

	listResp, err = server.ListPosts(ctx, &s.ListPostsRequest{AuthorIDs: []string{}})
	require.NoError(t, err)
	require.Empty(t, listResp.Posts)

	listResp, err = server.ListPosts(ctx, &s.ListPostsRequest{Limit: 1})
	require.NoError(t, err)
	require.Len(t, listResp.Posts, 1)
}

func TestDeletePost_OnlyOwner(t *testing.T) {
	ctx, cancel := getTestContext()
	defer cancel()
	server := newTestServer(ctx, t)

	owner := createAccount(ctx, t, server)
	other := createAccount(ctx, t, server)
	createResp, err := server.CreatePost(ctx, &s.CreatePostRequest{CallerID: owner.AccountID, Content: "hello"})
	require.NoError(t, err)
	postID := createResp.Post.PostID
	_, err = server.CreateComment(ctx, &s.CreateCommentRequest{CallerID: other.AccountID, PostID: postID, Content: "hi"})
	require.NoError(t, err)
	require.NoError(t, server.CreateLike(ctx, &s.LikeRequest{CallerID: other.AccountID, PostID: postID}))

	err = server.DeletePost(ctx, &s.DeletePostRequest{CallerID: other.AccountID, PostID: postID})
	require.ErrorIs(t, err, s.ErrPermissionDenied)
	_, err = server.GetPost(ctx, &s.GetPostRequest{PostID: postID})
	require.NoError(t, err)

	err = server.DeletePost(ctx, &s.DeletePostRequest{CallerID: owner.AccountID, PostID: postID})
	require.NoError(t, err)
	_, err = server.GetPost(ctx, &s.GetPostRequest{PostID: postID})
	require.ErrorIs(t, err, s.ErrNotFound)

	commentsResp, err := server.ListComments(ctx, &s.ListCommentsRequest{PostID: postID})
	require.NoError(t, err)
	require.Empty(t, commentsResp.Comments)

	err = server.DeletePost(ctx, &s.DeletePostRequest{CallerID: owner.AccountID, PostID: postID})
	require.ErrorIs(t, err, s.ErrNotFound)
}

func TestComments(t *testing.T) {
	ctx, cancel := getTestContext()
	defer cancel()
	server := newTestServer(ctx, t)

	author := createAccount(ctx, t, server)
	replier := createAccount(ctx, t, server)
	createResp, err := server.CreatePost(ctx, &s.CreatePostRequest{CallerID: author.AccountID, Content: "post"})
	require.NoError(t, err)
	postID := createResp.Post.PostID

	first, err := server.CreateComment(ctx, &s.CreateCommentRequest{CallerID: replier.AccountID, PostID: postID, Content: "first"})
	require.NoError(t, err)
	second, err := server.CreateComment(ctx, &s.CreateCommentRequest{CallerID: author.AccountID, PostID: postID, Content: "second"})
	require.NoError(t, err)

	// Assert: Comments come back oldest first.
	listResp, err := server.ListComments(ctx, &s.ListCommentsRequest{PostID: postID})
	require.NoError(t, err)
	require.Len(t, listResp.Comments, 2)
	require.Equal(t, first.Comment.CommentID, listResp.Comments[0].CommentID)
	require.Equal(t, second.Comment.CommentID, listResp.Comments[1].CommentID)

	getResp, err := server.GetComment(ctx, &s.GetCommentRequest{PostID: postID, CommentID: first.Comment.CommentID})
	require.NoError(t, err)
	require.Equal(t, first.Comment, getResp.Comment)

	// Act: The post author cannot delete somebody else's comment.
	err = server.DeleteComment(ctx, &s.DeleteCommentRequest{CallerID: author.AccountID, PostID: postID, CommentID: first.Comment.CommentID})
	require.ErrorIs(t, err, s.ErrPermissionDenied)

	err = server.DeleteComment(ctx, &s.DeleteCommentRequest{CallerID: replier.AccountID, PostID: postID, CommentID: first.Comment.CommentID})
	require.NoError(t, err)

	listResp, err = server.ListComments(ctx, &s.ListCommentsRequest{PostID: postID})
	require.NoError(t, err)
	require.Len(t, listResp.Comments, 1)

	_, err = server.CreateComment(ctx, &s.CreateCommentRequest{CallerID: replier.AccountID, PostID: "missing", Content: "x"})
	require.ErrorIs(t, err, s.ErrNotFound)
}

func TestFollowUser(t *testing.T) {
	ctx, cancel := getTestContext()
	defer cancel()
	server := newTestServer(ctx, t)

	viewer := createAccount(ctx, t, server)
	creator := createAccount(ctx, t, server)

	followResp, err := server.GetFollow(ctx, &s.FollowRequest{CallerID: viewer.AccountID, TargetUserID: creator.AccountID})
	require.NoError(t, err)
	require.False(t, followResp.Following)

	err = server.CreateFollow(ctx, &s.FollowRequest{CallerID: viewer.AccountID, TargetUserID: creator.AccountID})
	require.NoError(t, err)

	followResp, err = server.GetFollow(ctx, &s.FollowRequest{CallerID: viewer.AccountID, TargetUserID: creator.AccountID})
	require.NoError(t, err)
	require.True(t, followResp.Following)

	// Assert: The edge is directed.
	followResp, err = server.GetFollow(ctx, &s.FollowRequest{CallerID: creator.AccountID, TargetUserID: viewer.AccountID})
	require.NoError(t, err)
	require.False(t, followResp.Following)

	listResp, err := server.ListFollowed(ctx, &s.ListFollowedRequest{CallerID: viewer.AccountID})
	require.NoError(t, err)
	require.Equal(t, []string{creator.AccountID}, listResp.UserIDs)

	err = server.DeleteFollow(ctx, &s.FollowRequest{CallerID: viewer.AccountID, TargetUserID: creator.AccountID})
	require.NoError(t, err)
	listResp, err = server.ListFollowed(ctx, &s.ListFollowedRequest{CallerID: viewer.AccountID})
	require.NoError(t, err)
	require.Empty(t, listResp.UserIDs)

	err = server.CreateFollow(ctx, &s.FollowRequest{CallerID: viewer.AccountID, TargetUserID: viewer.AccountID})
	require.Error(t, err)
	err = server.CreateFollow(ctx, &s.FollowRequest{CallerID: viewer.AccountID, TargetUserID: "missing"})
	require.ErrorIs(t, err, s.ErrNotFound)
}

func TestTruncateTables(t *testing.T) {
	ctx, cancel := getTestContext()
	defer cancel()
	server := newTestServer(ctx, t)

	account := createAccount(ctx, t, server)
	_, err := server.CreatePost(ctx, &s.CreatePostRequest{CallerID: account.AccountID, Content: "x"})
	require.NoError(t, err)

	require.NoError(t, server.TruncateTables(ctx))

	listResp, err := server.ListPosts(ctx, &s.ListPostsRequest{})
	require.NoError(t, err)
	require.Empty(t, listResp.Posts)
	_, err = server.GetAccount(ctx, &s.GetAccountRequest{AccountID: account.AccountID})
	require.ErrorIs(t, err, s.ErrNotFound)
}

func newMockServer(t *testing.T) (*storage.SQLiteServer, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	server := storage.NewSQLiteServer(db)
	server.NewID = func() string { return "id-1" }
	return server, mock
}

func TestSQLiteServer_GetAccountNotFound(t *testing.T) {
	server, mock := newMockServer(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "display_name", "email", "created_at"}))

	_, err := server.GetAccount(context.Background(), &s.GetAccountRequest{AccountID: "missing"})
	require.ErrorIs(t, err, s.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteServer_CreateAccountConflict(t *testing.T) {
	server, mock := newMockServer(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WithArgs("id-1", "name", "a@gmail.com", "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := server.CreateAccount(context.Background(), &s.CreateAccountRequest{
		DisplayName:  "name",
		Email:        "a@gmail.com",
		PasswordHash: "hash",
	})
	require.ErrorIs(t, err, s.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteServer_DeletePostRollsBackForNonOwner(t *testing.T) {
	server, mock := newMockServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT owner_id FROM posts")).
		WithArgs("post-1").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("A"))
	mock.ExpectRollback()

	err := server.DeletePost(context.Background(), &s.DeletePostRequest{CallerID: "B", PostID: "post-1"})
	require.ErrorIs(t, err, s.ErrPermissionDenied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteServer_ListPostsWrapsDriverErrors(t *testing.T) {
	server, mock := newMockServer(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM posts p")).
		WillReturnError(errors.New("disk I/O error"))

	_, err := server.ListPosts(context.Background(), &s.ListPostsRequest{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "listing posts failed")
	require.NotErrorIs(t, err, s.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteServer_RejectsInvalidRequests(t *testing.T) {
	server, mock := newMockServer(t)
	ctx := context.Background()

	_, err := server.CreatePost(ctx, &s.CreatePostRequest{CallerID: "A"})
	require.EqualError(t, err, "request.Content was empty")
	err = server.CreateLike(ctx, &s.LikeRequest{PostID: "p"})
	require.EqualError(t, err, "request.CallerID was empty")
	require.NoError(t, mock.ExpectationsWereMet())
}
