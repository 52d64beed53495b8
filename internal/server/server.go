// Package server defines the contract of the remote data backend that the
// client talks to: accounts, posts with their likes, comments and follow edges.
// Identifiers and timestamps are assigned by the backend.
package server

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrAlreadyExists    = errors.New("record already exists")
	ErrPermissionDenied = errors.New("permission denied")
)

type Server interface {
	CreateAccount(ctx context.Context, request *CreateAccountRequest) (*CreateAccountResponse, error)
	GetAccount(ctx context.Context, request *GetAccountRequest) (*GetAccountResponse, error)
	GetCredentials(ctx context.Context, request *GetCredentialsRequest) (*GetCredentialsResponse, error)
	UpdateAccount(ctx context.Context, request *UpdateAccountRequest) (*UpdateAccountResponse, error)

	ListPosts(ctx context.Context, request *ListPostsRequest) (*ListPostsResponse, error)
	GetPost(ctx context.Context, request *GetPostRequest) (*GetPostResponse, error)
	CreatePost(ctx context.Context, request *CreatePostRequest) (*CreatePostResponse, error)
	DeletePost(ctx context.Context, request *DeletePostRequest) error

	GetLike(ctx context.Context, request *LikeRequest) (*GetLikeResponse, error)
	CreateLike(ctx context.Context, request *LikeRequest) error
	DeleteLike(ctx context.Context, request *LikeRequest) error

	ListComments(ctx context.Context, request *ListCommentsRequest) (*ListCommentsResponse, error)
	GetComment(ctx context.Context, request *GetCommentRequest) (*GetCommentResponse, error)
	CreateComment(ctx context.Context, request *CreateCommentRequest) (*CreateCommentResponse, error)
	DeleteComment(ctx context.Context, request *DeleteCommentRequest) error

	GetFollow(ctx context.Context, request *FollowRequest) (*GetFollowResponse, error)
	CreateFollow(ctx context.Context, request *FollowRequest) error
	DeleteFollow(ctx context.Context, request *FollowRequest) error
	ListFollowed(ctx context.Context, request *ListFollowedRequest) (*ListFollowedResponse, error)

	Close()
}
