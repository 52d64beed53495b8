package server

import (
	"time"
)

type Account struct {
	AccountID   string
	DisplayName string
	Email       string
	CreatedAt   time.Time
}

type Credentials struct {
	AccountID    string
	Email        string
	PasswordHash string
}

// Post carries its likes as the set of liker ids. LikeCount always equals
// len(LikerIDs).
type Post struct {
	PostID    string
	OwnerID   string
	Content   string
	CreatedAt time.Time
	LikerIDs  []string
	LikeCount int
}

// LikedBy reports whether userID is in the post's liker set.
func (p *Post) LikedBy(userID string) bool {
	for _, id := range p.LikerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type Comment struct {
	CommentID string
	PostID    string
	OwnerID   string
	Content   string
	CreatedAt time.Time
}

type Follow struct {
	FollowerID string
	FollowedID string
	CreatedAt  time.Time
}

type CreateAccountRequest struct {
	DisplayName  string
	Email        string
	PasswordHash string
}

type CreateAccountResponse struct {
	Account *Account
}

type GetAccountRequest struct {
	AccountID string
}

type GetAccountResponse struct {
	Account *Account
}

type GetCredentialsRequest struct {
	Email string
}

type GetCredentialsResponse struct {
	Credentials *Credentials
}

// UpdateAccountRequest changes the non-empty fields only.
type UpdateAccountRequest struct {
	AccountID    string
	DisplayName  string
	PasswordHash string
}

type UpdateAccountResponse struct {
	Account *Account
}

// ListPostsRequest filters by author when AuthorIDs is non-nil. A non-nil
// empty slice matches nothing.
type ListPostsRequest struct {
	AuthorIDs []string
	Limit     int
}

type ListPostsResponse struct {
	Posts []*Post
}

type GetPostRequest struct {
	PostID string
}

type GetPostResponse struct {
	Post *Post
}

type CreatePostRequest struct {
	CallerID string
	Content  string
}

type CreatePostResponse struct {
	CallerID string
	Post     *Post
}

type DeletePostRequest struct {
	CallerID string
	PostID   string
}

type LikeRequest struct {
	CallerID string
	PostID   string
}

type GetLikeResponse struct {
	Liked bool
}

type ListCommentsRequest struct {
	PostID string
}

type ListCommentsResponse struct {
	Comments []*Comment
}

type GetCommentRequest struct {
	PostID    string
	CommentID string
}

type GetCommentResponse struct {
	Comment *Comment
}

type CreateCommentRequest struct {
	CallerID string
	PostID   string
	Content  string
}

type CreateCommentResponse struct {
	Comment *Comment
}

type DeleteCommentRequest struct {
	CallerID  string
	PostID    string
	CommentID string
}

type FollowRequest struct {
	CallerID     string
	TargetUserID string
}

type GetFollowResponse struct {
	Following bool
}

type ListFollowedRequest struct {
	CallerID string
}

type ListFollowedResponse struct {
	UserIDs []string
}
