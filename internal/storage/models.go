package storage

import (
	"database/sql"
	"strings"
	"time"

	s "github.com/jlym/minix/internal/server"
)

// Rows as stored in SQLite. Timestamps are unix nanoseconds.

type accountRow struct {
	AccountID    string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    int64
}

func (r *accountRow) toAccount() *s.Account {
	return &s.Account{
		AccountID:   r.AccountID,
		DisplayName: r.DisplayName,
		Email:       r.Email,
		CreatedAt:   fromNanos(r.CreatedAt),
	}
}

type postRow struct {
	PostID    string
	OwnerID   string
	Content   string
	CreatedAt int64
	LikerIDs  sql.NullString
}

func (r *postRow) toPost() *s.Post {
	likerIDs := []string{}
	if r.LikerIDs.Valid && r.LikerIDs.String != "" {
		likerIDs = strings.Split(r.LikerIDs.String, ",")
	}
	return &s.Post{
		PostID:    r.PostID,
		OwnerID:   r.OwnerID,
		Content:   r.Content,
		CreatedAt: fromNanos(r.CreatedAt),
		LikerIDs:  likerIDs,
		LikeCount: len(likerIDs),
	}
}

type commentRow struct {
	CommentID string
	PostID    string
	OwnerID   string
	Content   string
	CreatedAt int64
}

func (r *commentRow) toComment() *s.Comment {
	return &s.Comment{
		CommentID: r.CommentID,
		PostID:    r.PostID,
		OwnerID:   r.OwnerID,
		Content:   r.Content,
		CreatedAt: fromNanos(r.CreatedAt),
	}
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
