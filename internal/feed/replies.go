package feed

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jlym/minix/internal/events"
	s "github.com/jlym/minix/internal/server"
)

type ReplyState int

const (
	RepliesCollapsed ReplyState = iota
	RepliesLoading
	RepliesLoaded
)

func (r ReplyState) String() string {
	switch r {
	case RepliesCollapsed:
		return "collapsed"
	case RepliesLoading:
		return "loading"
	case RepliesLoaded:
		return "loaded"
	}
	return "unknown"
}

type CommentView struct {
	CommentID  string
	PostID     string
	AuthorID   string
	AuthorName string
	Content    string
	CreatedAt  time.Time
}

// replyThread is the per post reply state. Fetched comments are kept after a
// collapse so expanding again does not refetch.
type replyThread struct {
	loading  bool
	loaded   bool
	visible  bool
	seq      uint64
	comments []CommentView
}

func (r *replyThread) stateLocked() ReplyState {
	if r == nil {
		return RepliesCollapsed
	}
	if r.loading {
		return RepliesLoading
	}
	if r.loaded && r.visible {
		return RepliesLoaded
	}
	return RepliesCollapsed
}

// Replies returns the reply state of postID and, when loaded, its comments
// oldest first.
func (a *Assembler) Replies(postID string) (ReplyState, []CommentView) {
	a.lock.Lock()
	defer a.lock.Unlock()

	state, ok := a.posts[postID]
	if !ok {
		return RepliesCollapsed, nil
	}
	replyState := state.replies.stateLocked()
	if replyState != RepliesLoaded {
		return replyState, nil
	}
	return replyState, append([]CommentView{}, state.replies.comments...)
}

// LoadReplies expands the replies of postID, fetching them the first time or
// whenever force is set.
func (a *Assembler) LoadReplies(ctx context.Context, postID string, force bool) ([]CommentView, error) {
	a.lock.Lock()
	state, ok := a.posts[postID]
	if !ok {
		a.lock.Unlock()
		return nil, s.ErrNotFound
	}
	thread := state.replies
	if thread.loaded && !force {
		thread.visible = true
		comments := append([]CommentView{}, thread.comments...)
		a.lock.Unlock()
		return comments, nil
	}
	identity := a.identity
	thread.loading = true
	thread.seq++
	seq := thread.seq
	a.lock.Unlock()

	comments, err := a.fetchComments(ctx, postID)

	a.lock.Lock()
	defer a.lock.Unlock()

	if thread.seq == seq {
		thread.loading = false
	}
	if err != nil {
		a.Logger.WarnContext(ctx, "loading replies failed", "postID", postID, "error", err)
		return nil, err
	}
	if a.identity != identity || a.staleLocked(identity) {
		return nil, ErrStaleSession
	}
	if thread.seq != seq {
		return nil, ErrSuperseded
	}

	thread.comments = comments
	thread.loaded = true
	thread.visible = true
	return append([]CommentView{}, comments...), nil
}

func (a *Assembler) fetchComments(ctx context.Context, postID string) ([]CommentView, error) {
	resp, err := a.Server.ListComments(ctx, &s.ListCommentsRequest{PostID: postID})
	if err != nil {
		return nil, errors.Wrap(err, "loading replies failed")
	}

	authorIDs := make([]string, 0, len(resp.Comments))
	for _, comment := range resp.Comments {
		authorIDs = append(authorIDs, comment.OwnerID)
	}
	names := a.resolveNames(ctx, authorIDs)

	comments := make([]CommentView, 0, len(resp.Comments))
	for _, comment := range resp.Comments {
		comments = append(comments, CommentView{
			CommentID:  comment.CommentID,
			PostID:     comment.PostID,
			AuthorID:   comment.OwnerID,
			AuthorName: names[comment.OwnerID],
			Content:    comment.Content,
			CreatedAt:  comment.CreatedAt,
		})
	}
	return comments, nil
}

// ToggleReplies collapses visible replies, or expands them, fetching only on
// the first expansion.
func (a *Assembler) ToggleReplies(ctx context.Context, postID string) (ReplyState, error) {
	a.lock.Lock()
	state, ok := a.posts[postID]
	if !ok {
		a.lock.Unlock()
		return RepliesCollapsed, s.ErrNotFound
	}
	thread := state.replies
	if thread.loading {
		a.lock.Unlock()
		return RepliesLoading, nil
	}
	if thread.visible {
		thread.visible = false
		a.lock.Unlock()
		return RepliesCollapsed, nil
	}
	a.lock.Unlock()

	if _, err := a.LoadReplies(ctx, postID, false); err != nil {
		return RepliesCollapsed, err
	}
	return RepliesLoaded, nil
}

// AddComment replies to postID as identity, clears the draft for the post and
// refetches its replies.
func (a *Assembler) AddComment(ctx context.Context, identity, postID, text string) (*s.Comment, error) {
	content, err := validateText(text)
	if err != nil {
		return nil, err
	}
	if identity == "" {
		return nil, ErrNotSignedIn
	}

	resp, err := a.Server.CreateComment(ctx, &s.CreateCommentRequest{
		CallerID: identity,
		PostID:   postID,
		Content:  content,
	})
	if err != nil {
		a.Logger.WarnContext(ctx, "adding comment failed", "identity", identity, "postID", postID, "error", err)
		return nil, errors.Wrap(err, "adding comment failed")
	}

	a.lock.Lock()
	if a.ownsLocked(identity) {
		delete(a.drafts, postID)
	}
	a.lock.Unlock()

	a.publish(ctx, events.CommentCreated, events.Event{
		ActorID:   identity,
		PostID:    postID,
		CommentID: resp.Comment.CommentID,
	})
	a.refreshReplies(ctx, identity, postID)
	return resp.Comment, nil
}

// DeleteComment removes a comment written by identity and refetches the
// post's replies.
func (a *Assembler) DeleteComment(ctx context.Context, identity, postID, commentID string) error {
	if identity == "" {
		return ErrNotSignedIn
	}

	a.lock.Lock()
	if state, ok := a.posts[postID]; ok {
		for _, comment := range state.replies.comments {
			if comment.CommentID == commentID && comment.AuthorID != identity {
				a.lock.Unlock()
				return ErrNotAuthor
			}
		}
	}
	a.lock.Unlock()

	err := a.Server.DeleteComment(ctx, &s.DeleteCommentRequest{
		CallerID:  identity,
		PostID:    postID,
		CommentID: commentID,
	})
	if errors.Is(err, s.ErrPermissionDenied) {
		return ErrNotAuthor
	} else if err != nil {
		a.Logger.WarnContext(ctx, "deleting comment failed", "identity", identity, "commentID", commentID, "error", err)
		return errors.Wrap(err, "deleting comment failed")
	}

	a.publish(ctx, events.CommentDeleted, events.Event{
		ActorID:   identity,
		PostID:    postID,
		CommentID: commentID,
	})
	a.refreshReplies(ctx, identity, postID)
	return nil
}

// refreshReplies refetches an expanded thread. A collapsed thread stays
// collapsed and is refetched on its next expansion.
func (a *Assembler) refreshReplies(ctx context.Context, identity, postID string) {
	a.lock.Lock()
	state, ok := a.posts[postID]
	if !ok || !a.ownsLocked(identity) {
		a.lock.Unlock()
		return
	}
	thread := state.replies
	expanded := thread.visible || thread.loading
	if !expanded {
		thread.loaded = false
		thread.comments = nil
	}
	a.lock.Unlock()
	if !expanded {
		return
	}

	if _, err := a.LoadReplies(ctx, postID, true); err != nil {
		a.Logger.WarnContext(ctx, "refreshing replies failed", "postID", postID, "error", err)
	}
}

func validateText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyText
	}
	return trimmed, nil
}
