package feed

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jlym/minix/internal/events"
	s "github.com/jlym/minix/internal/server"
)

// LoadFeed fetches the posts of scope for identity, newest first, resolves
// their author names and replaces the snapshot. With no identity the feed is
// empty. When loads overlap only the last one issued is applied; earlier
// ones return ErrSuperseded.
func (a *Assembler) LoadFeed(ctx context.Context, identity string, scope Scope) ([]PostView, error) {
	a.lock.Lock()
	if identity == "" {
		a.resetLocked("")
		a.scope = scope
		a.lock.Unlock()
		return []PostView{}, nil
	}
	a.loadSeq++
	seq := a.loadSeq
	a.lock.Unlock()

	request := &s.ListPostsRequest{}
	var followed []string
	switch scope {
	case ScopeOwn:
		request.AuthorIDs = []string{identity}
	case ScopeFollowing:
		resp, err := a.Server.ListFollowed(ctx, &s.ListFollowedRequest{CallerID: identity})
		if err != nil {
			a.Logger.ErrorContext(ctx, "listing followed accounts failed", "identity", identity, "error", err)
			return nil, errors.Wrap(err, "loading feed failed")
		}
		followed = resp.UserIDs
		request.AuthorIDs = append([]string{}, followed...)
	}

	resp, err := a.Server.ListPosts(ctx, request)
	if err != nil {
		a.Logger.ErrorContext(ctx, "listing posts failed", "identity", identity, "scope", scope.String(), "error", err)
		return nil, errors.Wrap(err, "loading feed failed")
	}

	authorIDs := make([]string, 0, len(resp.Posts))
	for _, post := range resp.Posts {
		authorIDs = append(authorIDs, post.OwnerID)
	}
	names := a.resolveNames(ctx, authorIDs)

	a.lock.Lock()
	defer a.lock.Unlock()

	if a.staleLocked(identity) {
		return nil, ErrStaleSession
	}
	if seq != a.loadSeq {
		return nil, ErrSuperseded
	}

	previous := a.posts
	if a.identity != identity {
		a.resetLocked(identity)
		previous = map[string]*postState{}
	}
	a.scope = scope

	order := make([]string, 0, len(resp.Posts))
	posts := make(map[string]*postState, len(resp.Posts))
	for _, post := range resp.Posts {
		state := &postState{
			post:       post,
			authorName: names[post.OwnerID],
			replies:    &replyThread{},
		}
		if old, ok := previous[post.PostID]; ok {
			state.likeTarget = old.likeTarget
			state.replies = old.replies
		}
		order = append(order, post.PostID)
		posts[post.PostID] = state
	}
	a.order = order
	a.posts = posts

	for postID := range a.drafts {
		if _, ok := posts[postID]; !ok {
			delete(a.drafts, postID)
		}
	}
	if scope == ScopeFollowing {
		for _, id := range followed {
			a.following[id] = true
		}
	}

	a.Logger.DebugContext(ctx, "feed loaded", "identity", identity, "scope", scope.String(), "posts", len(order))
	return a.snapshotLocked(), nil
}

// refresh reloads the current scope after a mutation. Failures are logged;
// the mutation itself already succeeded.
func (a *Assembler) refresh(ctx context.Context, identity string) {
	a.lock.Lock()
	scope := a.scope
	a.lock.Unlock()

	if _, err := a.LoadFeed(ctx, identity, scope); err != nil {
		a.Logger.WarnContext(ctx, "refreshing feed failed", "identity", identity, "error", err)
	}
}

// CreatePost publishes text as a new post by identity and reloads the feed.
func (a *Assembler) CreatePost(ctx context.Context, identity, text string) (*s.Post, error) {
	content, err := validateText(text)
	if err != nil {
		return nil, err
	}
	if identity == "" {
		return nil, ErrNotSignedIn
	}

	resp, err := a.Server.CreatePost(ctx, &s.CreatePostRequest{CallerID: identity, Content: content})
	if err != nil {
		a.Logger.ErrorContext(ctx, "creating post failed", "identity", identity, "error", err)
		return nil, errors.Wrap(err, "creating post failed")
	}

	a.publish(ctx, events.PostCreated, events.Event{ActorID: identity, PostID: resp.Post.PostID})
	a.refresh(ctx, identity)
	return resp.Post, nil
}

// DeletePost removes a post authored by identity and reloads the feed.
func (a *Assembler) DeletePost(ctx context.Context, identity, postID string) error {
	if identity == "" {
		return ErrNotSignedIn
	}

	a.lock.Lock()
	if state, ok := a.posts[postID]; ok && state.post.OwnerID != identity {
		a.lock.Unlock()
		return ErrNotAuthor
	}
	a.lock.Unlock()

	err := a.Server.DeletePost(ctx, &s.DeletePostRequest{CallerID: identity, PostID: postID})
	if errors.Is(err, s.ErrPermissionDenied) {
		return ErrNotAuthor
	} else if err != nil {
		a.Logger.WarnContext(ctx, "deleting post failed", "identity", identity, "postID", postID, "error", err)
		return errors.Wrap(err, "deleting post failed")
	}

	a.lock.Lock()
	if a.ownsLocked(identity) {
		a.removePostLocked(postID)
	}
	a.lock.Unlock()

	a.publish(ctx, events.PostDeleted, events.Event{ActorID: identity, PostID: postID})
	a.refresh(ctx, identity)
	return nil
}

func (a *Assembler) removePostLocked(postID string) {
	if _, ok := a.posts[postID]; !ok {
		return
	}
	delete(a.posts, postID)
	delete(a.drafts, postID)
	for i, id := range a.order {
		if id == postID {
			a.order = append(a.order[:i:i], a.order[i+1:]...)
			break
		}
	}
}
