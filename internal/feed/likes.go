package feed

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jlym/minix/internal/events"
	s "github.com/jlym/minix/internal/server"
)

// ToggleLike likes or unlikes postID for identity and returns the new state.
//
// The snapshot shows the toggled state immediately; if the write fails the
// post goes back to what it was. Toggles of the same post run one at a time.
func (a *Assembler) ToggleLike(ctx context.Context, identity, postID string) (bool, error) {
	if identity == "" {
		return false, ErrNotSignedIn
	}

	a.likeLocks.Lock(postID)
	defer a.likeLocks.Unlock(postID)

	a.lock.Lock()
	state := a.ownedPostLocked(identity, postID)
	if state != nil {
		target := !state.post.LikedBy(identity)
		state.likeTarget = &target
	}
	a.lock.Unlock()

	liked, err := a.writeLike(ctx, identity, postID)
	if err != nil {
		a.lock.Lock()
		a.clearPendingLocked(state, postID)
		a.lock.Unlock()

		a.Logger.WarnContext(ctx, "toggling like failed", "identity", identity, "postID", postID, "error", err)
		return false, err
	}

	a.lock.Lock()
	a.clearPendingLocked(state, postID)
	if a.staleLocked(identity) {
		a.lock.Unlock()
		return liked, ErrStaleSession
	}
	if current := a.ownedPostLocked(identity, postID); current != nil {
		current.post = withLiker(current.post, identity, liked)
	}
	a.lock.Unlock()

	eventType := events.PostUnliked
	if liked {
		eventType = events.PostLiked
	}
	a.publish(ctx, eventType, events.Event{ActorID: identity, PostID: postID})
	return liked, nil
}

// writeLike reads the stored membership of identity and flips it.
func (a *Assembler) writeLike(ctx context.Context, identity, postID string) (bool, error) {
	request := &s.LikeRequest{CallerID: identity, PostID: postID}

	resp, err := a.Server.GetLike(ctx, request)
	if err != nil {
		return false, errors.Wrap(err, "reading like failed")
	}

	if resp.Liked {
		if err := a.Server.DeleteLike(ctx, request); err != nil {
			return false, errors.Wrap(err, "removing like failed")
		}
		return false, nil
	}

	if err := a.Server.CreateLike(ctx, request); err != nil {
		return false, errors.Wrap(err, "adding like failed")
	}
	return true, nil
}

// clearPendingLocked drops the optimistic like of postID. A reload while the
// write was in flight may have replaced state with a new entry.
func (a *Assembler) clearPendingLocked(state *postState, postID string) {
	if state != nil {
		state.likeTarget = nil
	}
	if current, ok := a.posts[postID]; ok {
		current.likeTarget = nil
	}
}

func (a *Assembler) ownedPostLocked(identity, postID string) *postState {
	if !a.ownsLocked(identity) {
		return nil
	}
	return a.posts[postID]
}

// withLiker returns a copy of post with userID added to or removed from its
// likers.
func withLiker(post *s.Post, userID string, liked bool) *s.Post {
	updated := *post
	likers := make([]string, 0, len(post.LikerIDs)+1)
	for _, id := range post.LikerIDs {
		if id != userID {
			likers = append(likers, id)
		}
	}
	if liked {
		likers = append(likers, userID)
	}
	updated.LikerIDs = likers
	updated.LikeCount = len(likers)
	return &updated
}
