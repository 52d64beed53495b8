package feed

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jlym/minix/internal/events"
	s "github.com/jlym/minix/internal/server"
)

// ToggleFollow follows targetID if identity does not follow it yet and
// unfollows it otherwise. It returns whether identity follows targetID now.
func (a *Assembler) ToggleFollow(ctx context.Context, identity, targetID string) (bool, error) {
	if identity == "" {
		return false, ErrNotSignedIn
	}
	if targetID == identity {
		return false, ErrSelfFollow
	}

	request := &s.FollowRequest{CallerID: identity, TargetUserID: targetID}
	resp, err := a.Server.GetFollow(ctx, request)
	if err != nil {
		a.Logger.WarnContext(ctx, "reading follow failed", "identity", identity, "targetID", targetID, "error", err)
		return false, errors.Wrap(err, "toggling follow failed")
	}

	following := !resp.Following
	eventType := events.FollowCreated
	if following {
		err = a.Server.CreateFollow(ctx, request)
	} else {
		eventType = events.FollowDeleted
		err = a.Server.DeleteFollow(ctx, request)
	}
	if err != nil {
		a.Logger.WarnContext(ctx, "writing follow failed", "identity", identity, "targetID", targetID, "error", err)
		return false, errors.Wrap(err, "toggling follow failed")
	}

	a.lock.Lock()
	stale := a.staleLocked(identity)
	if !stale {
		a.setFollowingLocked(identity, targetID, following)
	}
	a.lock.Unlock()

	a.publish(ctx, eventType, events.Event{ActorID: identity, TargetUserID: targetID})
	if stale {
		return following, ErrStaleSession
	}
	return following, nil
}

// IsFollowing reports whether identity follows targetID, remembering the
// answer for Following.
func (a *Assembler) IsFollowing(ctx context.Context, identity, targetID string) (bool, error) {
	if identity == "" || targetID == identity {
		return false, nil
	}

	resp, err := a.Server.GetFollow(ctx, &s.FollowRequest{CallerID: identity, TargetUserID: targetID})
	if err != nil {
		return false, errors.Wrap(err, "reading follow failed")
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	if a.staleLocked(identity) {
		return false, ErrStaleSession
	}
	a.setFollowingLocked(identity, targetID, resp.Following)
	return resp.Following, nil
}

// Following returns the last known follow flag for targetID.
func (a *Assembler) Following(targetID string) bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.following[targetID]
}

func (a *Assembler) setFollowingLocked(identity, targetID string, following bool) {
	if a.identity != identity {
		return
	}
	if following {
		a.following[targetID] = true
	} else {
		delete(a.following, targetID)
	}
}
