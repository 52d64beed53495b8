// Package feed assembles the post list a user sees and applies their
// interactions to it: likes, replies, comments, follows and deletes.
//
// The identity performing an operation is always passed explicitly. When a
// Session is set, results that complete after the current identity changed
// are dropped with ErrStaleSession instead of being applied.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jlym/minix/internal/events"
	s "github.com/jlym/minix/internal/server"
	"github.com/jlym/minix/internal/util"
)

const (
	UnknownUser = "Unknown user"

	defaultConcurrency = 8
)

var (
	ErrEmptyText    = errors.New("text cannot be empty")
	ErrNotSignedIn  = errors.New("you must be signed in")
	ErrSelfFollow   = errors.New("you cannot follow yourself")
	ErrNotAuthor    = errors.New("only the author can do this")
	ErrStaleSession = errors.New("session changed before the request completed")
	ErrSuperseded   = errors.New("a newer load replaced this one")
)

type Scope int

const (
	// ScopeOwn lists the identity's own posts.
	ScopeOwn Scope = iota
	// ScopeTimeline lists every post.
	ScopeTimeline
	// ScopeFollowing lists posts by accounts the identity follows.
	ScopeFollowing
)

func (sc Scope) String() string {
	switch sc {
	case ScopeOwn:
		return "own"
	case ScopeTimeline:
		return "timeline"
	case ScopeFollowing:
		return "following"
	}
	return "unknown"
}

// Session reports who is signed in right now.
type Session interface {
	CurrentIdentity() string
}

type PostView struct {
	PostID     string
	AuthorID   string
	AuthorName string
	Content    string
	CreatedAt  time.Time
	LikerIDs   []string
	LikeCount  int
	LikedByMe  bool
	// LikePending is set while a like toggle is in flight.
	LikePending bool
	Replies     ReplyState
}

type postState struct {
	post       *s.Post
	authorName string
	// likeTarget is the optimistic "liked by me" value while a toggle is in
	// flight, nil otherwise.
	likeTarget *bool
	replies    *replyThread
}

type Assembler struct {
	Server      s.Server
	Names       NameResolver
	Session     Session
	Publisher   events.Publisher
	Clock       util.Clock
	Logger      *slog.Logger
	Concurrency int

	lock      sync.Mutex
	identity  string
	scope     Scope
	order     []string
	posts     map[string]*postState
	drafts    map[string]string
	following map[string]bool
	loadSeq   uint64

	likeLocks *keyedMutex
}

func NewAssembler(server s.Server) *Assembler {
	return &Assembler{
		Server:      server,
		Names:       &ServerNames{Server: server},
		Publisher:   events.NopPublisher{},
		Clock:       util.NewRealClock(),
		Logger:      slog.Default().With("component", "feed"),
		Concurrency: defaultConcurrency,
		posts:       map[string]*postState{},
		drafts:      map[string]string{},
		following:   map[string]bool{},
		likeLocks:   newKeyedMutex(),
	}
}

// Snapshot returns the current post list, newest first.
func (a *Assembler) Snapshot() []PostView {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.snapshotLocked()
}

func (a *Assembler) snapshotLocked() []PostView {
	views := make([]PostView, 0, len(a.order))
	for _, id := range a.order {
		views = append(views, a.viewLocked(a.posts[id]))
	}
	return views
}

// Post returns the view of a single post in the snapshot.
func (a *Assembler) Post(postID string) (PostView, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()

	state, ok := a.posts[postID]
	if !ok {
		return PostView{}, false
	}
	return a.viewLocked(state), true
}

func (a *Assembler) viewLocked(state *postState) PostView {
	post := state.post
	likers := append([]string{}, post.LikerIDs...)
	liked := post.LikedBy(a.identity)
	count := len(likers)

	if state.likeTarget != nil && *state.likeTarget != liked {
		liked = *state.likeTarget
		if liked {
			count++
		} else {
			count--
		}
	}

	return PostView{
		PostID:      post.PostID,
		AuthorID:    post.OwnerID,
		AuthorName:  state.authorName,
		Content:     post.Content,
		CreatedAt:   post.CreatedAt,
		LikerIDs:    likers,
		LikeCount:   count,
		LikedByMe:   liked,
		LikePending: state.likeTarget != nil,
		Replies:     state.replies.stateLocked(),
	}
}

// Identity is the account the current snapshot was loaded for.
func (a *Assembler) Identity() string {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.identity
}

func (a *Assembler) Scope() Scope {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.scope
}

// Reset drops every piece of view state, as when the user navigates away.
// Loads still in flight will not be applied.
func (a *Assembler) Reset() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.resetLocked("")
}

func (a *Assembler) resetLocked(identity string) {
	a.identity = identity
	a.order = nil
	a.posts = map[string]*postState{}
	a.drafts = map[string]string{}
	a.following = map[string]bool{}
	a.loadSeq++
}

func (a *Assembler) SetDraft(postID, text string) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if text == "" {
		delete(a.drafts, postID)
		return
	}
	a.drafts[postID] = text
}

func (a *Assembler) Draft(postID string) string {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.drafts[postID]
}

// staleLocked reports whether identity stopped being the signed in account.
func (a *Assembler) staleLocked(identity string) bool {
	return a.Session != nil && a.Session.CurrentIdentity() != identity
}

// ownsLocked reports whether results for identity may touch the snapshot.
func (a *Assembler) ownsLocked(identity string) bool {
	return identity != "" && a.identity == identity && !a.staleLocked(identity)
}

func (a *Assembler) publish(ctx context.Context, eventType events.Type, event events.Event) {
	event.Type = eventType
	event.Timestamp = a.Clock.NowUtc()
	if err := a.Publisher.Publish(ctx, &event); err != nil {
		a.Logger.WarnContext(ctx, "publishing event failed", "type", eventType, "error", err)
	}
}
