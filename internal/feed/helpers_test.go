package feed_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/jlym/minix/internal/events"
	"github.com/jlym/minix/internal/feed"
	s "github.com/jlym/minix/internal/server"
	"github.com/jlym/minix/internal/storage"
)

// faultyServer wraps a real backend and lets tests count calls, fail writes
// and hold requests open.
type faultyServer struct {
	s.Server

	lock            sync.Mutex
	calls           map[string]int
	likeErr         error
	likeGate        chan struct{}
	listGate        chan struct{}
	listEntered     chan struct{}
	commentsGate    chan struct{}
	failingAccounts map[string]bool
}

func newFaultyServer(backend s.Server) *faultyServer {
	return &faultyServer{
		Server:          backend,
		calls:           map[string]int{},
		listEntered:     make(chan struct{}, 1),
		failingAccounts: map[string]bool{},
	}
}

func (f *faultyServer) count(name string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls[name]++
}

func (f *faultyServer) callCount(name string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls[name]
}

func (f *faultyServer) setLikeGate(gate chan struct{}) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.likeGate = gate
}

func (f *faultyServer) setLikeErr(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.likeErr = err
}

// holdNextList makes the next ListPosts call wait until the returned channel
// is closed. listEntered receives once that call is waiting.
func (f *faultyServer) holdNextList() chan struct{} {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.listGate = make(chan struct{})
	return f.listGate
}

func (f *faultyServer) holdNextComments() chan struct{} {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.commentsGate = make(chan struct{})
	return f.commentsGate
}

func (f *faultyServer) failAccount(accountID string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.failingAccounts[accountID] = true
}

func (f *faultyServer) GetAccount(ctx context.Context, request *s.GetAccountRequest) (*s.GetAccountResponse, error) {
	f.count("GetAccount")
	f.lock.Lock()
	failing := f.failingAccounts[request.AccountID]
	f.lock.Unlock()
	if failing {
		return nil, errors.New("backend unavailable")
	}
	return f.Server.GetAccount(ctx, request)
}

func (f *faultyServer) ListPosts(ctx context.Context, request *s.ListPostsRequest) (*s.ListPostsResponse, error) {
	f.count("ListPosts")
	f.lock.Lock()
	gate := f.listGate
	f.listGate = nil
	f.lock.Unlock()
	if gate != nil {
		f.listEntered <- struct{}{}
		<-gate
	}
	return f.Server.ListPosts(ctx, request)
}

func (f *faultyServer) CreatePost(ctx context.Context, request *s.CreatePostRequest) (*s.CreatePostResponse, error) {
	f.count("CreatePost")
	return f.Server.CreatePost(ctx, request)
}

func (f *faultyServer) DeletePost(ctx context.Context, request *s.DeletePostRequest) error {
	f.count("DeletePost")
	return f.Server.DeletePost(ctx, request)
}

func (f *faultyServer) GetLike(ctx context.Context, request *s.LikeRequest) (*s.GetLikeResponse, error) {
	f.count("GetLike")
	return f.Server.GetLike(ctx, request)
}

func (f *faultyServer) CreateLike(ctx context.Context, request *s.LikeRequest) error {
	f.count("CreateLike")
	if err := f.beforeLikeWrite(); err != nil {
		return err
	}
	return f.Server.CreateLike(ctx, request)
}

func (f *faultyServer) DeleteLike(ctx context.Context, request *s.LikeRequest) error {
	f.count("DeleteLike")
	if err := f.beforeLikeWrite(); err != nil {
		return err
	}
	return f.Server.DeleteLike(ctx, request)
}

func (f *faultyServer) beforeLikeWrite() error {
	f.lock.Lock()
	gate := f.likeGate
	f.lock.Unlock()
	if gate != nil {
		<-gate
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	return f.likeErr
}

func (f *faultyServer) ListComments(ctx context.Context, request *s.ListCommentsRequest) (*s.ListCommentsResponse, error) {
	f.count("ListComments")
	f.lock.Lock()
	gate := f.commentsGate
	f.commentsGate = nil
	f.lock.Unlock()
	if gate != nil {
		<-gate
	}
	return f.Server.ListComments(ctx, request)
}

func (f *faultyServer) CreateComment(ctx context.Context, request *s.CreateCommentRequest) (*s.CreateCommentResponse, error) {
	f.count("CreateComment")
	return f.Server.CreateComment(ctx, request)
}

func (f *faultyServer) GetFollow(ctx context.Context, request *s.FollowRequest) (*s.GetFollowResponse, error) {
	f.count("GetFollow")
	return f.Server.GetFollow(ctx, request)
}

type stubSession struct {
	lock     sync.Mutex
	identity string
}

func (ss *stubSession) CurrentIdentity() string {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	return ss.identity
}

func (ss *stubSession) set(identity string) {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	ss.identity = identity
}

type recordingPublisher struct {
	lock   sync.Mutex
	events []*events.Event
}

func (r *recordingPublisher) Publish(ctx context.Context, event *events.Event) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) types() []events.Type {
	r.lock.Lock()
	defer r.lock.Unlock()
	types := make([]events.Type, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.Type)
	}
	return types
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, event *events.Event) error {
	return errors.New("nats unavailable")
}

func getTestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func newTestEnv(ctx context.Context, t *testing.T) (*feed.Assembler, *faultyServer, *recordingPublisher) {
	backend, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(backend.Close)

	server := newFaultyServer(backend)
	publisher := &recordingPublisher{}

	assembler := feed.NewAssembler(server)
	assembler.Publisher = publisher
	return assembler, server, publisher
}

func createAccount(ctx context.Context, t *testing.T, server s.Server) *s.Account {
	resp, err := server.CreateAccount(ctx, &s.CreateAccountRequest{
		DisplayName:  gofakeit.Name(),
		Email:        gofakeit.Username() + gofakeit.DigitN(6) + "@gmail.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return resp.Account
}

func createPost(ctx context.Context, t *testing.T, server s.Server, authorID, content string) *s.Post {
	resp, err := server.CreatePost(ctx, &s.CreatePostRequest{CallerID: authorID, Content: content})
	require.NoError(t, err)
	return resp.Post
}

func postIDs(views []feed.PostView) []string {
	ids := make([]string, 0, len(views))
	for _, view := range views {
		ids = append(ids, view.PostID)
	}
	return ids
}

func mustPost(t *testing.T, assembler *feed.Assembler, postID string) feed.PostView {
	view, ok := assembler.Post(postID)
	require.True(t, ok, "post %s missing from snapshot", postID)
	return view
}
