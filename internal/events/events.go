// Package events publishes feed changes so other clients can refresh.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

type Type string

const (
	PostCreated    Type = "post.created"
	PostDeleted    Type = "post.deleted"
	PostLiked      Type = "post.liked"
	PostUnliked    Type = "post.unliked"
	CommentCreated Type = "comment.created"
	CommentDeleted Type = "comment.deleted"
	FollowCreated  Type = "follow.created"
	FollowDeleted  Type = "follow.deleted"
)

const subjectPrefix = "minix."

type Event struct {
	Type         Type      `json:"type"`
	ActorID      string    `json:"actor_id"`
	PostID       string    `json:"post_id,omitempty"`
	CommentID    string    `json:"comment_id,omitempty"`
	TargetUserID string    `json:"target_user_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Subject is the NATS subject the event is published on.
func (e *Event) Subject() string {
	return subjectPrefix + string(e.Type)
}

type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event *Event) error {
	return nil
}

type NATSPublisher struct {
	Conn *nats.Conn
}

// Connect dials the NATS server at url.
func Connect(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("minix"))
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to nats failed, url=\"%s\"", url)
	}
	return &NATSPublisher{Conn: conn}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encoding event failed")
	}
	if err := p.Conn.Publish(event.Subject(), data); err != nil {
		return errors.Wrapf(err, "publishing %s failed", event.Type)
	}
	return nil
}

// Subscribe calls handler for every event published under the minix prefix.
// Messages that fail to decode are logged and skipped.
func (p *NATSPublisher) Subscribe(logger *slog.Logger, handler func(*Event)) (*nats.Subscription, error) {
	sub, err := p.Conn.Subscribe(subjectPrefix+">", func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Warn("dropping undecodable event", "subject", msg.Subject, "error", err)
			return
		}
		handler(&event)
	})
	if err != nil {
		return nil, errors.Wrap(err, "subscribing to events failed")
	}
	return sub, nil
}

func (p *NATSPublisher) Close() {
	p.Conn.Close()
}
