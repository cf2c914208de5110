// Package session owns the live connection to a chat room and the switching
// between rooms. Exactly one room is attached at a time; switching tears the
// old connection down, wipes the per-room pipeline state, and connects fresh.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/onnwee/mintcast/pipeline"
)

// FeedEvent is one raw inbound chat message from a room feed.
type FeedEvent struct {
	Username    string
	Message     string
	UserAddress string // opaque platform user id, logging only
}

// FeedConn is a live attachment to one room.
type FeedConn interface {
	Close() error
}

// Handler receives feed callbacks. Implementations must tolerate callbacks
// from connections they already abandoned.
type Handler interface {
	OnFeedEvent(conn FeedConn, ev FeedEvent)
	OnFeedDisconnect(conn FeedConn, err error)
}

// Feed attaches to chat rooms. Connect returns once the attachment is
// established; events flow to the handler from the feed's own goroutines.
type Feed interface {
	Connect(ctx context.Context, roomID string, h Handler) (FeedConn, error)
}

// Controller routes feed events into the pipeline and serializes room
// switches. Callbacks from a connection that is no longer the tracked one are
// dropped; a slow teardown must not let a dying feed pollute the new room.
type Controller struct {
	feed    Feed
	gate    *pipeline.Gate
	history *pipeline.Window
	queue   *pipeline.Queue

	// Journal, when set, is called after every successful switch with the new
	// room id (empty on detach) so the attachment survives restarts.
	Journal func(ctx context.Context, roomID string)

	mu     sync.Mutex
	roomID string
	conn   FeedConn
}

func NewController(feed Feed, gate *pipeline.Gate, history *pipeline.Window, queue *pipeline.Queue) *Controller {
	return &Controller{feed: feed, gate: gate, history: history, queue: queue}
}

// CurrentRoom returns the attached room id, empty when disconnected.
func (c *Controller) CurrentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// SwitchRoom detaches from the current room (if any), resets the dedup gate,
// the history window and the pending queue, and attaches to roomID. The empty
// string disconnects without reattaching. Switching to the room already
// attached still performs the full reset cycle.
func (c *Controller) SwitchRoom(ctx context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			slog.Warn("error closing room feed", slog.Any("err", err), slog.String("room", c.roomID), slog.String("component", "session"))
		}
		c.conn = nil
	}
	old := c.roomID
	c.roomID = ""

	c.gate.Reset()
	c.history.Clear()
	c.queue.Reset()

	if roomID == "" {
		slog.Info("detached from room", slog.String("room", old), slog.String("component", "session"))
		if c.Journal != nil {
			c.Journal(ctx, "")
		}
		return nil
	}

	conn, err := c.feed.Connect(ctx, roomID, c)
	if err != nil {
		return fmt.Errorf("connect to room %q: %w", roomID, err)
	}
	c.conn = conn
	c.roomID = roomID
	slog.Info("attached to room", slog.String("room", roomID), slog.String("component", "session"))
	if c.Journal != nil {
		c.Journal(ctx, roomID)
	}
	return nil
}

// InjectTurn pushes a synthetic turn through the same gate and queue as feed
// traffic; used by the admin surface for testing the persona live.
func (c *Controller) InjectTurn(username, message string) bool {
	turn, ok := c.gate.Admit(username, message)
	if !ok {
		return false
	}
	c.history.Append(turn)
	c.queue.Enqueue(turn)
	return true
}

// OnFeedEvent implements Handler. Events from a stale connection or with a
// missing username/message are dropped.
func (c *Controller) OnFeedEvent(conn FeedConn, ev FeedEvent) {
	c.mu.Lock()
	stale := conn != c.conn
	c.mu.Unlock()
	if stale {
		slog.Debug("dropping event from stale feed connection", slog.String("component", "session"))
		return
	}
	if ev.Username == "" || ev.Message == "" {
		return
	}

	turn, ok := c.gate.Admit(ev.Username, ev.Message)
	if !ok {
		return
	}
	c.history.Append(turn)
	c.queue.Enqueue(turn)
}

// OnFeedDisconnect implements Handler. Only the tracked connection may clear
// the room state; a late disconnect from an abandoned feed is ignored.
func (c *Controller) OnFeedDisconnect(conn FeedConn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn != c.conn {
		return
	}
	slog.Warn("room feed disconnected", slog.Any("err", err), slog.String("room", c.roomID), slog.String("component", "session"))
	c.conn = nil
	c.roomID = ""
}
