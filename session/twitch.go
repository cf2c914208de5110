package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

const connectTimeout = 15 * time.Second

// TwitchFeed attaches to Twitch chat channels over IRC. With empty
// credentials it connects anonymously, which is enough for read-only
// ingestion.
type TwitchFeed struct {
	Username   string
	OAuthToken string
}

type twitchConn struct {
	client *twitch.Client

	mu     sync.Mutex
	closed bool
}

// Close detaches deliberately; the disconnect callback is suppressed.
func (c *twitchConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.client.Disconnect()
}

func (c *twitchConn) wasClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Connect joins roomID and blocks until the IRC session is up. The client's
// read loop runs on its own goroutine for the life of the connection; an
// unexpected drop is reported through the handler.
func (f *TwitchFeed) Connect(ctx context.Context, roomID string, h Handler) (FeedConn, error) {
	var client *twitch.Client
	if f.Username != "" && f.OAuthToken != "" {
		client = twitch.NewClient(f.Username, f.OAuthToken)
	} else {
		client = twitch.NewAnonymousClient()
	}
	conn := &twitchConn{client: client}

	client.OnPrivateMessage(func(m twitch.PrivateMessage) {
		h.OnFeedEvent(conn, FeedEvent{
			Username:    m.User.DisplayName,
			Message:     m.Message,
			UserAddress: m.User.ID,
		})
	})

	ready := make(chan struct{})
	var readyOnce sync.Once
	client.OnConnect(func() {
		readyOnce.Do(func() { close(ready) })
	})

	client.Join(roomID)

	errc := make(chan error, 1)
	go func() {
		err := client.Connect()
		errc <- err
		if conn.wasClosed() {
			return
		}
		slog.Warn("twitch feed dropped", slog.Any("err", err), slog.String("room", roomID), slog.String("component", "session"))
		h.OnFeedDisconnect(conn, err)
	}()

	select {
	case <-ready:
		return conn, nil
	case err := <-errc:
		return nil, fmt.Errorf("twitch connect: %w", err)
	case <-ctx.Done():
		_ = conn.Close()
		return nil, ctx.Err()
	case <-time.After(connectTimeout):
		_ = conn.Close()
		return nil, fmt.Errorf("twitch connect: timed out joining %q", roomID)
	}
}
