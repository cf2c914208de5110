package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/mintcast/pipeline"
	"github.com/onnwee/mintcast/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	m.Run()
}

type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeFeed struct {
	mu       sync.Mutex
	conns    []*fakeConn
	handlers []Handler
	err      error
}

func (f *fakeFeed) Connect(_ context.Context, roomID string, h Handler) (FeedConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	conn := &fakeConn{}
	f.conns = append(f.conns, conn)
	f.handlers = append(f.handlers, h)
	return conn, nil
}

func (f *fakeFeed) latest() (*fakeConn, Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[len(f.conns)-1], f.handlers[len(f.handlers)-1]
}

type recordRunner struct {
	mu    sync.Mutex
	turns []pipeline.ChatTurn
}

func (r *recordRunner) run(_ context.Context, turn pipeline.ChatTurn, _ uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turn)
}

func (r *recordRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}

func newTestController(feed Feed) (*Controller, *pipeline.Window, *pipeline.Queue, *recordRunner) {
	runner := &recordRunner{}
	gate := pipeline.NewGate(pipeline.FilterPolicy{})
	history := pipeline.NewWindow(10)
	queue := pipeline.NewQueue(context.Background(), runner.run)
	return NewController(feed, gate, history, queue), history, queue, runner
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSwitchRoomAttaches(t *testing.T) {
	feed := &fakeFeed{}
	c, _, _, _ := newTestController(feed)

	if err := c.SwitchRoom(context.Background(), "room-a"); err != nil {
		t.Fatal(err)
	}
	if c.CurrentRoom() != "room-a" {
		t.Errorf("CurrentRoom = %q", c.CurrentRoom())
	}
}

func TestSwitchRoomClosesOldAndResetsState(t *testing.T) {
	feed := &fakeFeed{}
	c, history, queue, _ := newTestController(feed)

	if err := c.SwitchRoom(context.Background(), "room-a"); err != nil {
		t.Fatal(err)
	}
	oldConn, oldHandler := feed.latest()
	oldHandler.OnFeedEvent(oldConn, FeedEvent{Username: "alice", Message: "hello there"})
	waitFor(t, func() bool { return history.Len() == 1 })
	gen := queue.Generation()

	if err := c.SwitchRoom(context.Background(), "room-b"); err != nil {
		t.Fatal(err)
	}
	if !oldConn.isClosed() {
		t.Error("old connection not closed")
	}
	if history.Len() != 0 {
		t.Errorf("history not cleared: %d", history.Len())
	}
	if queue.Generation() != gen+1 {
		t.Errorf("generation = %d, want %d", queue.Generation(), gen+1)
	}
	if c.CurrentRoom() != "room-b" {
		t.Errorf("CurrentRoom = %q", c.CurrentRoom())
	}

	// a duplicate of the pre-switch message passes the reset gate
	newConn, newHandler := feed.latest()
	newHandler.OnFeedEvent(newConn, FeedEvent{Username: "alice", Message: "hello there"})
	waitFor(t, func() bool { return history.Len() == 1 })
}

func TestSwitchRoomEmptyDetaches(t *testing.T) {
	feed := &fakeFeed{}
	c, _, _, _ := newTestController(feed)
	if err := c.SwitchRoom(context.Background(), "room-a"); err != nil {
		t.Fatal(err)
	}
	conn, _ := feed.latest()
	if err := c.SwitchRoom(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if !conn.isClosed() {
		t.Error("connection not closed on detach")
	}
	if c.CurrentRoom() != "" {
		t.Errorf("CurrentRoom = %q, want empty", c.CurrentRoom())
	}
}

func TestSwitchRoomConnectFailureLeavesDetached(t *testing.T) {
	feed := &fakeFeed{err: errors.New("refused")}
	c, _, _, _ := newTestController(feed)
	if err := c.SwitchRoom(context.Background(), "room-a"); err == nil {
		t.Fatal("expected error")
	}
	if c.CurrentRoom() != "" {
		t.Errorf("CurrentRoom = %q, want empty after failed connect", c.CurrentRoom())
	}
}

func TestStaleConnectionEventsDropped(t *testing.T) {
	feed := &fakeFeed{}
	c, history, _, _ := newTestController(feed)
	if err := c.SwitchRoom(context.Background(), "room-a"); err != nil {
		t.Fatal(err)
	}
	staleConn, staleHandler := feed.latest()
	if err := c.SwitchRoom(context.Background(), "room-b"); err != nil {
		t.Fatal(err)
	}

	staleHandler.OnFeedEvent(staleConn, FeedEvent{Username: "ghost", Message: "from the old room"})
	time.Sleep(50 * time.Millisecond)
	if history.Len() != 0 {
		t.Error("stale event reached the pipeline")
	}

	// stale disconnect must not clear the new room
	staleHandler.OnFeedDisconnect(staleConn, errors.New("late teardown"))
	if c.CurrentRoom() != "room-b" {
		t.Errorf("CurrentRoom = %q after stale disconnect", c.CurrentRoom())
	}
}

func TestDisconnectOfTrackedConnectionClearsRoom(t *testing.T) {
	feed := &fakeFeed{}
	c, _, _, _ := newTestController(feed)
	if err := c.SwitchRoom(context.Background(), "room-a"); err != nil {
		t.Fatal(err)
	}
	conn, handler := feed.latest()
	handler.OnFeedDisconnect(conn, errors.New("network reset"))
	if c.CurrentRoom() != "" {
		t.Errorf("CurrentRoom = %q, want empty", c.CurrentRoom())
	}
}

func TestFeedEventMissingFieldsDropped(t *testing.T) {
	feed := &fakeFeed{}
	c, history, _, _ := newTestController(feed)
	if err := c.SwitchRoom(context.Background(), "room-a"); err != nil {
		t.Fatal(err)
	}
	conn, handler := feed.latest()
	handler.OnFeedEvent(conn, FeedEvent{Username: "", Message: "no author"})
	handler.OnFeedEvent(conn, FeedEvent{Username: "alice", Message: ""})
	time.Sleep(50 * time.Millisecond)
	if history.Len() != 0 {
		t.Errorf("history = %d, want 0", history.Len())
	}
}

func TestSwitchRoomJournalsAttachment(t *testing.T) {
	feed := &fakeFeed{}
	c, _, _, _ := newTestController(feed)

	var mu sync.Mutex
	var journal []string
	c.Journal = func(_ context.Context, roomID string) {
		mu.Lock()
		journal = append(journal, roomID)
		mu.Unlock()
	}

	if err := c.SwitchRoom(context.Background(), "room-a"); err != nil {
		t.Fatal(err)
	}
	if err := c.SwitchRoom(context.Background(), "room-b"); err != nil {
		t.Fatal(err)
	}
	if err := c.SwitchRoom(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"room-a", "room-b", ""}
	if len(journal) != len(want) {
		t.Fatalf("journal = %v, want %v", journal, want)
	}
	for i := range want {
		if journal[i] != want[i] {
			t.Errorf("journal[%d] = %q, want %q", i, journal[i], want[i])
		}
	}
}

func TestSwitchRoomConnectFailureNotJournaled(t *testing.T) {
	feed := &fakeFeed{err: errors.New("refused")}
	c, _, _, _ := newTestController(feed)

	var calls int
	c.Journal = func(context.Context, string) { calls++ }

	if err := c.SwitchRoom(context.Background(), "room-a"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 0 {
		t.Errorf("journal called %d times on failed connect", calls)
	}
}

func TestInjectTurn(t *testing.T) {
	feed := &fakeFeed{}
	c, history, _, runner := newTestController(feed)

	if !c.InjectTurn("admin", "probe message") {
		t.Fatal("inject rejected")
	}
	waitFor(t, func() bool { return runner.count() == 1 })
	if history.Len() != 1 {
		t.Errorf("history = %d", history.Len())
	}
	// the gate still applies to injected turns
	if c.InjectTurn("admin", "probe message") {
		t.Error("duplicate inject passed the gate")
	}
}
