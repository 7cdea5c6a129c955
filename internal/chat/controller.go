// Package chat runs the per-connection chat protocol and its WebSocket transport.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bull/rag-chat-server/internal/rag"
	"github.com/bull/rag-chat-server/internal/session"
)

// Event names on the wire.
const (
	EventSendMessage    = "send_message"
	EventReset          = "reset"
	EventReceiveMessage = "receive_message"
	EventResetDone      = "reset_done"
)

// ErrSessionClosed is returned for events on a disconnected or unknown session.
var ErrSessionClosed = errors.New("session closed")

// State is the lifecycle position of one session.
type State int

const (
	StateClosed State = iota
	StateConnected
	StateActive
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

// Event is an outbound frame: {"event": name, "data": payload}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Answerer produces an answer for a question. It does not fail.
type Answerer interface {
	Answer(ctx context.Context, question string) rag.Answer
}

// Store is the part of the session store the controller uses.
type Store interface {
	Append(ctx context.Context, sid string, turn session.Turn) ([]session.Turn, error)
	Delete(ctx context.Context, sid string) error
	Reset(ctx context.Context) error
}

// Broadcaster delivers outbound events.
type Broadcaster interface {
	// Broadcast sends ev to every connected session.
	Broadcast(ev Event)
	// Send delivers ev to sid only.
	Send(sid string, ev Event)
}

// Controller applies chat events to sessions.
// Events of one session must be delivered sequentially; different sessions may run concurrently.
type Controller struct {
	answerer Answerer
	store    Store
	out      Broadcaster
	logger   *slog.Logger

	mu     sync.Mutex
	states map[string]State
}

// NewController creates a controller.
func NewController(answerer Answerer, store Store, out Broadcaster, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		answerer: answerer,
		store:    store,
		out:      out,
		logger:   logger,
		states:   make(map[string]State),
	}
}

// Connect registers a new session.
func (c *Controller) Connect(sid string) {
	c.mu.Lock()
	c.states[sid] = StateConnected
	c.mu.Unlock()
	c.logger.Info("Session connected", "session", sid)
}

// State reports sid's state. Unknown sessions are closed.
func (c *Controller) State(sid string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[sid]
}

// Message answers text, records the turn and broadcasts it to every session.
// A failed store write is logged and the turn is broadcast anyway.
// Nothing is recorded when ctx ends before the answer is ready.
func (c *Controller) Message(ctx context.Context, sid, text string) error {
	if !c.activate(sid) {
		return ErrSessionClosed
	}

	ans := c.answerer.Answer(ctx, text)
	if err := ctx.Err(); err != nil {
		return err
	}
	turn := session.Turn{UserQuery: text, Answer: ans.Answer}

	if _, err := c.store.Append(ctx, sid, turn); err != nil {
		c.logger.Error("Failed to record turn", "session", sid, "error", err)
	}

	c.out.Broadcast(Event{Name: EventReceiveMessage, Data: turn})
	return nil
}

// Reset clears the session store and acknowledges to sid only.
// The acknowledgement is sent even when the clear fails.
func (c *Controller) Reset(ctx context.Context, sid string) error {
	if c.State(sid) == StateClosed {
		return ErrSessionClosed
	}

	if err := c.store.Reset(ctx); err != nil {
		c.logger.Error("Failed to reset session store", "session", sid, "error", err)
	}

	c.out.Send(sid, Event{Name: EventResetDone, Data: []session.Turn{}})
	return nil
}

// Disconnect deletes sid's history and closes the session.
func (c *Controller) Disconnect(ctx context.Context, sid string) error {
	c.mu.Lock()
	_, ok := c.states[sid]
	delete(c.states, sid)
	c.mu.Unlock()

	if !ok {
		return ErrSessionClosed
	}

	if err := c.store.Delete(ctx, sid); err != nil {
		c.logger.Error("Failed to delete history", "session", sid, "error", err)
	}
	c.logger.Info("Session disconnected", "session", sid)
	return nil
}

func (c *Controller) activate(sid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[sid] == StateClosed {
		return false
	}
	c.states[sid] = StateActive
	return true
}
