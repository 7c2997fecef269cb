// Package chat owns the conversation: the message log, its display window,
// the single in-flight generation and the retry/regenerate rules that rewrite
// the log tail.
//
// All state lives behind one mutex. Waiting on the backend (dispatch and
// every stream fragment) happens outside it, so readers always see a settled
// snapshot and fragments are applied in arrival order.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/comigor/jenesi-go/internal/history"
	"github.com/comigor/jenesi-go/internal/llm"
	"github.com/comigor/jenesi-go/internal/playback"
	"github.com/comigor/jenesi-go/internal/window"
)

var (
	ErrSessionActive       = errors.New("chat: a reply is already in progress")
	ErrEmptyInput          = errors.New("chat: empty message")
	ErrNothingToRetry      = errors.New("chat: no user message to retry")
	ErrNothingToRegenerate = errors.New("chat: no reply to regenerate")
	ErrGeneration          = errors.New("chat: generation failed")
	ErrNotSpeakable        = errors.New("chat: message cannot be read aloud")
	ErrPlaybackUnavailable = errors.New("chat: playback is not configured")
	ErrUnknownMessage      = errors.New("chat: unknown message")
)

// Controller is the conversation stream controller.
type Controller struct {
	mu       sync.Mutex
	gen      llm.Generator
	log      *history.Log
	win      *window.Window
	fsm      *stateless.StateMachine
	playback *playback.Controller

	// epoch identifies the current session. Clear bumps it so that fragments
	// of an abandoned session find nothing to apply.
	epoch uint64

	subsMu  sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// Option configures a Controller.
type Option func(*Controller)

// WithBatchSize sets the display window batch size.
func WithBatchSize(k int) Option {
	return func(c *Controller) { c.win = window.New(k) }
}

// WithPlayback enables reading replies aloud.
func WithPlayback(p *playback.Controller) Option {
	return func(c *Controller) { c.playback = p }
}

// New creates a controller over log. The log should already be loaded.
func New(gen llm.Generator, log *history.Log, opts ...Option) *Controller {
	c := &Controller{
		gen:  gen,
		log:  log,
		win:  window.New(window.DefaultBatchSize),
		fsm:  newSessionFSM(),
		subs: make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.win.Reset(log.Len())
	if c.playback != nil {
		c.playback.OnChange(c.notify)
	}
	return c
}

// Send answers text. It blocks until the reply is complete or has failed.
// A failed generation leaves an error entry in the log and returns an error
// wrapping ErrGeneration.
func (c *Controller) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	s, err := c.beginLocked(text)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.run(ctx, s)
}

// Retry re-sends the most recent user message. A trailing error entry is
// dropped and the user turn is reused rather than duplicated.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.stateLocked().Active() {
		c.mu.Unlock()
		return ErrSessionActive
	}
	var text string
	msgs := c.log.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == history.RoleUser {
			text = msgs[i].Text
			break
		}
	}
	if text == "" {
		c.mu.Unlock()
		return ErrNothingToRetry
	}
	s, err := c.beginLocked(text)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.run(ctx, s)
}

// Regenerate replaces the final reply. The tail must be a settled model
// message directly preceded by a user message; otherwise nothing changes and
// ErrNothingToRegenerate is returned.
func (c *Controller) Regenerate(ctx context.Context) error {
	c.mu.Lock()
	if c.stateLocked().Active() {
		c.mu.Unlock()
		return ErrSessionActive
	}
	msgs := c.log.Messages()
	n := len(msgs)
	if n < 2 || msgs[n-1].Role != history.RoleModel || msgs[n-1].IsStreaming || msgs[n-2].Role != history.RoleUser {
		c.mu.Unlock()
		return ErrNothingToRegenerate
	}
	reply, prompt := msgs[n-1], msgs[n-2]

	c.log.TruncateTail(func(m history.Message) bool { return m.ID == reply.ID })
	c.win.Sync(n, c.log.Len())
	if c.playback != nil && c.playback.Active() == reply.ID {
		c.playback.Stop()
	}

	s, err := c.beginLocked(prompt.Text)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.run(ctx, s)
}

// Clear resets the conversation to the greeting. An in-flight session is
// abandoned: its remaining fragments are discarded. Playback stops.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.log.Clear()
	c.win.Reset(c.log.Len())
	if c.stateLocked().Active() {
		c.fire(TriggerAbandon)
	}
	c.epoch++
	c.mu.Unlock()

	if c.playback != nil {
		c.playback.Stop()
	}
	c.notify()
}

// beginLocked normalizes the log tail for a turn answering text and
// dispatches the session state.
func (c *Controller) beginLocked(text string) (*session, error) {
	if c.stateLocked().Active() {
		return nil, ErrSessionActive
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	prevLen := c.log.Len()
	c.log.TruncateTail(func(m history.Message) bool { return m.IsError })

	if last, ok := c.log.Last(); !ok || last.Role != history.RoleUser || last.Text != text {
		err := c.log.Append(history.Message{
			ID:        history.NewID(),
			Role:      history.RoleUser,
			Text:      text,
			Timestamp: c.log.Stamp(),
		})
		if err != nil {
			c.win.Sync(prevLen, c.log.Len())
			return nil, err
		}
	}
	c.win.Sync(prevLen, c.log.Len())
	c.win.FollowTail()

	msgs := c.log.Messages()
	turns := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs[:len(msgs)-1] {
		if m.IsGreeting() || m.IsError || m.IsStreaming {
			continue
		}
		role := llm.RoleUser
		if m.Role == history.RoleModel {
			role = llm.RoleModel
		}
		turns = append(turns, llm.Turn{Role: role, Text: m.Text})
	}

	c.fire(TriggerDispatch)
	c.epoch++
	c.notify()
	return &session{epoch: c.epoch, text: text, history: turns}, nil
}

func (c *Controller) fire(t Trigger) {
	if err := c.fsm.Fire(t); err != nil {
		// Every call site is guarded by the current state; a refusal here is a bug.
		panic(fmt.Sprintf("chat: illegal session transition %s: %v", t, err))
	}
}

func (c *Controller) stateLocked() State {
	return c.fsm.MustState().(State)
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Messages returns the whole log.
func (c *Controller) Messages() []history.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.Messages()
}

// View is a consistent snapshot of what the display shows.
type View struct {
	Messages   []history.Message `json:"messages"`
	Total      int               `json:"total"`
	HasOlder   bool              `json:"hasOlder"`
	ScrolledUp bool              `json:"scrolledUp"`
	State      State             `json:"state"`
	Playing    string            `json:"playing,omitempty"`
}

// View returns the windowed suffix of the log.
func (c *Controller) View() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() (View, error) {
	n := c.log.Len()
	from, err := c.win.Bounds(n)
	if err != nil {
		return View{}, err
	}
	v := View{
		Messages:   c.log.Suffix(n - from),
		Total:      n,
		HasOlder:   from > 0,
		ScrolledUp: c.win.ScrolledUp(),
		State:      c.stateLocked(),
	}
	if c.playback != nil {
		v.Playing = c.playback.Active()
	}
	return v, nil
}

// Scroll feeds a scroll event from the presentation layer. When older
// entries are loaded the caller compensates its scroll position so that the
// entry at Growth.Anchor stays in place.
func (c *Controller) Scroll(sig window.ScrollSignal) window.ScrollResult {
	c.mu.Lock()
	r := c.win.OnScroll(c.log.Len(), sig)
	c.mu.Unlock()
	if r.Grew {
		c.notify()
	}
	return r
}

// FollowTail re-enables auto-scrolling, e.g. from a "jump to latest" button.
func (c *Controller) FollowTail() {
	c.mu.Lock()
	c.win.FollowTail()
	c.mu.Unlock()
	c.notify()
}

// Speak toggles reading the given reply aloud. Synthesis and audio failures
// are logged by the playback controller, not returned.
func (c *Controller) Speak(ctx context.Context, id string) error {
	if c.playback == nil {
		return ErrPlaybackUnavailable
	}
	c.mu.Lock()
	m, ok := c.log.Get(id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	if m.Role != history.RoleModel || m.IsStreaming || m.IsError {
		return ErrNotSpeakable
	}
	c.playback.Toggle(ctx, id, m.Text)
	return nil
}

// Subscribe returns a channel that receives a signal after every change.
// Signals coalesce; read View after each one. The returned function
// unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()
	return ch, func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

func (c *Controller) notify() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
