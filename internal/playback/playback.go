// Package playback reads replies aloud. At most one message plays at a time;
// starting another releases the current one first.
package playback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/comigor/jenesi-go/internal/llm"
	"github.com/comigor/jenesi-go/internal/logger"
)

// ErrNoAudio is returned when synthesis produced nothing to play.
var ErrNoAudio = errors.New("playback: synthesis returned no audio")

// Player renders PCM audio.
type Player interface {
	Play(pcm []byte) (Handle, error)
}

// Handle is one running playback.
type Handle interface {
	Stop() error
	// Done is closed when playback ends, naturally or by Stop.
	Done() <-chan struct{}
}

// Controller tracks the single active playback.
type Controller struct {
	synth  llm.Synthesizer
	player Player

	mu       sync.Mutex
	activeID string
	handle   Handle
	// token changes on every acquire and release; a synthesis that finishes
	// under a stale token is dropped.
	token    uint64
	onChange func()
}

// New returns a playback controller.
func New(synth llm.Synthesizer, player Player) *Controller {
	return &Controller{synth: synth, player: player}
}

// OnChange registers fn to be called whenever the active message changes.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Active returns the id of the message being synthesized or played, or "".
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// Toggle stops id if it is active, otherwise releases whatever is playing and
// starts id. It returns once playback has started or failed. Failures are
// logged and leave nothing active.
func (c *Controller) Toggle(ctx context.Context, id, text string) {
	c.mu.Lock()
	if c.activeID == id {
		c.releaseLocked()
		c.mu.Unlock()
		c.changed()
		return
	}
	c.releaseLocked()
	c.activeID = id
	tok := c.token
	c.mu.Unlock()
	c.changed()

	pcm, err := c.synth.Synthesize(ctx, Normalize(text))
	if err == nil && len(pcm) == 0 {
		err = ErrNoAudio
	}

	c.mu.Lock()
	if tok != c.token {
		// Stopped or replaced while synthesizing.
		c.mu.Unlock()
		return
	}
	var h Handle
	if err == nil {
		h, err = c.player.Play(pcm)
	}
	if err != nil {
		c.activeID = ""
		c.token++
		c.mu.Unlock()
		logger.L.Error("speech playback failed", "message", id, "error", err)
		c.changed()
		return
	}
	c.handle = h
	c.mu.Unlock()

	go c.watch(tok, h)
}

// Stop releases the active playback, if any.
func (c *Controller) Stop() {
	c.mu.Lock()
	had := c.activeID != ""
	c.releaseLocked()
	c.mu.Unlock()
	if had {
		c.changed()
	}
}

func (c *Controller) watch(tok uint64, h Handle) {
	<-h.Done()
	c.mu.Lock()
	if tok != c.token {
		c.mu.Unlock()
		return
	}
	c.activeID = ""
	c.handle = nil
	c.token++
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) releaseLocked() {
	if c.handle != nil {
		if err := c.handle.Stop(); err != nil {
			logger.L.Warn("failed to stop playback", "message", c.activeID, "error", err)
		}
		c.handle = nil
	}
	c.activeID = ""
	c.token++
}

func (c *Controller) changed() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Normalize strips markdown emphasis and control characters so they are not
// read aloud.
func Normalize(text string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '*', '#', '`', '_':
			return -1
		case '\n', '\t':
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text))
}
