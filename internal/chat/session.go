package chat

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/comigor/jenesi-go/internal/history"
	"github.com/comigor/jenesi-go/internal/llm"
	"github.com/comigor/jenesi-go/internal/logger"
)

// session is one dispatched generation.
type session struct {
	epoch       uint64
	text        string
	history     []llm.Turn
	placeholder string
}

func (c *Controller) run(ctx context.Context, s *session) error {
	stream, err := c.gen.Send(ctx, s.history, s.text)
	if err != nil {
		c.fail(s, err)
		return fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer stream.Close()

	if ok, err := c.open(s); !ok {
		return err
	}
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			c.complete(s)
			return nil
		}
		if err != nil {
			c.fail(s, err)
			return fmt.Errorf("%w: %v", ErrGeneration, err)
		}
		if !c.apply(s, delta) {
			return nil
		}
	}
}

// open appends the streaming placeholder. It reports false when the session
// was abandoned while dispatching.
func (c *Controller) open(s *session) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.epoch != c.epoch {
		return false, nil
	}
	prevLen := c.log.Len()
	placeholder := history.Message{
		ID:          history.NewID(),
		Role:        history.RoleModel,
		Timestamp:   c.log.Stamp(),
		IsStreaming: true,
	}
	if err := c.log.Append(placeholder); err != nil {
		c.fire(TriggerFail)
		c.fire(TriggerSettle)
		return false, err
	}
	s.placeholder = placeholder.ID
	c.win.Sync(prevLen, c.log.Len())
	c.fire(TriggerOpen)
	c.notify()
	return true, nil
}

// apply appends one fragment to the placeholder. It reports false when the
// session was abandoned.
func (c *Controller) apply(s *session, delta string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.epoch != c.epoch {
		return false
	}
	n := c.log.Len()
	c.log.ReplaceByID(s.placeholder, func(m *history.Message) { m.Text += delta })
	c.win.Sync(n, c.log.Len())
	c.notify()
	return true
}

func (c *Controller) complete(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.epoch != c.epoch {
		return
	}
	c.log.SettleByID(s.placeholder, func(m *history.Message) { m.IsStreaming = false })
	c.fire(TriggerExhaust)
	c.fire(TriggerSettle)
	c.notify()
}

// fail records a generation failure. Without a placeholder an error entry is
// appended; an existing placeholder keeps its partial text, or becomes the
// error entry if nothing arrived.
func (c *Controller) fail(s *session, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.epoch != c.epoch {
		return
	}
	logger.L.Error("generation failed", "error", cause, "placeholder", s.placeholder)

	if s.placeholder == "" {
		prevLen := c.log.Len()
		err := c.log.Append(history.Message{
			ID:        history.NewID(),
			Role:      history.RoleModel,
			Text:      history.FailureText,
			Timestamp: c.log.Stamp(),
			IsError:   true,
		})
		if err != nil {
			logger.L.Error("failed to record generation failure", "error", err)
		}
		c.win.Sync(prevLen, c.log.Len())
	} else {
		c.log.SettleByID(s.placeholder, func(m *history.Message) {
			m.IsStreaming = false
			if m.Text == "" {
				m.Text = history.FailureText
				m.IsError = true
			}
		})
	}
	c.fire(TriggerFail)
	c.fire(TriggerSettle)
	c.notify()
}
