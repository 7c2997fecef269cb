package playback

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/comigor/jenesi-go/internal/logger"
)

// DefaultCommand plays raw 24 kHz mono s16le PCM from stdin.
var DefaultCommand = []string{"aplay", "-q", "-t", "raw", "-f", "S16_LE", "-r", "24000", "-c", "1"}

// ExecPlayer pipes PCM into an external audio player.
type ExecPlayer struct {
	Command []string
}

// Play starts the command with pcm on its stdin.
func (p ExecPlayer) Play(pcm []byte) (Handle, error) {
	argv := p.Command
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(pcm)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}
	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		stopped := h.stopped
		h.mu.Unlock()
		if err != nil && !stopped {
			logger.L.Warn("audio player exited with error", "command", argv[0], "error", err)
		}
		close(h.done)
	}()
	return h, nil
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	stopped bool
}

func (h *execHandle) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	default:
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (h *execHandle) Done() <-chan struct{} { return h.done }
