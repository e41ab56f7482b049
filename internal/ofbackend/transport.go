// Package ofbackend launches and speaks to the OF backend subprocess: a
// line-delimited JSON stream over stdio. The core treats the backend as a
// bidirectional event stream, not a strict request/response RPC peer — one
// read-loop goroutine continuously decodes incoming lines and publishes
// them as ofevent.Event values; WriteFrame serializes outgoing frames.
package ofbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/ofcore/ofcore/internal/ofconfig"
	"github.com/ofcore/ofcore/internal/ofevent"
)

// queueCapacity bounds the incoming event channel. A bounded channel
// translates the reference model's "unbounded queue, no drop policy" into
// Go's channel model by backpressuring the reader instead of growing
// memory without limit (see SPEC_FULL.md §5).
const queueCapacity = 4096

// stopGrace is how long Close waits for the subprocess to exit after its
// stdin is closed, before sending a kill signal.
const stopGrace = 5 * time.Second

// Config configures how the backend subprocess is launched.
type Config struct {
	Command []string // argv[0] plus arguments
}

// Transport manages the OF backend subprocess lifecycle and its stdio streams.
type Transport struct {
	logger *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan ofevent.Event

	writeMu sync.Mutex
}

// New launches the backend subprocess per cfg and begins reading its stdout.
// The returned Transport's Events channel receives every decoded line.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("ofbackend: empty command")
	}

	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ofbackend: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ofbackend: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ofbackend: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ofbackend: start backend: %w", err)
	}

	t := &Transport{
		logger: logger,
		cmd:    cmd,
		stdin:  stdin,
		events: make(chan ofevent.Event, queueCapacity),
	}

	go t.drainStderr(stderr)
	go t.readLoop(stdout)

	return t, nil
}

func (t *Transport) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		t.logger.Debug("backend stderr", slog.String("line", scanner.Text()))
	}
}

func (t *Transport) readLoop(stdout io.Reader) {
	defer close(t.events)
	reader := bufio.NewReaderSize(stdout, 1<<20)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			t.logger.Log(context.Background(), ofconfig.LevelTrace, "backend frame", slog.String("line", line))
			ev, decodeErr := ofevent.Decode([]byte(line))
			if decodeErr != nil {
				t.logger.Warn("malformed backend frame", slog.String("error", decodeErr.Error()))
			} else {
				t.events <- ev
			}
		}
		if err != nil {
			if err != io.EOF {
				t.logger.Warn("backend stdout read error", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// Events returns the channel of decoded incoming frames. It is closed when
// the backend's stdout is closed or errors.
func (t *Transport) Events() <-chan ofevent.Event {
	return t.events
}

// WriteFrame serializes frame as one JSON line and writes it to the
// backend's stdin. Safe for concurrent use: both the event loop and
// arbitrary user tasks may call it.
func (t *Transport) WriteFrame(ctx context.Context, frame map[string]any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("ofbackend: encode frame: %w", err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(data); err != nil {
		return fmt.Errorf("ofbackend: write frame: %w", err)
	}
	return nil
}

// Close shuts the backend down: closes stdin, waits up to stopGrace for the
// subprocess to exit, then kills it.
func (t *Transport) Close() error {
	_ = t.stdin.Close()

	waitDone := make(chan error, 1)
	go func() { waitDone <- t.cmd.Wait() }()

	select {
	case err := <-waitDone:
		return err
	case <-time.After(stopGrace):
		t.logger.Warn("backend did not exit after stdin close, killing")
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		<-waitDone
		return fmt.Errorf("ofbackend: backend killed after %s grace period", stopGrace)
	}
}
