// Package sidecar implements channel.SessionClient on top of an external
// WhatsApp Web client process. The process speaks newline-delimited JSON:
// events on its stdout, send commands on its stdin.
package sidecar

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wabridge/pkg/channel"
	"wabridge/pkg/logger"
)

var (
	// ErrNotStarted is returned when sending before Initialize.
	ErrNotStarted = errors.New("sidecar: not started")
	// ErrClosed is returned when using a closed client.
	ErrClosed = errors.New("sidecar: closed")
	// ErrExited is returned for sends still pending when the sidecar exits.
	ErrExited = errors.New("sidecar: process exited")
)

const (
	eventBuffer  = 64
	maxFrameSize = 4 * 1024 * 1024
)

// SendError carries the failure reported by the sidecar for one send.
type SendError struct {
	ChatID string
	Reason string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sidecar: send to %s failed: %s", e.ChatID, e.Reason)
}

// Config describes how to launch the sidecar.
type Config struct {
	// Command is the executable, normally "node".
	Command string
	// Args are passed before the generated flags, normally the script path.
	Args []string
	// Env is appended to the current environment.
	Env []string
	// DataDir holds the persisted session so later runs skip pairing.
	DataDir string
	// Headless starts the browser without a window.
	Headless bool
}

// Client drives one sidecar process.
type Client struct {
	config Config
	log    zerolog.Logger

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex

	events chan channel.Event

	pending   map[string]pendingSend
	pendingMu sync.Mutex

	started atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{}

	// 用于测试的命令构造器
	cmdBuilder func(ctx context.Context, name string, args ...string) *exec.Cmd
}

type pendingSend struct {
	chatID string
	result chan error
}

// New creates a client. Nothing is started until Initialize.
func New(cfg Config) *Client {
	if cfg.Command == "" {
		cfg.Command = "node"
	}
	return &Client{
		config:     cfg,
		log:        logger.Component("sidecar").With().Logger(),
		events:     make(chan channel.Event, eventBuffer),
		pending:    make(map[string]pendingSend),
		stopCh:     make(chan struct{}),
		cmdBuilder: exec.CommandContext,
	}
}

// SetCmdBuilder replaces the command constructor (used by tests).
func (c *Client) SetCmdBuilder(builder func(ctx context.Context, name string, args ...string) *exec.Cmd) {
	c.cmdBuilder = builder
}

// Args returns the full argument list passed to the sidecar.
func (c *Client) Args() []string {
	args := append([]string{}, c.config.Args...)
	if c.config.DataDir != "" {
		args = append(args, "--data-dir", c.config.DataDir)
	}
	if c.config.Headless {
		args = append(args, "--headless")
	}
	return args
}

// Initialize starts the sidecar process and begins reading its events.
func (c *Client) Initialize(ctx context.Context) error {
	if c.stopped.Load() {
		return ErrClosed
	}
	if c.started.Swap(true) {
		return nil
	}

	cmd := c.cmdBuilder(ctx, c.config.Command, c.Args()...)
	if len(c.config.Env) > 0 {
		cmd.Env = append(os.Environ(), c.config.Env...)
	}
	configurePlatformProcess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start sidecar %s: %w", c.config.Command, err)
	}
	c.cmd = cmd

	c.log.Info().
		Int("pid", cmd.Process.Pid).
		Str("command", c.config.Command).
		Strs("args", c.Args()).
		Msg("Sidecar process started")

	go c.drainStderr(stderr)
	c.attach(stdout, stdin, cmd.Wait)
	return nil
}

// attach wires the client to the sidecar's streams. wait is called after
// stdout reaches EOF and reports the process exit status; it may be nil.
func (c *Client) attach(stdout io.Reader, stdin io.WriteCloser, wait func() error) {
	c.started.Store(true)
	c.stdin = stdin
	go c.readLoop(stdout, wait)
}

// Events returns the event stream. It is closed when the sidecar exits
// or the client is closed.
func (c *Client) Events() <-chan channel.Event {
	return c.events
}

// SendMessage asks the sidecar to send body to chatID and waits for the
// sidecar's send_result.
func (c *Client) SendMessage(ctx context.Context, chatID, body string) error {
	if c.stopped.Load() {
		return ErrClosed
	}
	if !c.started.Load() || c.stdin == nil {
		return ErrNotStarted
	}

	id := uuid.NewString()
	result := make(chan error, 1)

	c.pendingMu.Lock()
	c.pending[id] = pendingSend{chatID: chatID, result: result}
	c.pendingMu.Unlock()

	if err := c.write(outboundFrame{Type: commandSend, ID: id, ChatID: chatID, Message: body}); err != nil {
		c.forget(id)
		return err
	}

	c.log.Debug().Str("id", id).Str("chat_id", chatID).Msg("Send command written")

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.stopCh:
		c.forget(id)
		return ErrClosed
	}
}

// Close stops the sidecar. Pending sends fail with ErrClosed.
func (c *Client) Close() error {
	if c.stopped.Swap(true) {
		return nil
	}
	close(c.stopCh)

	if c.stdin != nil {
		_ = c.stdin.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		return killProcess(c.cmd)
	}
	return nil
}

func (c *Client) write(frame outboundFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.stdin.Write(data); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

func (c *Client) forget(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) resolve(id, reason string) {
	c.pendingMu.Lock()
	p, ok := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()

	if !ok {
		c.log.Debug().Str("id", id).Msg("send_result for unknown id")
		return
	}
	if reason != "" {
		p.result <- &SendError{ChatID: p.chatID, Reason: reason}
		return
	}
	p.result <- nil
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, p := range c.pending {
		p.result <- err
		delete(c.pending, id)
	}
}

func (c *Client) readLoop(stdout io.Reader, wait func() error) {
	defer close(c.events)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			c.log.Warn().Err(err).Str("line", string(line)).Msg("Unparseable sidecar frame")
			continue
		}
		c.handleFrame(frame)
	}

	scanErr := scanner.Err()
	var waitErr error
	if wait != nil {
		waitErr = wait()
	}
	c.failPending(ErrExited)

	if c.stopped.Load() {
		return
	}

	reason := "sidecar exited"
	switch {
	case scanErr != nil:
		reason = fmt.Sprintf("sidecar stream error: %v", scanErr)
	case waitErr != nil:
		reason = fmt.Sprintf("sidecar exited: %v", waitErr)
	}
	c.emit(channel.Event{Type: channel.EventDisconnected, Reason: reason})
}

func (c *Client) handleFrame(frame inboundFrame) {
	switch frame.Type {
	case frameQR:
		c.emit(channel.Event{Type: channel.EventQR, QR: frame.QR})
	case frameAuthenticated:
		c.emit(channel.Event{Type: channel.EventAuthenticated})
	case frameReady:
		c.emit(channel.Event{Type: channel.EventReady})
	case frameMessage:
		if frame.Message == nil {
			c.log.Warn().Msg("message frame without message")
			return
		}
		c.emit(channel.Event{Type: channel.EventMessage, Message: frame.Message.toInbound()})
	case frameSendResult:
		c.resolve(frame.ID, frame.Error)
	case frameAuthFailure:
		c.emit(channel.Event{Type: channel.EventAuthFailure, Reason: frame.Error})
	case frameDisconnected:
		c.emit(channel.Event{Type: channel.EventDisconnected, Reason: frame.Reason})
	default:
		c.log.Debug().Str("type", frame.Type).Msg("Ignoring unknown sidecar frame")
	}
}

func (c *Client) emit(ev channel.Event) {
	select {
	case c.events <- ev:
	case <-c.stopCh:
	}
}

func (c *Client) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		c.log.Debug().Str("line", scanner.Text()).Msg("sidecar stderr")
	}
}
