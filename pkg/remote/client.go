// Package remote implements the timecode channel: a long-lived websocket
// connection to the control server that is translated into typed Commands.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/user/framecue/pkg/metrics"
	"github.com/user/framecue/pkg/ports"
)

// Options configures a Client.
type Options struct {
	// URL is the ws:// or wss:// endpoint.
	URL string
	// ClientType is announced in the register message.
	ClientType string
	// ReconnectDelay is the fixed wait between connection attempts.
	ReconnectDelay time.Duration
	// DialTimeout bounds connecting and the handshake.
	DialTimeout time.Duration
	// Buffer is the capacity of the command channel.
	Buffer int
	// OnState is called on every state change with a human readable status.
	OnState func(state ports.ConnectionState, status string)
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// DefaultOptions returns the defaults for the production server.
func DefaultOptions() Options {
	return Options{
		URL:            "wss://signcollect.nl/zin_wss",
		ClientType:     "player",
		ReconnectDelay: 3 * time.Second,
		DialTimeout:    10 * time.Second,
		Buffer:         64,
	}
}

// Client maintains the connection and reconnects after any disconnect that
// was not caused by canceling Run's context.
type Client struct {
	opts    Options
	log     ports.Logger
	metrics *metrics.Metrics
	cmds    chan Command

	mu      sync.Mutex
	state   ports.ConnectionState
	status  string
	session string
}

// NewClient creates a client. Zero option fields take their defaults.
func NewClient(opts Options, log ports.Logger) *Client {
	def := DefaultOptions()
	if opts.URL == "" {
		opts.URL = def.URL
	}
	if opts.ClientType == "" {
		opts.ClientType = def.ClientType
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = def.ReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = def.DialTimeout
	}
	if opts.Buffer <= 0 {
		opts.Buffer = def.Buffer
	}
	return &Client{
		opts:    opts,
		log:     log.WithComponent("remote"),
		metrics: opts.Metrics,
		cmds:    make(chan Command, opts.Buffer),
		state:   ports.Disconnected,
		status:  "Disconnected",
	}
}

// Commands returns the channel of decoded commands. It is closed when Run
// returns.
func (c *Client) Commands() <-chan Command {
	return c.cmds
}

// State returns the connection state.
func (c *Client) State() ports.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the status text shown next to the state.
func (c *Client) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Session returns the id of the current connection attempt.
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setState(state ports.ConnectionState, format string, args ...interface{}) {
	status := fmt.Sprintf(format, args...)
	c.mu.Lock()
	c.state = state
	c.status = status
	c.mu.Unlock()

	c.metrics.SetConnectionState(int(state))
	if c.opts.OnState != nil {
		c.opts.OnState(state, status)
	}
}

// Run connects and processes messages until ctx is canceled. It never
// returns connection errors; they only drive the state and the retry loop.
func (c *Client) Run(ctx context.Context) {
	defer close(c.cmds)

	for {
		err := c.connect(ctx)
		if ctx.Err() != nil {
			c.setState(ports.Disconnected, "Disconnected")
			return
		}

		switch classify(err) {
		case ports.Refused:
			c.log.Error("Connection refused. Is the server running at %s?", c.opts.URL)
			c.setState(ports.Refused, "Connection refused")
		case ports.Disconnected:
			c.log.Warn("Connection closed by server")
			c.setState(ports.Disconnected, "Connection closed by server")
		default:
			c.log.Error("Connection error: %v", err)
			c.setState(ports.Errored, "Connection error: %v", err)
		}

		c.log.Info("Reconnecting in %v...", c.opts.ReconnectDelay)
		c.setState(ports.Reconnecting, "Reconnecting in %v", c.opts.ReconnectDelay)
		c.metrics.IncReconnects()

		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(ports.Disconnected, "Disconnected")
			return
		case <-timer.C:
		}
	}
}

func classify(err error) ports.ConnectionState {
	var status ws.StatusError
	if errors.Is(err, syscall.ECONNREFUSED) || errors.As(err, &status) {
		return ports.Refused
	}
	var closed wsutil.ClosedError
	if errors.As(err, &closed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ports.Disconnected
	}
	return ports.Errored
}

// lockedWriter serializes writes from the read loop's control frame replies
// and the close frame sent on shutdown.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type readWriter struct {
	io.Reader
	io.Writer
}

func (c *Client) connect(ctx context.Context) error {
	id := uuid.NewString()
	c.mu.Lock()
	c.session = id
	c.mu.Unlock()

	c.log.Info("Connecting to WebSocket server: %s", c.opts.URL)
	c.setState(ports.Connecting, "Connecting to %s", c.opts.URL)

	dialer := ws.Dialer{Timeout: c.opts.DialTimeout}
	conn, br, _, err := dialer.Dial(ctx, c.opts.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	// The server may send its greeting together with the handshake response,
	// in which case it sits in br.
	var r io.Reader = conn
	if br != nil {
		r = br
		defer ws.PutReader(br)
	}
	w := &lockedWriter{w: conn}
	rw := readWriter{Reader: r, Writer: w}

	stop := context.AfterFunc(ctx, func() {
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteClientMessage(w, ws.OpClose, body)
		_ = conn.Close()
	})
	defer stop()

	c.log.Info("Connected successfully!")
	c.log.Debug("Session %s", id)
	c.setState(ports.Connected, "Connected to %s", c.opts.URL)

	if err := c.register(w); err != nil {
		return err
	}
	return c.readLoop(ctx, rw)
}

func (c *Client) register(w io.Writer) error {
	payload, err := json.Marshal(RegisterMessage{Type: TypeRegister, ClientType: c.opts.ClientType})
	if err != nil {
		return err
	}
	if err := wsutil.WriteClientText(w, payload); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	c.log.Info("Sent registration message")
	return nil
}

func (c *Client) readLoop(ctx context.Context, rw io.ReadWriter) error {
	for {
		data, op, err := wsutil.ReadServerData(rw)
		if err != nil {
			return err
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}
		c.handle(ctx, data)
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	msg, err := Parse(data)
	if err != nil {
		c.metrics.IncMalformed()
		c.log.Warn("Dropping malformed message: %v", err)
		return
	}
	c.metrics.IncRemoteMessage(msg.Type)

	switch msg.Type {
	case TypeConnection:
		c.log.Info("Server: %s", msg.Greeting)
		c.setState(ports.Connected, "Server: %s", msg.Greeting)
	case TypeRegistered:
		c.log.Info("Registered as: %s", msg.ClientType)
		c.setState(ports.Registered, "Registered as %s", msg.ClientType)
	case TypeTimecode, TypeVideoInfo, TypePlay, TypePause:
		c.emit(ctx, *msg.Command)
	case TypePong:
	default:
		c.log.Warn("Unknown message type: %s", msg.Type)
	}
}

// dropQueuedSeeks removes the timecodes still queued and requeues the other
// commands in their original order. Only the read loop sends on cmds, so the
// requeued commands always fit.
func (c *Client) dropQueuedSeeks() int {
	var kept []Command
	dropped := 0
drain:
	for {
		select {
		case queued := <-c.cmds:
			if queued.Kind == SeekCommand {
				dropped++
			} else {
				kept = append(kept, queued)
			}
		default:
			break drain
		}
	}
	for _, queued := range kept {
		c.cmds <- queued
	}
	return dropped
}

// emit hands cmd to the consumer. When the consumer falls behind, queued
// timecodes are discarded in favor of the newest one so the last position
// applied is always the last one received.
func (c *Client) emit(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case SeekCommand:
		select {
		case c.cmds <- cmd:
			return
		default:
		}
		dropped := c.dropQueuedSeeks()
		c.log.Debug("Command queue full, dropped %d stale timecodes before frame %d", dropped, cmd.Frame)
		select {
		case c.cmds <- cmd:
		case <-ctx.Done():
		}
	case LoadCommand:
		c.log.Info("Video info received: %s", cmd.VideoPath)
		select {
		case c.cmds <- cmd:
		case <-ctx.Done():
		}
	default:
		c.log.Info("Remote %s", cmd.Kind)
		select {
		case c.cmds <- cmd:
		case <-ctx.Done():
		}
	}
}
