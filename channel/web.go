package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/linanwx/triptych/bus"
	"github.com/linanwx/triptych/internal/health"
	"github.com/linanwx/triptych/logger"
)

const (
	webChannelName = "web"

	// wsBufferSize bounds queued events per client. A client that falls this
	// far behind is disconnected.
	wsBufferSize   = 512
	wsWriteTimeout = 10 * time.Second
)

// WebConfig configures the websocket channel.
type WebConfig struct {
	Addr string
}

// WebChannel serves panel snapshots over a websocket at /ws and accepts turns
// from clients.
type WebChannel struct {
	cfg     WebConfig
	deps    Deps
	started time.Time

	server   *http.Server
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// NewWebChannel creates the websocket channel.
func NewWebChannel(cfg WebConfig, deps Deps) *WebChannel {
	return &WebChannel{
		cfg:     cfg,
		deps:    deps,
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

func (c *WebChannel) Name() string { return webChannelName }

func (c *WebChannel) Done() <-chan struct{} { return c.done }

// Addr returns the bound address once started.
func (c *WebChannel) Addr() string {
	if c.listener == nil {
		return c.cfg.Addr
	}
	return c.listener.Addr().String()
}

// Handler returns the HTTP routes of the channel.
func (c *WebChannel) Handler() http.Handler {
	if c.ctx == nil {
		c.ctx, c.cancel = context.WithCancel(context.Background())
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", c.handleWS)
	mux.HandleFunc("GET /api/sessions", c.handleSessions)
	mux.HandleFunc("GET /api/health", c.handleHealth)
	return mux
}

func (c *WebChannel) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	ln, err := net.Listen("tcp", c.cfg.Addr)
	if err != nil {
		return err
	}
	c.listener = ln
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("web channel server error", "err", err)
		}
		c.finish()
	}()

	logger.Info("web channel started", "addr", ln.Addr().String())
	return nil
}

func (c *WebChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	var err error
	if c.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = c.server.Shutdown(shutdownCtx)
	}
	c.wg.Wait()
	c.finish()
	logger.Info("web channel stopped")
	return err
}

func (c *WebChannel) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *WebChannel) handleSessions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.deps.Sessions.Snapshots()); err != nil {
		logger.Warn("write sessions response failed", "err", err)
	}
}

func (c *WebChannel) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := health.Collect(health.Options{
		Panels:    c.deps.Sessions.Snapshots(),
		StartedAt: c.started,
		Channels:  []string{webChannelName},
	})
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		logger.Warn("write health response failed", "err", err)
	}
}

// inbound is a client frame.
type inbound struct {
	Type string `json:"type"` // turn, reset
	Text string `json:"text,omitempty"`
}

// errorFrame reports a rejected client request.
type errorFrame struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

func newErrorFrame(err error) errorFrame {
	return errorFrame{Type: "error", Data: map[string]string{"message": err.Error()}}
}

func (c *WebChannel) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	out := make(chan any, wsBufferSize)
	var closeOnce sync.Once
	overflow := make(chan struct{})
	send := func(v any) {
		select {
		case out <- v:
		default:
			closeOnce.Do(func() { close(overflow) })
		}
	}

	// Current state first, then live events.
	for _, snap := range c.deps.Sessions.Snapshots() {
		if ev, err := bus.NewEvent(bus.EventSessionSnapshot, webChannelName, snap); err == nil {
			send(ev)
		}
	}
	var subID string
	if c.deps.Bus != nil {
		subID = c.deps.Bus.Subscribe("", func(_ context.Context, ev *bus.Event) { send(ev) })
		defer c.deps.Bus.Unsubscribe(subID)
	}

	go c.writeLoop(ctx, conn, out, overflow, cancel)

	remote := r.RemoteAddr
	logger.Info("websocket client connected", "remote", remote)
	defer logger.Info("websocket client disconnected", "remote", remote)

	for {
		var msg inbound
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}
		switch strings.ToLower(msg.Type) {
		case "turn":
			text := msg.Text
			go func() {
				if _, err := c.deps.Dispatcher.SendTurn(ctx, text); err != nil {
					send(newErrorFrame(err))
				}
			}()
		case "reset":
			if err := resetLogs(c.deps); err != nil {
				send(newErrorFrame(err))
			}
		default:
			send(newErrorFrame(errors.New("unknown message type: " + msg.Type)))
		}
	}
}

func (c *WebChannel) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan any, overflow <-chan struct{}, cancel context.CancelFunc) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-overflow:
			conn.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with events")
			return
		case v := <-out:
			writeCtx, writeCancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, v)
			writeCancel()
			if err != nil {
				return
			}
		}
	}
}
