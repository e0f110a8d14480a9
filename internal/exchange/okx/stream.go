// Package okx streams one instrument's L2 book from OKX (or the GoMarket relay
// of it) over a websocket.
package okx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradesim/internal/feed"
	"tradesim/internal/infra/metrics"
	"tradesim/internal/infra/network"
)

var (
	ErrNotConnected = errors.New("okx: not connected")
	ErrThrottled    = errors.New("okx: snapshot request throttled")
)

type Config struct {
	URL     string
	InstID  string
	Channel string
	Format  feed.Format

	PingInterval   time.Duration
	ReadTimeout    time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffFactor  float64

	// Buffer is the capacity of the event channel.
	Buffer int
	// ResyncBurst and ResyncPerSecond bound snapshot requests.
	ResyncBurst     int
	ResyncPerSecond float64
}

func (c *Config) setDefaults() {
	if c.Channel == "" {
		c.Channel = "books"
	}
	if c.Format == "" {
		c.Format = feed.FormatOKX
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * c.PingInterval
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 2 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 1.5
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	if c.ResyncBurst <= 0 {
		c.ResyncBurst = 2
	}
	if c.ResyncPerSecond <= 0 {
		c.ResyncPerSecond = 0.2
	}
}

// Client is a reconnecting websocket reader. Frames are passed through
// undecoded; the consumer owns decoding and book state.
type Client struct {
	cfg     Config
	logger  zerolog.Logger
	events  chan feed.Event
	limiter *network.TokenBucket
	dialer  *websocket.Dialer
	now     func() time.Time

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.setDefaults()
	return &Client{
		cfg:     cfg,
		logger:  logger.With().Str("component", "okx").Str("inst", cfg.InstID).Logger(),
		events:  make(chan feed.Event, cfg.Buffer),
		limiter: network.NewTokenBucket(cfg.ResyncBurst, cfg.ResyncPerSecond),
		dialer:  network.NewWSDialer(10 * time.Second),
		now:     time.Now,
	}
}

func (c *Client) Name() string { return "okx" }

func (c *Client) Events() <-chan feed.Event { return c.events }

// FullBookFrames is true for the GoMarket relay, which sends a full book per frame.
func (c *Client) FullBookFrames() bool { return c.cfg.Format == feed.FormatGoMarket }

// Run connects and reads until ctx is done. The event channel is closed on return.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	retry := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := c.connect(ctx)
		if err != nil {
			metrics.WSReconnectsTotal.WithLabelValues(c.Name(), "dial").Inc()
			delay := c.backoff(retry)
			retry++
			c.logger.Warn().Err(err).Int("retry", retry).Dur("delay", delay).Msg("ws connect failed")
			if !c.sleep(ctx, delay) {
				return nil
			}
			continue
		}
		retry = 0
		c.logger.Info().Str("url", c.cfg.URL).Msg("ws connected")
		if !c.emit(ctx, feed.Event{Kind: feed.EventConnected, ReceivedAt: c.now()}) {
			c.close()
			return nil
		}

		err = c.process(ctx, conn)
		c.close()
		if ctx.Err() != nil {
			return nil
		}
		metrics.WSReconnectsTotal.WithLabelValues(c.Name(), "read").Inc()
		c.logger.Warn().Err(err).Msg("ws disconnected")
		if !c.emit(ctx, feed.Event{Kind: feed.EventDisconnected, ReceivedAt: c.now(), Err: err}) {
			return nil
		}
		if !c.sleep(ctx, c.backoff(0)) {
			return nil
		}
	}
}

// RequestSnapshot resubscribes the book channel; the venue answers with a
// fresh snapshot. Requests beyond the configured rate return ErrThrottled.
func (c *Client) RequestSnapshot(ctx context.Context) error {
	if c.FullBookFrames() {
		return nil
	}
	if !c.limiter.Allow(c.now()) {
		metrics.ResyncRequestsTotal.WithLabelValues("throttled").Inc()
		return ErrThrottled
	}
	if err := c.writeJSON(c.op("unsubscribe")); err != nil {
		metrics.ResyncRequestsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("okx: unsubscribe: %w", err)
	}
	if err := c.writeJSON(c.op("subscribe")); err != nil {
		metrics.ResyncRequestsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("okx: subscribe: %w", err)
	}
	metrics.ResyncRequestsTotal.WithLabelValues("sent").Inc()
	c.logger.Info().Float64("tokens_left", c.limiter.Tokens(c.now())).Msg("snapshot requested")
	return nil
}

type opArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type opMsg struct {
	Op   string  `json:"op"`
	Args []opArg `json:"args"`
}

func (c *Client) op(name string) opMsg {
	return opMsg{Op: name, Args: []opArg{{Channel: c.cfg.Channel, InstID: c.cfg.InstID}}}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, http.Header{})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if c.cfg.Format == feed.FormatOKX {
		if err := c.writeJSON(c.op("subscribe")); err != nil {
			c.close()
			return nil, fmt.Errorf("subscribe: %w", err)
		}
	}
	return conn, nil
}

func (c *Client) process(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()
	go c.pingLoop(connCtx)

	for {
		_ = conn.SetReadDeadline(c.now().Add(c.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if !c.emit(ctx, feed.Frame(msg, c.now())) {
			return ctx.Err()
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var err error
			if c.cfg.Format == feed.FormatOKX {
				err = c.write(websocket.TextMessage, []byte("ping"))
			} else {
				err = c.writeControl(websocket.PingMessage)
			}
			if err != nil {
				c.logger.Warn().Err(err).Msg("ws ping failed")
				c.close()
				return
			}
		}
	}
}

func (c *Client) emit(ctx context.Context, ev feed.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, b)
}

func (c *Client) write(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	_ = conn.SetWriteDeadline(c.now().Add(5 * time.Second))
	return conn.WriteMessage(msgType, data)
}

func (c *Client) writeControl(msgType int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteControl(msgType, nil, c.now().Add(5*time.Second))
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) backoff(retry int) time.Duration {
	d := float64(c.cfg.BackoffInitial) * math.Pow(c.cfg.BackoffFactor, float64(retry))
	if d > float64(c.cfg.BackoffMax) {
		return c.cfg.BackoffMax
	}
	return time.Duration(d)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
