package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/msgslot/internal/protocol/frame"
	"github.com/danmuck/msgslot/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAddress = "127.0.0.1:7235"
	AddressEnv     = "MSGSLOT_ADDR"
)

var (
	ErrAddressRequired = errors.New("client: slotd address required")
	ErrClosed          = errors.New("client: connection closed")
	ErrMismatchedReply = errors.New("client: reply does not match request")
)

type Config struct {
	Address string
	Name    string
	Session session.Config
}

// DefaultConfig targets $MSGSLOT_ADDR, falling back to DefaultAddress.
func DefaultConfig() Config {
	addr := strings.TrimSpace(os.Getenv(AddressEnv))
	if addr == "" {
		addr = DefaultAddress
	}
	return Config{
		Address: addr,
		Name:    "msgslot-client",
		Session: session.DefaultConfig(),
	}
}

type Client struct {
	cfg Config
	rng *rand.Rand
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultConfig().Name
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &Client{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Connect dials slotd and completes the hello handshake, retrying dial
// failures with backoff up to Session.MaxAttempts.
func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	var attempt int
	for {
		attempt++
		conn, err := c.dial(ctx)
		if err != nil {
			log.Debug().Int("attempt", attempt).Str("addr", c.cfg.Address).Err(err).Msg("client dial failed")
			if !c.shouldRetry(attempt) {
				return nil, err
			}
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		sc, err := c.hello(conn)
		if err == nil {
			return sc, nil
		}
		_ = conn.Close()
		if errors.Is(err, session.ErrHelloRejected) || !c.shouldRetry(attempt) {
			return nil, err
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.cfg.Session.ConnectTimeout}
	return dialer.DialContext(ctx, "tcp", c.cfg.Address)
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt < c.cfg.Session.MaxAttempts
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	return session.SleepBackoff(ctx, session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, c.rng))
}

func (c *Client) hello(conn net.Conn) (*Conn, error) {
	_ = conn.SetDeadline(time.Now().Add(c.cfg.Session.HandshakeTimeout))
	reader := bufio.NewReader(conn)
	if err := session.WriteHello(conn, session.NewHello(c.cfg.Name)); err != nil {
		return nil, err
	}
	ack, err := session.ReadHelloAck(reader)
	if err != nil {
		return nil, err
	}
	if !ack.Accepted() {
		return nil, fmt.Errorf("%w: %s", session.ErrHelloRejected, ack.Message)
	}
	_ = conn.SetDeadline(time.Time{})
	sc := &Conn{
		conn:   conn,
		reader: reader,
		cfg:    c.cfg.Session,
		server: ack.Server,
		major:  ack.Major,
	}
	sc.nextMessageID.Store(uint64(time.Now().UnixNano()))
	return sc, nil
}

// Conn is one live session with slotd. Requests are serialized.
type Conn struct {
	conn          net.Conn
	reader        *bufio.Reader
	cfg           session.Config
	server        string
	major         uint32
	nextMessageID atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// Server returns the daemon name reported during the handshake.
func (c *Conn) Server() string {
	return c.server
}

// Major returns the device major reported during the handshake.
func (c *Conn) Major() uint32 {
	return c.major
}

// Close drops the connection; slotd releases every handle opened on it.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Open opens the device at path.
func (c *Conn) Open(ctx context.Context, path string) (*File, error) {
	res, err := c.roundTrip(ctx, session.OpenRequest{Path: path})
	if err != nil {
		return nil, err
	}
	return &File{conn: c, handle: res.Handle, minor: res.Minor, path: path}, nil
}

func (c *Conn) roundTrip(ctx context.Context, req session.Request) (session.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return session.Result{}, ErrClosed
	}

	id := c.nextMessageID.Add(1)
	payload, err := session.EncodeRequest(id, req, c.cfg.Limits)
	if err != nil {
		return session.Result{}, err
	}
	if err := c.setWriteDeadline(ctx); err != nil {
		return session.Result{}, err
	}
	if _, err := c.conn.Write(payload); err != nil {
		return session.Result{}, err
	}

	if err := c.setReadDeadline(ctx); err != nil {
		return session.Result{}, err
	}
	fr, err := frame.ReadFrame(c.reader, c.cfg.Limits)
	if err != nil {
		return session.Result{}, err
	}
	if fr.Header.MessageID != id {
		return session.Result{}, fmt.Errorf("%w: sent=%d got=%d", ErrMismatchedReply, id, fr.Header.MessageID)
	}
	return session.DecodeResponse(fr)
}

func (c *Conn) setWriteDeadline(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return c.conn.SetWriteDeadline(deadline)
}

func (c *Conn) setReadDeadline(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return c.conn.SetReadDeadline(deadline)
}
