package slotd

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/msgslot/internal/config"
	"github.com/danmuck/msgslot/internal/device"
	"github.com/danmuck/msgslot/internal/observability"
	"github.com/danmuck/msgslot/internal/protocol/frame"
	"github.com/danmuck/msgslot/internal/protocol/schema"
	"github.com/danmuck/msgslot/internal/protocol/session"
	"github.com/danmuck/msgslot/internal/slot"
	"github.com/rs/zerolog/log"
)

// ServiceConfig configures one slotd instance.
type ServiceConfig struct {
	Name        string
	ListenAddr  string
	AdminAddr   string
	AdminToken  string
	Major       uint32
	Limits      slot.Limits
	CorsOrigins []string
	Devices     map[string]uint32
	// ConfigPath is watched for device table changes when Watch is set.
	ConfigPath string
	Watch      bool
	Session    session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfigFromFile(config.DefaultDaemonConfig())
}

// ServiceConfigFromFile maps a loaded daemon config onto ServiceConfig.
func ServiceConfigFromFile(cfg config.DaemonConfig) ServiceConfig {
	sess := session.DefaultConfig()
	sess.IdleTimeout = cfg.ReadTimeout.Duration
	sess.WriteTimeout = cfg.WriteTimeout.Duration
	return ServiceConfig{
		Name:       cfg.Name,
		ListenAddr: cfg.ListenAddr,
		AdminAddr:  cfg.AdminAddr,
		AdminToken: strings.TrimSpace(cfg.AdminToken),
		Major:      cfg.Major,
		Limits: slot.Limits{
			MaxSlots:    cfg.MaxSlots,
			MaxChannels: cfg.MaxChannels,
		},
		CorsOrigins: cfg.CorsOrigins,
		Devices:     config.DeviceTable(cfg.Devices),
		Session:     sess,
	}
}

// Service serves one device over framed TCP sessions.
type Service struct {
	cfg     ServiceConfig
	dev     *device.Device
	devices *DeviceTable
	started time.Time

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	// draining is set once connections are swept; later conns are refused.
	draining bool

	sessionClientCount atomic.Int64
	ready              atomic.Bool
	tornDown           atomic.Bool
}

func NewService(cfg ServiceConfig) *Service {
	def := DefaultServiceConfig()
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = def.Name
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.Major == 0 {
		cfg.Major = def.Major
	}
	if cfg.Devices == nil {
		cfg.Devices = def.Devices
	}
	cfg.Session = cfg.Session.WithDefaults()
	observability.RegisterMetrics()
	return &Service{
		cfg:     cfg,
		dev:     device.New(cfg.Major, slot.NewRegistry(cfg.Limits)),
		devices: NewDeviceTable(cfg.Devices),
		started: time.Now(),
		conns:   make(map[net.Conn]struct{}),
	}
}

func (s *Service) Device() *device.Device {
	return s.dev
}

func (s *Service) Devices() *DeviceTable {
	return s.devices
}

// Ready reports whether the session listener is accepting.
func (s *Service) Ready() bool {
	return s.ready.Load()
}

// Run listens on the configured addresses and blocks until ctx is done.
// The registry is torn down before Run returns.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.Teardown()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	log.Info().
		Str("name", s.cfg.Name).
		Str("addr", ln.Addr().String()).
		Uint32("major", s.cfg.Major).
		Int("devices", s.devices.Len()).
		Msg("slotd listening")

	errs := make(chan error, 3)
	var wg sync.WaitGroup
	if addr := strings.TrimSpace(s.cfg.AdminAddr); addr != "" {
		adminLn, err := net.Listen("tcp", addr)
		if err != nil {
			_ = ln.Close()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- NewAdmin(s).Serve(ctx, adminLn)
		}()
	}
	if s.cfg.Watch && strings.TrimSpace(s.cfg.ConfigPath) != "" {
		w, err := NewWatcher(s.cfg.ConfigPath, s.devices)
		if err != nil {
			_ = ln.Close()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- w.Run(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- s.Serve(ctx, ln)
	}()

	var first error
	select {
	case <-ctx.Done():
	case first = <-errs:
	}
	cancel()
	wg.Wait()
	return first
}

// Serve accepts sessions on ln until ctx is done.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	s.ready.Store(true)
	defer s.ready.Store(false)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.trackConn(conn) {
			_ = conn.Close()
			continue
		}
		go s.handleConn(conn)
	}
}

// Teardown frees every slot and channel. Later calls are no-ops.
func (s *Service) Teardown() {
	if !s.tornDown.CompareAndSwap(false, true) {
		return
	}
	s.closeAllConns()
	s.dev.Teardown()
}

func (s *Service) handleConn(conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)
	remote := conn.RemoteAddr().String()
	active := s.sessionClientCount.Add(1)
	observability.SetSessionConnections(active)
	log.Debug().Str("remote", remote).Int64("active_clients", active).Msg("slotd client connected")

	handles := newHandleTable()
	defer func() {
		released := handles.closeAll()
		remaining := s.sessionClientCount.Add(-1)
		observability.SetSessionConnections(remaining)
		log.Debug().
			Str("remote", remote).
			Int("released_handles", released).
			Int64("active_clients", remaining).
			Msg("slotd client disconnected")
	}()

	reader := bufio.NewReader(conn)
	if !s.handshake(conn, reader) {
		return
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		log.Warn().Err(err).Msg("slotd clear deadline")
	}

	limits := s.cfg.Session.Limits
	for {
		if idle := s.cfg.Session.IdleTimeout; idle > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(idle))
		}
		fr, err := frame.ReadFrame(reader, limits)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Debug().Str("remote", remote).Err(err).Msg("slotd read frame")
			}
			return
		}

		var payload []byte
		req, err := session.DecodeRequest(fr)
		if err != nil {
			log.Warn().
				Str("remote", remote).
				Str("message_name", schema.Name(fr.Header.MessageType)).
				Err(err).
				Msg("slotd decode request")
			payload, err = session.EncodeError(fr.Header.MessageID, errors.Join(slot.ErrInvalidArgument, err), limits)
		} else {
			res, opErr := s.dispatch(handles, req)
			if opErr != nil {
				payload, err = session.EncodeError(fr.Header.MessageID, opErr, limits)
			} else {
				payload, err = session.EncodeResult(fr.Header.MessageID, res, limits)
			}
		}
		if err != nil {
			log.Error().Str("remote", remote).Err(err).Msg("slotd encode response")
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.Session.WriteTimeout))
		if _, err := conn.Write(payload); err != nil {
			log.Warn().Str("remote", remote).Err(err).Msg("slotd write response")
			return
		}
	}
}

func (s *Service) handshake(conn net.Conn, reader *bufio.Reader) bool {
	_ = conn.SetDeadline(time.Now().Add(s.cfg.Session.HandshakeTimeout))
	ack := session.HelloAck{
		Status:      session.AckStatusAccepted,
		Server:      s.cfg.Name,
		Major:       s.cfg.Major,
		TimestampMS: uint64(time.Now().UnixMilli()),
	}

	hello, err := session.ReadHello(reader)
	switch {
	case err != nil:
		log.Warn().Str("remote", conn.RemoteAddr().String()).Err(err).Msg("slotd read hello")
		ack.Status = session.AckStatusRejected
		ack.Message = "invalid hello payload"
	case hello.Version != frame.Version:
		ack.Status = session.AckStatusRejected
		ack.Message = "unsupported wire version"
	}

	if err := session.WriteHelloAck(conn, ack); err != nil {
		log.Warn().Err(err).Msg("slotd write hello ack")
		return false
	}
	if !ack.Accepted() {
		return false
	}
	log.Debug().
		Str("remote", conn.RemoteAddr().String()).
		Str("client", hello.Client).
		Msg("slotd session accepted")
	return true
}

// trackConn registers conn unless the service is already draining.
func (s *Service) trackConn(conn net.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.draining {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.draining = true
	for conn := range s.conns {
		_ = conn.Close()
	}
}
