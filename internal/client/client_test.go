package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/msgslot/internal/protocol/frame"
	"github.com/danmuck/msgslot/internal/protocol/session"
	"github.com/danmuck/msgslot/internal/slot"
	"github.com/danmuck/msgslot/internal/slotd"
	"github.com/danmuck/msgslot/internal/testutil/testlog"
)

func fastConfig(addr string) Config {
	cfg := DefaultConfig()
	cfg.Address = addr
	cfg.Session.ConnectTimeout = 500 * time.Millisecond
	cfg.Session.Backoff = session.BackoffConfig{
		InitialDelay: 5 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     20 * time.Millisecond,
	}
	return cfg
}

func startSlotd(t *testing.T) string {
	t.Helper()
	svc := slotd.NewService(slotd.ServiceConfig{Devices: map[string]uint32{"/dev/msgslot0": 0}})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		svc.Teardown()
	})
	return ln.Addr().String()
}

// fakeServer accepts connections and hands each to handle.
func fakeServer(t *testing.T, handle func(net.Conn)) (string, *atomic.Int64) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var accepted atomic.Int64
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().String(), &accepted
}

func TestDefaultConfigReadsAddressEnv(t *testing.T) {
	testlog.Start(t)
	t.Setenv(AddressEnv, "10.0.0.1:9")
	if got := DefaultConfig().Address; got != "10.0.0.1:9" {
		t.Fatalf("unexpected address %q", got)
	}
	t.Setenv(AddressEnv, "")
	if got := DefaultConfig().Address; got != DefaultAddress {
		t.Fatalf("unexpected default address %q", got)
	}
	if _, err := New(Config{}); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "client.toml")
	body := "addr = \"127.0.0.1:9999\"\nconnect_timeout = \"750ms\"\nmax_attempts = 5\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	base := fastConfig("127.0.0.1:1")
	cfg, err := LoadConfigFile(path, base)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address != "127.0.0.1:9999" || cfg.Session.ConnectTimeout != 750*time.Millisecond || cfg.Session.MaxAttempts != 5 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Session.Backoff != base.Session.Backoff {
		t.Fatalf("undefined keys should keep base values")
	}

	cases := map[string]string{
		"unknown":  "port = 1\n",
		"duration": "connect_timeout = \"later\"\n",
		"attempts": "max_attempts = 0\n",
	}
	for name, body := range cases {
		p := filepath.Join(dir, name+".toml")
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadConfigFile(p, base); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestConnectGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := fastConfig(addr)
	cfg.Session.MaxAttempts = 3
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Connect(context.Background()); err == nil {
		t.Fatalf("expected dial failure")
	}
}

func TestConnectHonorsContext(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, err := New(fastConfig("127.0.0.1:1"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Connect(ctx); err == nil {
		t.Fatalf("expected error with canceled context")
	}
}

func TestConnectRejectedHelloIsNotRetried(t *testing.T) {
	testlog.Start(t)
	addr, accepted := fakeServer(t, func(conn net.Conn) {
		reader := bufio.NewReader(conn)
		if _, err := session.ReadHello(reader); err != nil {
			return
		}
		_ = session.WriteHelloAck(conn, session.HelloAck{
			Status:      session.AckStatusRejected,
			Message:     "go away",
			Server:      "fake",
			TimestampMS: 1,
		})
	})
	cfg := fastConfig(addr)
	cfg.Session.MaxAttempts = 4
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Connect(context.Background()); !errors.Is(err, session.ErrHelloRejected) {
		t.Fatalf("expected ErrHelloRejected, got %v", err)
	}
	if got := accepted.Load(); got != 1 {
		t.Fatalf("expected one attempt, got %d", got)
	}
}

func TestMismatchedReplyID(t *testing.T) {
	testlog.Start(t)
	addr, _ := fakeServer(t, func(conn net.Conn) {
		reader := bufio.NewReader(conn)
		if _, err := session.ReadHello(reader); err != nil {
			return
		}
		_ = session.WriteHelloAck(conn, session.HelloAck{
			Status:      session.AckStatusAccepted,
			Server:      "fake",
			TimestampMS: 1,
		})
		fr, err := frame.ReadFrame(reader, frame.DefaultLimits())
		if err != nil {
			return
		}
		payload, err := session.EncodeResult(fr.Header.MessageID+1, session.Result{Handle: "h"}, frame.DefaultLimits())
		if err != nil {
			return
		}
		_, _ = conn.Write(payload)
	})
	c, err := New(fastConfig(addr))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	conn, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Open(context.Background(), "/dev/msgslot0"); !errors.Is(err, ErrMismatchedReply) {
		t.Fatalf("expected ErrMismatchedReply, got %v", err)
	}
}

func TestFileAgainstLiveDaemon(t *testing.T) {
	testlog.Start(t)
	addr := startSlotd(t)
	c, err := New(fastConfig(addr))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	conn, err := c.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	f, err := conn.Open(ctx, "/dev/msgslot0")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if f.Path() != "/dev/msgslot0" || f.Minor() != 0 {
		t.Fatalf("unexpected file: path=%q minor=%d", f.Path(), f.Minor())
	}
	if _, err := f.Write(ctx, []byte("x")); !errors.Is(err, slot.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument before configuring, got %v", err)
	}
	if _, err := f.Write(ctx, bytes.Repeat([]byte("x"), 5000)); !errors.Is(err, slot.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for oversized write before configuring, got %v", err)
	}
	if err := f.SetCensorship(ctx, 2); !errors.Is(err, slot.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for censorship flag 2, got %v", err)
	}
	if err := f.SetChannel(ctx, 1<<33|6); err != nil {
		t.Fatalf("set channel with wide arg: %v", err)
	}
	for _, size := range []int{slot.MaxMessageLen + 1, 5000, 1 << 20} {
		if _, err := f.Write(ctx, bytes.Repeat([]byte("x"), size)); !errors.Is(err, slot.ErrMessageSize) {
			t.Fatalf("write of %d bytes: expected ErrMessageSize, got %v", size, err)
		}
	}
	msg := []byte("from the other side")
	if n, err := f.Write(ctx, msg); err != nil || n != len(msg) {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	buf := make([]byte, len(msg))
	if n, err := f.Read(ctx, buf); err != nil || string(buf[:n]) != string(msg) {
		t.Fatalf("read: n=%d err=%v data=%q", n, err, buf[:n])
	}
	if err := f.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("conn close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second conn close: %v", err)
	}
	if _, err := conn.Open(ctx, "/dev/msgslot0"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestResolveConfigPrecedence(t *testing.T) {
	testlog.Start(t)
	t.Setenv(AddressEnv, "127.0.0.1:1111")
	path := filepath.Join(t.TempDir(), "client.toml")
	if err := os.WriteFile(path, []byte("addr = \"127.0.0.1:2222\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := ResolveConfig("", "")
	if err != nil || cfg.Address != "127.0.0.1:1111" {
		t.Fatalf("env default: addr=%q err=%v", cfg.Address, err)
	}
	cfg, err = ResolveConfig(path, "")
	if err != nil || cfg.Address != "127.0.0.1:2222" {
		t.Fatalf("file override: addr=%q err=%v", cfg.Address, err)
	}
	cfg, err = ResolveConfig(path, "127.0.0.1:3333")
	if err != nil || cfg.Address != "127.0.0.1:3333" {
		t.Fatalf("flag override: addr=%q err=%v", cfg.Address, err)
	}
	if _, err := ResolveConfig(filepath.Join(t.TempDir(), "missing.toml"), ""); err == nil {
		t.Fatalf("expected missing file error")
	}
}
