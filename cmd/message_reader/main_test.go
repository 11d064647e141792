package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/danmuck/msgslot/internal/device"
	"github.com/danmuck/msgslot/internal/slotd"
	"github.com/danmuck/msgslot/internal/testutil/testlog"
)

func startSlotd(t *testing.T) (*slotd.Service, string) {
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
	return svc, ln.Addr().String()
}

func store(t *testing.T, svc *slotd.Service, channel uint64, msg []byte) {
	t.Helper()
	f, err := svc.Device().Open(0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if err := f.Ioctl(device.CmdSetChannel, channel); err != nil {
		t.Fatalf("ioctl: %v", err)
	}
	if _, err := f.Write(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestReadWritesMessageVerbatim(t *testing.T) {
	testlog.Start(t)
	svc, addr := startSlotd(t)
	msg := []byte{'h', 'i', 0, '\n', 0xff}
	store(t, svc, 7, msg)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--addr", addr, "/dev/msgslot0", "7"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr.String())
	}
	if !bytes.Equal(stdout.Bytes(), msg) {
		t.Fatalf("stdout=%q want %q", stdout.Bytes(), msg)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("closed pipe")
}

func TestReadFailures(t *testing.T) {
	testlog.Start(t)
	svc, addr := startSlotd(t)
	store(t, svc, 7, []byte("hi"))
	cases := []struct {
		name   string
		args   []string
		stdout io.Writer
		want   string
	}{
		{"arg count", []string{"/dev/msgslot0"}, &bytes.Buffer{}, "expected 2 arguments"},
		{"channel format", []string{"/dev/msgslot0", "x"}, &bytes.Buffer{}, "invalid channel id"},
		{"negative channel", []string{"/dev/msgslot0", "-3"}, &bytes.Buffer{}, "non negative"},
		{"unknown device", []string{"/dev/missing", "7"}, &bytes.Buffer{}, "couldn't open"},
		{"zero channel", []string{"/dev/msgslot0", "0"}, &bytes.Buffer{}, "couldn't set channel"},
		{"unwritten channel", []string{"/dev/msgslot0", "8"}, &bytes.Buffer{}, "couldn't read"},
		{"stdout", []string{"/dev/msgslot0", "7"}, failingWriter{}, "stdout"},
	}
	for _, tc := range cases {
		var stderr bytes.Buffer
		args := append([]string{"--addr", addr}, tc.args...)
		if code := run(context.Background(), args, tc.stdout, &stderr); code != 1 {
			t.Fatalf("%s: expected exit 1, got %d", tc.name, code)
		}
		if !strings.Contains(stderr.String(), tc.want) {
			t.Fatalf("%s: stderr %q missing %q", tc.name, stderr.String(), tc.want)
		}
	}
}

func TestReadConnectFailure(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	var stdout, stderr bytes.Buffer
	t.Setenv("MSGSLOT_ADDR", addr)
	if code := run(context.Background(), []string{"/dev/msgslot0", "1"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "connect "+addr) {
		t.Fatalf("stderr %q missing connect diagnostic", stderr.String())
	}
}
