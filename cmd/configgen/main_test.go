package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/msgslot/internal/testutil/testlog"
)

func TestRunWritesAndValidatesTemplates(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []string{"slotd", "client"} {
		t.Run(kind, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), kind+".toml")
			var stderr bytes.Buffer
			if code := run([]string{"--kind", kind, "-o", path}, &stderr); code != 0 {
				t.Fatalf("write exit=%d stderr=%s", code, stderr.String())
			}
			if code := run([]string{"--kind", kind, "--validate", "-i", path}, &stderr); code != 0 {
				t.Fatalf("validate exit=%d stderr=%s", code, stderr.String())
			}
			if code := run([]string{"--kind", kind, "-o", path}, &stderr); code != 1 {
				t.Fatalf("expected refusal to overwrite, exit=%d", code)
			}
			if code := run([]string{"--kind", kind, "-o", path, "--force"}, &stderr); code != 0 {
				t.Fatalf("forced write exit=%d stderr=%s", code, stderr.String())
			}
		})
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("major = 99999\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	unknown := filepath.Join(dir, "client.toml")
	if err := os.WriteFile(unknown, []byte("nope = 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "unknown kind", args: []string{"--kind", "nope"}, want: 2},
		{name: "unknown flag", args: []string{"--nope"}, want: 2},
		{name: "invalid slotd", args: []string{"--validate", "-i", bad}, want: 1},
		{name: "unknown client key", args: []string{"--kind", "client", "--validate", "-i", unknown}, want: 1},
		{name: "missing file", args: []string{"--validate", "-i", filepath.Join(dir, "missing.toml")}, want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if code := run(tc.args, &stderr); code != tc.want {
				t.Fatalf("exit=%d want %d stderr=%s", code, tc.want, stderr.String())
			}
		})
	}
}
