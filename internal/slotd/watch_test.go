package slotd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/msgslot/internal/slot"
	"github.com/danmuck/msgslot/internal/testutil/testlog"
)

const watchedConfig = `
[[devices]]
path = "/dev/msgslot0"
minor = 0

[[devices]]
path = "/dev/msgslot9"
minor = 9
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestWatcherReload(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "slotd.toml")
	writeFile(t, path, watchedConfig)

	table := NewDeviceTable(map[string]uint32{"/dev/msgslot0": 0})
	w, err := NewWatcher(path, table)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(func() { _ = w.watcher.Close() })

	if err := w.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if minor, err := table.Resolve("/dev/msgslot9"); err != nil || minor != 9 {
		t.Fatalf("resolve after reload: minor=%d err=%v", minor, err)
	}

	writeFile(t, path, "[[devices]]\npath = \"/dev/x\"\nminor = 999\n")
	if err := w.Reload(); err == nil {
		t.Fatalf("expected invalid config to be rejected")
	}
	if table.Len() != 2 {
		t.Fatalf("rejected reload replaced table: %+v", table.List())
	}
}

func TestWatcherRunAppliesFileChanges(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "slotd.toml")
	writeFile(t, path, "[[devices]]\npath = \"/dev/msgslot0\"\nminor = 0\n")

	table := NewDeviceTable(map[string]uint32{"/dev/msgslot0": 0})
	w, err := NewWatcher(path, table)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	reloaded := make(chan error, 16)
	w.reloaded = func(err error) {
		select {
		case reloaded <- err:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	writeFile(t, path, watchedConfig)
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-reloaded:
		case <-deadline:
			t.Fatalf("watcher never applied the new table: %+v", table.List())
		}
		if _, err := table.Resolve("/dev/msgslot9"); err == nil {
			return
		}
	}
}

func TestDeviceTableResolve(t *testing.T) {
	testlog.Start(t)
	table := NewDeviceTable(map[string]uint32{" /dev/msgslot3 ": 3})
	if minor, err := table.Resolve("/dev/msgslot3"); err != nil || minor != 3 {
		t.Fatalf("resolve: minor=%d err=%v", minor, err)
	}
	if _, err := table.Resolve("/dev/nope"); !errors.Is(err, slot.ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
	table.Replace(nil)
	if table.Len() != 0 {
		t.Fatalf("expected empty table")
	}
}
