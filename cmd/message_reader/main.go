package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/danmuck/msgslot/internal/client"
	"github.com/danmuck/msgslot/internal/logging"
	"github.com/danmuck/msgslot/internal/slot"
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime("message_reader")
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run reads one message: <path> <channel>. The bytes go to stdout verbatim.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("message_reader", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	// Flags come first so a negative channel id reaches the range check.
	fs.SetInterspersed(false)
	addr := fs.String("addr", "", "slotd address (default $"+client.AddressEnv+" or "+client.DefaultAddress+")")
	configPath := fs.String("config", "", "optional client TOML config")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: message_reader [flags] <path> <channel>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}

	pos := fs.Args()
	if len(pos) != 2 {
		fmt.Fprintf(stderr, "message_reader: expected 2 arguments (path, channel), got %d\n", len(pos))
		return 1
	}
	path := pos[0]
	channel, err := strconv.Atoi(pos[1])
	if err != nil {
		fmt.Fprintf(stderr, "message_reader: invalid channel id %q\n", pos[1])
		return 1
	}
	if channel < 0 {
		fmt.Fprintln(stderr, "message_reader: channel id must be non negative")
		return 1
	}

	cfg, err := client.ResolveConfig(*configPath, *addr)
	if err != nil {
		fmt.Fprintf(stderr, "message_reader: %v\n", err)
		return 1
	}
	cfg.Name = "message_reader"
	c, err := client.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "message_reader: %v\n", err)
		return 1
	}
	conn, err := c.Connect(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "message_reader: connect %s: %v\n", cfg.Address, err)
		return 1
	}
	defer conn.Close()

	f, err := conn.Open(ctx, path)
	if err != nil {
		fmt.Fprintf(stderr, "message_reader: couldn't open the device at %s: %v\n", path, err)
		return 1
	}
	if err := f.SetChannel(ctx, uint64(channel)); err != nil {
		fmt.Fprintf(stderr, "message_reader: couldn't set channel id %d: %v\n", channel, err)
		return 1
	}
	buf := make([]byte, slot.MaxMessageLen)
	n, err := f.Read(ctx, buf)
	if err != nil {
		fmt.Fprintf(stderr, "message_reader: couldn't read the message: %v\n", err)
		return 1
	}
	if err := f.Close(ctx); err != nil {
		fmt.Fprintf(stderr, "message_reader: close: %v\n", err)
		return 1
	}
	if _, err := stdout.Write(buf[:n]); err != nil {
		fmt.Fprintf(stderr, "message_reader: couldn't write the message to stdout: %v\n", err)
		return 1
	}
	return 0
}
