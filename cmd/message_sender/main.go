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
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime("message_sender")
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

// run sends one message: <path> <channel> <censorship> <message>.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := pflag.NewFlagSet("message_sender", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	// Flags come first so a negative channel id reaches the range check.
	fs.SetInterspersed(false)
	addr := fs.String("addr", "", "slotd address (default $"+client.AddressEnv+" or "+client.DefaultAddress+")")
	configPath := fs.String("config", "", "optional client TOML config")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: message_sender [flags] <path> <channel> <censorship> <message>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}

	pos := fs.Args()
	if len(pos) != 4 {
		fmt.Fprintf(stderr, "message_sender: expected 4 arguments (path, channel, censorship, message), got %d\n", len(pos))
		return 1
	}
	path, message := pos[0], pos[3]
	channel, err := strconv.Atoi(pos[1])
	if err != nil {
		fmt.Fprintf(stderr, "message_sender: invalid channel id %q\n", pos[1])
		return 1
	}
	if channel < 0 {
		fmt.Fprintln(stderr, "message_sender: channel id must be non negative")
		return 1
	}
	censorship, err := strconv.Atoi(pos[2])
	if err != nil {
		fmt.Fprintf(stderr, "message_sender: invalid censorship flag %q\n", pos[2])
		return 1
	}

	cfg, err := client.ResolveConfig(*configPath, *addr)
	if err != nil {
		fmt.Fprintf(stderr, "message_sender: %v\n", err)
		return 1
	}
	cfg.Name = "message_sender"
	c, err := client.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "message_sender: %v\n", err)
		return 1
	}
	conn, err := c.Connect(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "message_sender: connect %s: %v\n", cfg.Address, err)
		return 1
	}
	defer conn.Close()

	f, err := conn.Open(ctx, path)
	if err != nil {
		fmt.Fprintf(stderr, "message_sender: couldn't open the device at %s: %v\n", path, err)
		return 1
	}
	if err := f.SetCensorship(ctx, uint64(censorship)); err != nil {
		fmt.Fprintf(stderr, "message_sender: couldn't set censorship %d: %v\n", censorship, err)
		return 1
	}
	if err := f.SetChannel(ctx, uint64(channel)); err != nil {
		fmt.Fprintf(stderr, "message_sender: couldn't set channel id %d: %v\n", channel, err)
		return 1
	}
	n, err := f.Write(ctx, []byte(message))
	if err != nil {
		fmt.Fprintf(stderr, "message_sender: write failed: %v\n", err)
		return 1
	}
	if n != len(message) {
		fmt.Fprintf(stderr, "message_sender: partial write %d/%d\n", n, len(message))
		return 1
	}
	if err := f.Close(ctx); err != nil {
		fmt.Fprintf(stderr, "message_sender: close: %v\n", err)
		return 1
	}
	return 0
}
