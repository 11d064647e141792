package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/msgslot/internal/config"
	"github.com/danmuck/msgslot/internal/logging"
	"github.com/danmuck/msgslot/internal/slotd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime("slotd")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "slotd: %v\n", err)
		return 2
	}

	if opts.writeConfig != "" {
		if err := config.WriteTemplate(opts.writeConfig, "slotd", opts.force); err != nil {
			fmt.Fprintf(stderr, "slotd: %v\n", err)
			return 1
		}
		log.Info().Str("path", opts.writeConfig).Msg("wrote slotd config template")
		return 0
	}

	cfg, err := loadServiceConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "slotd: %v\n", err)
		return 1
	}
	if err := slotd.NewService(cfg).Run(ctx); err != nil {
		fmt.Fprintf(stderr, "slotd: %v\n", err)
		return 1
	}
	return 0
}
