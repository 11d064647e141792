package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/msgslot/internal/client"
	"github.com/danmuck/msgslot/internal/config"
	"github.com/danmuck/msgslot/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime("configgen")
	os.Exit(run(os.Args[1:], os.Stderr))
}

func defaultPath(kind string) (string, error) {
	switch kind {
	case "slotd":
		return "slotd.toml", nil
	case "client":
		return "client.toml", nil
	default:
		return "", fmt.Errorf("unknown kind: %s", kind)
	}
}

func validate(kind, path string) error {
	switch kind {
	case "slotd":
		_, err := config.LoadDaemonConfig(path)
		return err
	case "client":
		_, err := client.LoadConfigFile(path, client.DefaultConfig())
		return err
	default:
		return fmt.Errorf("unknown kind: %s", kind)
	}
}

func run(args []string, stderr io.Writer) int {
	fs := pflag.NewFlagSet("configgen", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	kind := fs.String("kind", "slotd", "config kind: slotd|client")
	output := fs.StringP("output", "o", "", "output path for config template")
	check := fs.Bool("validate", false, "validate an existing config file")
	input := fs.StringP("input", "i", "", "config path for validation (defaults to the per-kind path)")
	force := fs.Bool("force", false, "overwrite existing config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	k := strings.ToLower(strings.TrimSpace(*kind))
	fallback, err := defaultPath(k)
	if err != nil {
		fmt.Fprintf(stderr, "configgen: %v\n", err)
		return 2
	}

	if *check {
		path := *input
		if path == "" {
			path = fallback
		}
		if err := validate(k, path); err != nil {
			fmt.Fprintf(stderr, "configgen: %v\n", err)
			return 1
		}
		log.Info().Str("kind", k).Str("path", path).Msg("validated config")
		return 0
	}

	target := *output
	if target == "" {
		target = fallback
	}
	if err := config.WriteTemplate(target, k, *force); err != nil {
		fmt.Fprintf(stderr, "configgen: %v\n", err)
		return 1
	}
	log.Info().Str("kind", k).Str("path", target).Msg("wrote config template")
	return 0
}
