package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/msgslot/internal/config"
	"github.com/danmuck/msgslot/internal/slotd"
	"github.com/spf13/pflag"
)

// options is the slotd command line.
type options struct {
	configPath  string
	listen      string
	admin       string
	watch       bool
	writeConfig string
	force       bool

	listenSet bool
	adminSet  bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("slotd", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to slotd TOML config")
	fs.StringVar(&opts.listen, "listen", config.DefaultListenAddr, "session listen address")
	fs.StringVar(&opts.admin, "admin", "", "admin HTTP listen address (empty disables)")
	fs.BoolVar(&opts.watch, "watch", false, "reload the device table when --config changes")
	fs.StringVar(&opts.writeConfig, "write-config", "", "write a config template to this path and exit")
	fs.BoolVar(&opts.force, "force", false, "overwrite an existing file with --write-config")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	opts.listenSet = fs.Changed("listen")
	opts.adminSet = fs.Changed("admin")
	if opts.watch && strings.TrimSpace(opts.configPath) == "" {
		return options{}, fmt.Errorf("--watch requires --config")
	}
	return opts, nil
}

// loadServiceConfig reads the config file, if any, then applies flag
// overrides.
func loadServiceConfig(opts options) (slotd.ServiceConfig, error) {
	fileCfg := config.DefaultDaemonConfig()
	if path := strings.TrimSpace(opts.configPath); path != "" {
		loaded, err := config.LoadDaemonConfig(path)
		if err != nil {
			return slotd.ServiceConfig{}, err
		}
		fileCfg = loaded
	}
	if opts.listenSet {
		fileCfg.ListenAddr = strings.TrimSpace(opts.listen)
	}
	if opts.adminSet {
		fileCfg.AdminAddr = strings.TrimSpace(opts.admin)
	}
	if err := config.ValidateDaemonConfig(fileCfg); err != nil {
		return slotd.ServiceConfig{}, err
	}

	cfg := slotd.ServiceConfigFromFile(fileCfg)
	cfg.ConfigPath = strings.TrimSpace(opts.configPath)
	cfg.Watch = opts.watch
	return cfg, nil
}
