// glautomata reconciles local Unix accounts, SSH login keys, and sudo grants
// against GitLab/GitHub group membership. It is a one-shot batch job meant
// to run as root from cron or a systemd timer.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/automata-ops/glautomata/internal/config"
	"github.com/automata-ops/glautomata/internal/logger"
	"github.com/automata-ops/glautomata/internal/run"
	"github.com/automata-ops/glautomata/internal/sysacct"
)

const (
	exitOK      = 0
	exitFailure = 1
	// exitInsecureConfig: the config file carries API tokens and is
	// readable by non-owners.
	exitInsecureConfig = 15
	// exitProtectedAccount is reserved: a protected system account was
	// targeted for deletion and the run aborted immediately.
	exitProtectedAccount = 101
)

func main() {
	configPath := pflag.StringP("config", "c", "/etc/glautomata/config.yaml", "path to the configuration file")
	debug := pflag.Bool("debug", false, "force debug logging regardless of the configured level")
	pflag.Parse()

	os.Exit(realMain(*configPath, *debug))
}

func realMain(configPath string, debug bool) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "glautomata: %v\n", err)
		if errors.Is(err, config.ErrInsecurePermissions) {
			return exitInsecureConfig
		}
		return exitFailure
	}

	level, _ := cfg.Logging.Level() // validated during Load
	if debug {
		level = logger.LevelDebug
	}
	if err := logger.Init(cfg.Logging.LogPath, level); err != nil {
		fmt.Fprintf(os.Stderr, "glautomata: opening log file: %v\n", err)
		return exitFailure
	}
	defer logger.Close()

	deps, err := run.DefaultDeps(cfg)
	if err != nil {
		logger.Error("%v", err)
		return exitFailure
	}

	if err := run.Run(cfg, deps); err != nil {
		logger.Error("Run aborted: %v", err)
		if errors.Is(err, sysacct.ErrProtectedUser) {
			return exitProtectedAccount
		}
		return exitFailure
	}
	return exitOK
}
