// Package run drives one reconciliation pass: every configured group in
// order, then a single sudoers regeneration over the full configuration.
package run

import (
	"fmt"

	"github.com/automata-ops/glautomata/internal/config"
	"github.com/automata-ops/glautomata/internal/identity"
	"github.com/automata-ops/glautomata/internal/instance"
	"github.com/automata-ops/glautomata/internal/keyfile"
	"github.com/automata-ops/glautomata/internal/logger"
	"github.com/automata-ops/glautomata/internal/platform"
	"github.com/automata-ops/glautomata/internal/reconcile"
	"github.com/automata-ops/glautomata/internal/sudoers"
	"github.com/automata-ops/glautomata/internal/sysacct"
)

// Deps are the collaborators a run mutates the world through. They are a
// struct so tests can substitute fakes piecewise.
type Deps struct {
	Source       *identity.Source
	Sys          reconcile.SystemOps
	Materializer *keyfile.Materializer
	Sudoers      *sudoers.Generator
}

// DefaultDeps wires the live collaborators for the host this process runs on.
func DefaultDeps(cfg *config.Config) (Deps, error) {
	gitlab := platform.NewGitLabClient(cfg.GitLab.Address, cfg.GitLab.Token)

	var app *platform.AppAuth
	if cfg.GitHub.AppID != 0 {
		var err error
		app, err = platform.NewAppAuth(cfg.GitHub.AppID, cfg.GitHub.AppInstallationID, cfg.GitHub.AppPrivateKeyPath)
		if err != nil {
			return Deps{}, fmt.Errorf("configuring github app auth: %w", err)
		}
	}
	github := platform.NewGitHubClient(cfg.GitHub.Address, cfg.GitHub.Token, app)

	ops := sysacct.NewOps(cfg.GitLab.HomeDirPath, cfg.GitLab.ProtectedUIDStart, cfg.GitLab.ProtectedGIDStart)

	return Deps{
		Source: &identity.Source{
			GitLab:          gitlab,
			GitHub:          github,
			Files:           gitlab,
			Host:            instance.NewResolver(),
			ManifestProject: cfg.GitLab.InstanceProject,
			ManifestFile:    cfg.GitLab.InstanceFile,
		},
		Sys:          ops,
		Materializer: &keyfile.Materializer{Lookup: ops.LookupUser},
		Sudoers:      sudoers.NewGenerator(cfg.GitLab.SudoersFile),
	}, nil
}

// Run executes one full reconciliation pass. Groups are processed strictly
// in configuration order; the shared RunState makes creation at-most-once
// across groups. Any returned error has already stopped further mutation.
func Run(cfg *config.Config, deps Deps) error {
	logger.Debug("Processing %d groups from the config file.", len(cfg.Groups))

	state := reconcile.NewRunState()
	rec := &reconcile.Reconciler{
		Sys:               deps.Sys,
		ProtectedGIDStart: cfg.GitLab.ProtectedGIDStart,
	}

	for _, group := range cfg.Groups {
		logger.Debug("Querying users in group '%s'.", group.Name)
		users, err := deps.Source.Resolve(group)
		if err != nil {
			return fmt.Errorf("resolving group %s: %w", group.LinuxGroup, err)
		}
		keyed, err := deps.Source.AttachKeys(users)
		if err != nil {
			return fmt.Errorf("aggregating keys for group %s: %w", group.LinuxGroup, err)
		}

		gid, err := rec.Reconcile(group, keyed, state)
		if err != nil {
			return err
		}

		// Keys are re-materialized for every member on every run, not just
		// new accounts, so revocations at the source propagate.
		for _, ki := range keyed {
			name := identity.Sanitize(ki.Username)
			if err := deps.Materializer.Materialize(name, ki.Keys, gid); err != nil {
				return err
			}
		}
	}

	// The sudoers file reflects the entire configured group list, always.
	logger.Info("Regenerating the '%s' file.", cfg.GitLab.SudoersFile)
	lines := make([]string, 0, len(cfg.Groups))
	for _, group := range cfg.Groups {
		lines = append(lines, group.SudoersLine)
	}
	return deps.Sudoers.Generate(lines)
}
