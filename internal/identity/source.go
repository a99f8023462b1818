package identity

import (
	"fmt"
	"strings"

	"github.com/automata-ops/glautomata/internal/config"
	"github.com/automata-ops/glautomata/internal/logger"
	"github.com/automata-ops/glautomata/internal/platform"
)

const githubPrefix = "Github:"

// InstanceResolver yields the host's cloud instance identifier, or an empty
// string when there is none. It never fails.
type InstanceResolver interface {
	Resolve() string
}

// Source resolves a group's desired membership, either by live GitLab group
// query or by static per-instance manifest lookup.
type Source struct {
	GitLab platform.Provider
	GitHub platform.Provider
	Files  platform.FileFetcher
	Host   InstanceResolver

	ManifestProject string
	ManifestFile    string
}

// Resolve returns the identities that should hold accounts for the group.
func (s *Source) Resolve(group config.GroupConfig) ([]platform.User, error) {
	if group.MembersFromGroup {
		return s.GitLab.ListGroupMembers(group.Name, true)
	}
	return s.resolveFromManifest(group)
}

// resolveFromManifest fetches the instance manifest and resolves the handles
// listed under this host's instance id. A host without an instance id
// degrades to empty membership for the group; a manifest that does not parse
// is fatal.
func (s *Source) resolveFromManifest(group config.GroupConfig) ([]platform.User, error) {
	raw, err := s.Files.FetchFile(s.ManifestProject, s.ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("fetching instance manifest: %w", err)
	}
	manifest, err := parseManifest(raw)
	if err != nil {
		return nil, err
	}

	instanceID := s.Host.Resolve()
	if instanceID == "" {
		logger.Warn("No instance id could be resolved; group %s gets no manifest members this run.", group.LinuxGroup)
		return nil, nil
	}
	handles := manifest[instanceID]
	if len(handles) == 0 {
		logger.Debug("Instance %s has no manifest entry.", instanceID)
		return nil, nil
	}

	var users []platform.User
	for _, handle := range handles {
		var (
			user platform.User
			err  error
		)
		if strings.HasPrefix(handle, githubPrefix) {
			user, err = s.GitHub.LookupUsername(strings.TrimPrefix(handle, githubPrefix))
		} else {
			user, err = s.GitLab.LookupUsername(handle)
		}
		if err != nil {
			return nil, fmt.Errorf("resolving manifest handle %q: %w", handle, err)
		}
		users = append(users, user)
	}
	return users, nil
}
