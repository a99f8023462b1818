// Package keyfile rewrites a user's authorized_keys material to exactly
// match the keys their provider account currently holds.
//
// The file is always a full overwrite, never an append: a key revoked at the
// source must be gone from the host on the very next run. The write is
// atomic so a concurrent login never observes a truncated file.
package keyfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/automata-ops/glautomata/internal/fsutil"
	"github.com/automata-ops/glautomata/internal/logger"
	"github.com/automata-ops/glautomata/internal/sysacct"
)

// Materializer writes authorized_keys files for managed accounts.
type Materializer struct {
	// Lookup resolves a username to its passwd entry (home dir, uid).
	Lookup func(name string) (sysacct.PasswdEntry, error)
	// NoChown skips ownership changes; for tests running unprivileged.
	NoChown bool
}

// Materialize writes the complete key file for username: the .ssh directory
// is created owner-only if absent, and the authorized_keys file ends up
// owned by the user with the supplied gid, mode 0600, one key per line.
func (m *Materializer) Materialize(username string, keys []string, gid int) error {
	entry, err := m.Lookup(username)
	if err != nil {
		return fmt.Errorf("materializing keys for %s: %w", username, err)
	}

	sshDir := filepath.Join(entry.Home, ".ssh")
	if err := fsutil.EnsureDir(sshDir, 0700); err != nil {
		return err
	}
	if !m.NoChown {
		if err := os.Chown(sshDir, entry.UID, gid); err != nil {
			return err
		}
	}

	var content strings.Builder
	for _, key := range keys {
		content.WriteString(key)
		content.WriteByte('\n')
	}

	target := filepath.Join(sshDir, "authorized_keys")
	if m.NoChown {
		err = fsutil.WriteFileAtomic(target, []byte(content.String()), 0600)
	} else {
		err = fsutil.WriteFileAtomicOwned(target, []byte(content.String()), 0600, entry.UID, gid)
	}
	if err != nil {
		return err
	}
	logger.Debug("Wrote %d keys for %s.", len(keys), username)
	return nil
}
