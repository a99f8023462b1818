package identity

import (
	"fmt"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/automata-ops/glautomata/internal/logger"
	"github.com/automata-ops/glautomata/internal/platform"
)

// keyFetchWorkers bounds the parallel per-identity key fetches within one
// group. Fetches are independent; the result slice keeps identity order.
const keyFetchWorkers = 4

// AttachKeys fetches the public keys for every identity from its owning
// provider. One failed fetch fails the whole call rather than silently
// dropping the identity, since a dropped identity would read as "remove this
// account" to the reconciler.
func (s *Source) AttachKeys(users []platform.User) ([]KeyedIdentity, error) {
	keyed := make([]KeyedIdentity, len(users))

	var g errgroup.Group
	g.SetLimit(keyFetchWorkers)
	for i, user := range users {
		i, user := i, user
		g.Go(func() error {
			provider := s.GitLab
			if user.Source == platform.SourceGitHub {
				provider = s.GitHub
			}
			logger.Debug("Querying SSH key information for %s (%s).", user.Username, user.Source)
			keys, err := provider.ListKeys(user)
			if err != nil {
				return fmt.Errorf("fetching keys for %s: %w", user.Username, err)
			}
			keyed[i] = KeyedIdentity{User: user, Keys: validKeys(user.Username, keys)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return keyed, nil
}

// validKeys drops key material that does not parse as an OpenSSH authorized
// key, keeping the rest in source order. Writing a malformed line would not
// break sshd, but it would hide the revocation-correctness guarantee behind
// garbage the provider let through.
func validKeys(username string, keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(k)); err != nil {
			logger.Warn("Dropping unparseable public key for %s: %v", username, err)
			continue
		}
		out = append(out, k)
	}
	return out
}
