package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/automata-ops/glautomata/internal/platform"
)

func genKey(t *testing.T, comment string) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		line += " " + comment
	}
	return line
}

func TestAttachKeysPreservesPerIdentityOrder(t *testing.T) {
	k1 := genKey(t, "alice@laptop")
	k2 := genKey(t, "alice@desktop")
	k3 := genKey(t, "bob@laptop")

	gl := &fakeProvider{source: platform.SourceGitLab, keys: map[string][]string{"alice": {k1, k2}}}
	gh := &fakeProvider{source: platform.SourceGitHub, keys: map[string][]string{"bob": {k3}}}
	s := &Source{GitLab: gl, GitHub: gh}

	users := []platform.User{
		{Source: platform.SourceGitLab, ID: 1, Username: "alice"},
		{Source: platform.SourceGitHub, ID: 2, Username: "bob"},
	}
	keyed, err := s.AttachKeys(users)
	require.NoError(t, err)
	require.Len(t, keyed, 2)
	assert.Equal(t, "alice", keyed[0].Username)
	assert.Equal(t, []string{k1, k2}, keyed[0].Keys)
	assert.Equal(t, "bob", keyed[1].Username)
	assert.Equal(t, []string{k3}, keyed[1].Keys)
}

func TestAttachKeysDropsUnparseableKeys(t *testing.T) {
	good := genKey(t, "alice@laptop")
	gl := &fakeProvider{
		source: platform.SourceGitLab,
		keys:   map[string][]string{"alice": {"not a key at all", good}},
	}
	s := &Source{GitLab: gl}

	keyed, err := s.AttachKeys([]platform.User{{Source: platform.SourceGitLab, ID: 1, Username: "alice"}})
	require.NoError(t, err)
	assert.Equal(t, []string{good}, keyed[0].Keys)
}

func TestAttachKeysKeepsDuplicateKeysVerbatim(t *testing.T) {
	k := genKey(t, "shared@key")
	gl := &fakeProvider{source: platform.SourceGitLab, keys: map[string][]string{"alice": {k, k}}}
	s := &Source{GitLab: gl}

	keyed, err := s.AttachKeys([]platform.User{{Source: platform.SourceGitLab, ID: 1, Username: "alice"}})
	require.NoError(t, err)
	assert.Equal(t, []string{k, k}, keyed[0].Keys)
}

func TestAttachKeysSurfacesFetchFailure(t *testing.T) {
	gl := &fakeProvider{
		source:  platform.SourceGitLab,
		keysErr: &platform.ConnectionError{Source: platform.SourceGitLab, Err: errors.New("refused")},
	}
	s := &Source{GitLab: gl}

	_, err := s.AttachKeys([]platform.User{{Source: platform.SourceGitLab, ID: 1, Username: "alice"}})
	require.Error(t, err)
	var ce *platform.ConnectionError
	assert.ErrorAs(t, err, &ce)
}

func TestAttachKeysEmptyKeySetIsNotAnError(t *testing.T) {
	gl := &fakeProvider{source: platform.SourceGitLab, keys: map[string][]string{}}
	s := &Source{GitLab: gl}

	keyed, err := s.AttachKeys([]platform.User{{Source: platform.SourceGitLab, ID: 1, Username: "alice"}})
	require.NoError(t, err)
	assert.Empty(t, keyed[0].Keys)
}
