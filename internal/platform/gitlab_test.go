package platform

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gitlabServer(t *testing.T, handler http.HandlerFunc) *GitLabClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGitLabClient(srv.URL, "test-token")
}

func TestGitLabListGroupMembersFiltersInactive(t *testing.T) {
	c := gitlabServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/groups/devs/members", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("PRIVATE-TOKEN"))
		fmt.Fprint(w, `[
			{"id": 1, "username": "alice", "state": "active"},
			{"id": 2, "username": "blocked", "state": "blocked"},
			{"id": 3, "username": "bob", "state": "active"}
		]`)
	})

	users, err := c.ListGroupMembers("devs", true)
	require.NoError(t, err)
	assert.Equal(t, []User{
		{Source: SourceGitLab, ID: 1, Username: "alice"},
		{Source: SourceGitLab, ID: 3, Username: "bob"},
	}, users)
}

func TestGitLabListGroupMembersKeepsInactiveWhenAsked(t *testing.T) {
	c := gitlabServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 2, "username": "blocked", "state": "blocked"}]`)
	})

	users, err := c.ListGroupMembers("devs", false)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "blocked", users[0].Username)
}

func TestGitLabLookupUsernameKeepsRequestedHandle(t *testing.T) {
	c := gitlabServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "alice", r.URL.Query().Get("username"))
		fmt.Fprint(w, `[{"id": 7, "username": "alice.renamed"}]`)
	})

	user, err := c.LookupUsername("alice")
	require.NoError(t, err)
	// The id comes from the server; the name stays what was asked for.
	assert.Equal(t, User{Source: SourceGitLab, ID: 7, Username: "alice"}, user)
}

func TestGitLabLookupUsernameSplitPair(t *testing.T) {
	c := gitlabServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "svc-deploy", r.URL.Query().Get("username"))
		fmt.Fprint(w, `[{"id": 8, "username": "svc-deploy"}]`)
	})

	user, err := c.LookupUsername("svc-deploy:deploy")
	require.NoError(t, err)
	assert.Equal(t, int64(8), user.ID)
	assert.Equal(t, "deploy", user.Username)
}

func TestGitLabLookupUnknownUserIsAPIError(t *testing.T) {
	c := gitlabServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})

	_, err := c.LookupUsername("nobody")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "nobody")
}

func TestGitLabListKeys(t *testing.T) {
	c := gitlabServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/7/keys", r.URL.Path)
		fmt.Fprint(w, `[{"id": 1, "key": "ssh-ed25519 AAA one"}, {"id": 2, "key": "ssh-rsa BBB two"}]`)
	})

	keys, err := c.ListKeys(User{Source: SourceGitLab, ID: 7, Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ssh-ed25519 AAA one", "ssh-rsa BBB two"}, keys)
}

func TestGitLabFetchFileDecodesContent(t *testing.T) {
	manifest := "i-123:\n  - alice\n"
	c := gitlabServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/42/repository/files/instances.yaml", r.URL.Path)
		assert.Equal(t, "master", r.URL.Query().Get("ref"))
		fmt.Fprintf(w, `{"file_name": "instances.yaml", "content": %q}`,
			base64.StdEncoding.EncodeToString([]byte(manifest)))
	})

	content, err := c.FetchFile("42", "instances.yaml")
	require.NoError(t, err)
	assert.Equal(t, manifest, string(content))
}

func TestGitLabAPIErrorMessageSurfaces(t *testing.T) {
	c := gitlabServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "401 Unauthorized"}`)
	})

	_, err := c.ListGroupMembers("devs", true)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "401 Unauthorized", apiErr.Message)
}

func TestGitLabConnectionErrorType(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // nothing listening anymore

	c := NewGitLabClient(url, "tok")
	_, err := c.ListGroupMembers("devs", true)
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
}
