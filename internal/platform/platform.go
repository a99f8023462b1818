// Package platform holds the clients for the remote membership providers.
//
// Both providers expose the same capability surface: list the members of a
// remote group, resolve a handle to the platform's canonical account, and
// list the SSH public keys of an account. GitLab additionally serves raw
// repository files, used for the static instance manifest.
package platform

import (
	"fmt"
	"strings"
)

// Source identifies which provider an account came from.
type Source string

const (
	SourceGitLab Source = "gitlab"
	SourceGitHub Source = "github"
)

// User is a provider account reference. Username is the name the local
// system will authorize, which is the handle the caller asked about, not
// whatever display name the provider reports.
type User struct {
	Source   Source
	ID       int64
	Username string
}

// Provider is the capability surface the reconciliation run needs from a
// membership provider. Every call is a single attempt; failures are either a
// *ConnectionError or an *APIError and are never retried here.
type Provider interface {
	ListGroupMembers(group string, activeOnly bool) ([]User, error)
	LookupUsername(handle string) (User, error)
	ListKeys(user User) ([]string, error)
}

// FileFetcher serves raw repository file content. Implemented by the GitLab
// client for the instance manifest.
type FileFetcher interface {
	FetchFile(projectID, filePath string) ([]byte, error)
}

// ConnectionError means the provider could not be reached at all.
type ConnectionError struct {
	Source Source
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection failed: %v", e.Source, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// APIError is a structured error returned by the provider itself.
type APIError struct {
	Source  Source
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: api error: %s", e.Source, e.Message)
}

// splitHandle splits a "lookup:authorized" handle pair. The part before the
// colon is what the provider is queried for; the part after is the username
// the local account will carry. A plain handle serves as both.
func splitHandle(handle string) (lookup, authorized string) {
	if i := strings.Index(handle, ":"); i >= 0 {
		return handle[:i], handle[i+1:]
	}
	return handle, handle
}
