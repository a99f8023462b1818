package platform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/automata-ops/glautomata/internal/logger"
)

// GitHubClient talks to the GitHub REST API. Authentication is either a
// static token or, when an AppAuth is supplied, a short-lived installation
// token minted on first use.
type GitHubClient struct {
	apiAddress string
	token      string
	app        *AppAuth
	httpc      *http.Client

	mu        sync.Mutex
	instToken string
}

func NewGitHubClient(apiAddress, token string, app *AppAuth) *GitHubClient {
	return &GitHubClient{
		apiAddress: apiAddress,
		token:      token,
		app:        app,
		httpc:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *GitHubClient) ListGroupMembers(group string, activeOnly bool) ([]User, error) {
	var members []struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
	}
	if err := c.get(fmt.Sprintf("teams/%s/members", url.PathEscape(group)), &members); err != nil {
		return nil, err
	}
	users := make([]User, 0, len(members))
	for _, m := range members {
		users = append(users, User{Source: SourceGitHub, ID: m.ID, Username: m.Login})
	}
	return users, nil
}

func (c *GitHubClient) LookupUsername(handle string) (User, error) {
	lookup, authorized := splitHandle(handle)
	var found struct {
		ID int64 `json:"id"`
	}
	if err := c.get(fmt.Sprintf("users/%s", url.PathEscape(lookup)), &found); err != nil {
		return User{}, err
	}
	return User{Source: SourceGitHub, ID: found.ID, Username: authorized}, nil
}

// ListKeys lists the public keys of an account. GitHub serves keys by login,
// not numeric id, so the lookup handle is used for the query while the
// authorized username on the User stays untouched.
func (c *GitHubClient) ListKeys(user User) ([]string, error) {
	lookup, _ := splitHandle(user.Username)
	var entries []struct {
		Key string `json:"key"`
	}
	if err := c.get(fmt.Sprintf("users/%s/keys", url.PathEscape(lookup)), &entries); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys, nil
}

func (c *GitHubClient) get(path string, out interface{}) error {
	tok, err := c.bearerToken()
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/%s", c.apiAddress, path), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	logger.Debug("github: GET %s", path)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return &ConnectionError{Source: SourceGitHub, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectionError{Source: SourceGitHub, Err: err}
	}
	if msg := apiErrorMessage(body); msg != "" {
		return &APIError{Source: SourceGitHub, Message: msg}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Source: SourceGitHub, Message: fmt.Sprintf("unexpected status %d for %s", resp.StatusCode, path)}
	}
	return json.Unmarshal(body, out)
}

// bearerToken returns the static token, or the cached installation token when
// App authentication is configured, exchanging a fresh app JWT on first use.
func (c *GitHubClient) bearerToken() (string, error) {
	if c.app == nil {
		return c.token, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.instToken != "" {
		return c.instToken, nil
	}

	appJWT, err := c.app.SignedJWT()
	if err != nil {
		return "", err
	}
	u := fmt.Sprintf("%s/app/installations/%d/access_tokens", c.apiAddress, c.app.InstallationID)
	req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(nil))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Authorization", "Bearer "+appJWT)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", &ConnectionError{Source: SourceGitHub, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ConnectionError{Source: SourceGitHub, Err: err}
	}
	if resp.StatusCode != http.StatusCreated {
		msg := apiErrorMessage(body)
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d minting installation token", resp.StatusCode)
		}
		return "", &APIError{Source: SourceGitHub, Message: msg}
	}
	var minted struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &minted); err != nil {
		return "", &APIError{Source: SourceGitHub, Message: "malformed installation token response"}
	}
	c.instToken = minted.Token
	return c.instToken, nil
}
