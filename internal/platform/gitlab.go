package platform

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/automata-ops/glautomata/internal/logger"
)

// GitLabClient talks to the GitLab REST API (v4 paths, token auth).
type GitLabClient struct {
	apiAddress string
	token      string
	httpc      *http.Client
}

func NewGitLabClient(apiAddress, token string) *GitLabClient {
	return &GitLabClient{
		apiAddress: apiAddress,
		token:      token,
		httpc:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *GitLabClient) ListGroupMembers(group string, activeOnly bool) ([]User, error) {
	var members []struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		State    string `json:"state"`
	}
	path := fmt.Sprintf("groups/%s/members", url.PathEscape(group))
	if err := c.get(path, nil, &members); err != nil {
		return nil, err
	}
	var users []User
	for _, m := range members {
		if activeOnly && m.State != "active" {
			continue
		}
		users = append(users, User{Source: SourceGitLab, ID: m.ID, Username: m.Username})
	}
	return users, nil
}

func (c *GitLabClient) LookupUsername(handle string) (User, error) {
	lookup, authorized := splitHandle(handle)
	var found []struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	if err := c.get("users/", url.Values{"username": {lookup}}, &found); err != nil {
		return User{}, err
	}
	if len(found) == 0 {
		return User{}, &APIError{Source: SourceGitLab, Message: fmt.Sprintf("no user named %q", lookup)}
	}
	return User{Source: SourceGitLab, ID: found[0].ID, Username: authorized}, nil
}

func (c *GitLabClient) ListKeys(user User) ([]string, error) {
	var entries []struct {
		Key string `json:"key"`
	}
	if err := c.get(fmt.Sprintf("users/%d/keys", user.ID), nil, &entries); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys, nil
}

// FetchFile returns the decoded content of a repository file at the master ref.
func (c *GitLabClient) FetchFile(projectID, filePath string) ([]byte, error) {
	var file struct {
		Content string `json:"content"`
	}
	path := fmt.Sprintf("projects/%s/repository/files/%s",
		url.PathEscape(projectID), url.PathEscape(filePath))
	if err := c.get(path, url.Values{"ref": {"master"}}, &file); err != nil {
		return nil, err
	}
	content, err := base64.StdEncoding.DecodeString(file.Content)
	if err != nil {
		return nil, &APIError{Source: SourceGitLab, Message: fmt.Sprintf("bad file encoding for %s: %v", filePath, err)}
	}
	return content, nil
}

// get performs a GET against the API and decodes the response into out,
// mapping transport failures to *ConnectionError and structured error bodies
// to *APIError.
func (c *GitLabClient) get(path string, params url.Values, out interface{}) error {
	u := fmt.Sprintf("%s/%s", c.apiAddress, path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)

	logger.Debug("gitlab: GET %s", path)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return &ConnectionError{Source: SourceGitLab, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectionError{Source: SourceGitLab, Err: err}
	}
	if msg := apiErrorMessage(body); msg != "" {
		return &APIError{Source: SourceGitLab, Message: msg}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Source: SourceGitLab, Message: fmt.Sprintf("unexpected status %d for %s", resp.StatusCode, path)}
	}
	return json.Unmarshal(body, out)
}

// apiErrorMessage extracts the error text from a structured error body, if
// the body is one. Both providers use the same shapes: {"message": ...} or
// {"error": ..., "error_description": ...}.
func apiErrorMessage(body []byte) string {
	var probe struct {
		Message          json.RawMessage `json:"message"`
		Error            string          `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return "" // not an object, so not an error body
	}
	if probe.Error != "" {
		if probe.ErrorDescription != "" {
			return probe.ErrorDescription
		}
		return probe.Error
	}
	if len(probe.Message) > 0 {
		var s string
		if err := json.Unmarshal(probe.Message, &s); err == nil {
			return s
		}
		return string(probe.Message)
	}
	return ""
}
