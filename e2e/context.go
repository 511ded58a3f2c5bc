package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext carries one scenario's HTTP client state.
type TestContext struct {
	BaseURL string
	// RunID is unique per scenario and replaces "{run}" in step arguments so
	// scenarios never share contact attributes on a long-lived server.
	RunID string

	client       *http.Client
	lastStatus   int
	lastBody     []byte
	lastResponse map[string]any
	aliases      map[string]any
}

// NewTestContext builds a context for one scenario.
func NewTestContext(baseURL, runID string) *TestContext {
	return &TestContext{
		BaseURL: strings.TrimRight(baseURL, "/"),
		RunID:   runID,
		client:  &http.Client{Timeout: 10 * time.Second},
		aliases: make(map[string]any),
	}
}

// Expand substitutes the scenario's run id into s.
func (tc *TestContext) Expand(s string) string {
	return strings.ReplaceAll(s, "{run}", tc.RunID)
}

// POST sends body as JSON. A string body is sent verbatim after expansion.
func (tc *TestContext) POST(path string, body any) error {
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(tc.Expand(b))
	default:
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, tc.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return tc.do(req)
}

// GET issues a GET request with optional headers.
func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastBody = body
	tc.lastResponse = nil
	if len(body) > 0 {
		var parsed map[string]any
		if err := json.Unmarshal(body, &parsed); err == nil {
			tc.lastResponse = parsed
		}
	}
	return nil
}

// GetLastStatusCode returns the status of the last response.
func (tc *TestContext) GetLastStatusCode() int {
	return tc.lastStatus
}

// GetLastResponseBody returns the raw body of the last response.
func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField resolves a dotted path ("contact.emails") in the last
// JSON response.
func (tc *TestContext) GetResponseField(path string) (any, error) {
	if tc.lastResponse == nil {
		return nil, fmt.Errorf("last response was not a JSON object: %s", tc.lastBody)
	}
	var cur any = tc.lastResponse
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", path, part)
		}
		if cur, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %q not found in %s", path, tc.lastBody)
		}
	}
	return cur, nil
}

// Remember stores a value under alias for later steps.
func (tc *TestContext) Remember(alias string, v any) {
	tc.aliases[alias] = v
}

// Recall returns a value stored by Remember.
func (tc *TestContext) Recall(alias string) (any, bool) {
	v, ok := tc.aliases[alias]
	return v, ok
}
