// Package e2e drives a running circulation server through its HTTP API with
// godog scenarios.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TestContext carries one scenario's HTTP state: the bearer token in use, the
// last response and any identifiers saved by earlier steps.
type TestContext struct {
	baseURL string
	client  *http.Client

	run        string
	token      string
	lastStatus int
	lastBody   []byte
	saved      map[string]string
}

func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		saved:   make(map[string]string),
	}
}

// Reset clears scenario state. Each scenario gets a fresh run id so the
// emails it registers do not collide with earlier runs.
func (tc *TestContext) Reset() {
	tc.run = strconv.FormatInt(time.Now().UnixNano(), 36)
	tc.token = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	clear(tc.saved)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body)
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.baseURL+tc.Expand(path), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tc.token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.token)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

// ResponseField reads a top level field, or a dotted path into nested
// objects, from the last JSON response.
func (tc *TestContext) ResponseField(field string) (any, error) {
	var cur any
	if err := json.Unmarshal(tc.lastBody, &cur); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w (body %s)", err, tc.lastBody)
	}
	for _, part := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, part)
		}
		if cur, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %q missing from response %s", field, tc.lastBody)
		}
	}
	return cur, nil
}

func (tc *TestContext) LastStatus() int   { return tc.lastStatus }
func (tc *TestContext) LastBody() []byte  { return tc.lastBody }
func (tc *TestContext) Token() string     { return tc.token }
func (tc *TestContext) SetToken(t string) { tc.token = t }
func (tc *TestContext) Saved(name string) string {
	return tc.saved[name]
}

func (tc *TestContext) Save(name, value string) {
	tc.saved[name] = value
}

// Expand replaces {run} and {name} placeholders with the run id and saved
// values.
func (tc *TestContext) Expand(s string) string {
	s = strings.ReplaceAll(s, "{run}", tc.run)
	for name, value := range tc.saved {
		s = strings.ReplaceAll(s, "{"+name+"}", value)
	}
	return s
}
