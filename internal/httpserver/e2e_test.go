package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type e2eClient struct {
	t      *testing.T
	base   string
	client *http.Client
}

func (c *e2eClient) do(method, path, body string, at time.Time, password string) (int, string, http.Header) {
	c.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TestNowHeader, strconv.FormatInt(at.UnixMilli(), 10))
	if password != "" {
		req.Header.Set(PasswordHeader, password)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(data), resp.Header
}

func startE2E(t *testing.T) *e2eClient {
	t.Helper()
	srv, _ := newTestServer(t, func(c *Config) { c.TestMode = true })
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &e2eClient{t: t, base: ts.URL, client: &http.Client{Timeout: 5 * time.Second}}
}

func TestEndToEndViewLimit(t *testing.T) {
	c := startE2E(t)
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	status, body, _ := c.do(http.MethodPost, "/api/pastes", `{"content":"hello","ttl_seconds":60,"max_views":2}`, start, "")
	if status != http.StatusCreated {
		t.Fatalf("create status %d: %s", status, body)
	}
	var created createResponse
	if err := json.Unmarshal([]byte(body), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(created.URL, c.base+"/p/") {
		t.Fatalf("url %q does not point at the server", created.URL)
	}

	status, body, hdr := c.do(http.MethodGet, "/p/"+created.ID, "", start.Add(30*time.Second), "")
	if status != http.StatusOK || body != "hello" || hdr.Get("X-Remaining-Views") != "1" {
		t.Fatalf("first view: %d %q remaining=%q", status, body, hdr.Get("X-Remaining-Views"))
	}
	status, body, _ = c.do(http.MethodGet, "/api/pastes/"+created.ID, "", start.Add(45*time.Second), "")
	if status != http.StatusOK || !strings.Contains(body, `"remaining_views":0`) {
		t.Fatalf("second view: %d %s", status, body)
	}
	status, _, _ = c.do(http.MethodGet, "/api/pastes/"+created.ID, "", start.Add(50*time.Second), "")
	if status != http.StatusNotFound {
		t.Fatalf("third view: expected 404 got %d", status)
	}
}

func TestEndToEndPasswordAndExpiry(t *testing.T) {
	c := startE2E(t)
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	_, body, _ := c.do(http.MethodPost, "/api/pastes", `{"content":"secret","password":"pw1","ttl_seconds":10}`, start, "")
	var created createResponse
	if err := json.Unmarshal([]byte(body), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	path := "/api/pastes/" + created.ID

	if status, _, _ := c.do(http.MethodGet, path, "", start, ""); status != http.StatusUnauthorized {
		t.Fatalf("no password: expected 401 got %d", status)
	}
	if status, _, _ := c.do(http.MethodGet, path, "", start, "wrong"); status != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401 got %d", status)
	}
	status, body, _ := c.do(http.MethodGet, path, "", start.Add(5*time.Second), "pw1")
	if status != http.StatusOK || !strings.Contains(body, `"content":"secret"`) {
		t.Fatalf("right password: %d %s", status, body)
	}
	if status, _, _ := c.do(http.MethodGet, path, "", start.Add(11*time.Second), "pw1"); status != http.StatusNotFound {
		t.Fatalf("after expiry: expected 404 got %d", status)
	}
}

func TestEndToEndConcurrentViews(t *testing.T) {
	c := startE2E(t)
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	_, body, _ := c.do(http.MethodPost, "/api/pastes", `{"content":"race","max_views":3}`, start, "")
	var created createResponse
	if err := json.Unmarshal([]byte(body), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		served int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, c.base+"/p/"+created.ID, nil)
			resp, err := c.client.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				mu.Lock()
				served++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if served != 3 {
		t.Fatalf("expected exactly 3 successful views, got %d", served)
	}
}
