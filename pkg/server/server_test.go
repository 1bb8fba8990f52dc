package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lkarlslund/tokensync/pkg/config"
	"github.com/lkarlslund/tokensync/pkg/retention"
	"github.com/lkarlslund/tokensync/pkg/usagedb"
	"github.com/lkarlslund/tokensync/pkg/version"
)

const testAdminKey = "admin-secret"

var testKey = strings.Repeat("ab", 32)

func newTestServer(t *testing.T, mutate func(*config.ServerConfig)) (*Server, *usagedb.Store) {
	t.Helper()
	store, err := usagedb.Open(filepath.Join(t.TempDir(), "usage.db"), usagedb.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.NewDefaultServerConfig()
	cfg.AdminKey = testAdminKey
	if mutate != nil {
		mutate(cfg)
	}
	cfg.Normalize()
	sweeper, err := retention.New(store, retention.Settings{Days: cfg.Retention.Days})
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	s, err := NewServer(*cfg, store, sweeper)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s, store
}

func syncBody(key, host, ts string, total int64, hourly int) string {
	buckets := make([]string, hourly)
	for i := range buckets {
		buckets[i] = "0"
	}
	if hourly > 0 {
		buckets[0] = fmt.Sprint(total)
	}
	return fmt.Sprintf(`{
		"userKey": %q,
		"hostname": %q,
		"timestamp": %q,
		"usage": {"totalTokens": %d, "inputTokens": 1, "outputTokens": 2, "cacheCreationTokens": 0, "cacheReadTokens": 0},
		"sessions": {"total": 3, "active": 1, "averageDuration": 12.5},
		"costs": {"opus": 1.5, "sonnet": 0.5, "haiku": 0.1},
		"hourlyUsage": [%s],
		"version": "1.0.0"
	}`, key, host, ts, total, strings.Join(buckets, ","))
}

func do(t *testing.T, h http.Handler, method, target, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func withBearer(key string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+key) }
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func TestRootAndHealthz(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := do(t, s.Handler(), http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	decode(t, w, &resp)
	if resp.Status != "healthy" || resp.Data["version"] == nil {
		t.Fatalf("unexpected root response %s", w.Body.String())
	}

	w = do(t, s.Handler(), http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected healthz %d %q", w.Code, w.Body.String())
	}
}

func TestVersionReportsSchema(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := do(t, s.Handler(), http.MethodGet, "/api/version", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var info version.Info
	decode(t, w, &info)
	if info.Component != version.Component || info.Version == "" || info.Schema != usagedb.LatestSchemaVersion() {
		t.Fatalf("unexpected version response %s", w.Body.String())
	}
}

func TestSyncThenStats(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/api/sync", syncBody(testKey, "laptop", "2026-02-25T10:00:00Z", 100, 24), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var syncResp struct {
		Status string `json:"status"`
		Data   struct {
			Hostname string `json:"hostname"`
			Tokens   int64  `json:"tokens"`
		} `json:"data"`
	}
	decode(t, w, &syncResp)
	if syncResp.Status != "success" || syncResp.Data.Hostname != "laptop" || syncResp.Data.Tokens != 100 {
		t.Fatalf("unexpected sync response %s", w.Body.String())
	}

	do(t, h, http.MethodPost, "/api/sync", syncBody(testKey, "desktop", "2026-02-25T11:00:00Z", 50, 24), nil)

	w = do(t, h, http.MethodGet, "/api/stats/"+strings.ToUpper(testKey), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var sum usagedb.AccountSummary
	decode(t, w, &sum)
	if len(sum.Devices) != 2 || sum.Devices[0].Hostname != "laptop" || sum.TotalTokens != 150 {
		t.Fatalf("unexpected summary %s", w.Body.String())
	}
	if sum.TotalCost != 3 {
		t.Fatalf("expected opus fallback cost 3, got %v", sum.TotalCost)
	}

	w = do(t, h, http.MethodGet, "/api/devices/"+testKey, "", nil)
	var devResp struct {
		Data struct {
			Devices []struct {
				Hostname string    `json:"hostname"`
				LastSeen time.Time `json:"last_seen"`
			} `json:"devices"`
		} `json:"data"`
	}
	decode(t, w, &devResp)
	if len(devResp.Data.Devices) != 2 || devResp.Data.Devices[0].Hostname != "desktop" {
		t.Fatalf("unexpected devices %s", w.Body.String())
	}
}

func TestSyncRejections(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.ServerConfig) { c.MaxBodyBytes = 2048 })
	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"userKey":`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"short hourly usage", syncBody(testKey, "a", "2026-02-25T10:00:00Z", 1, 23), http.StatusUnprocessableEntity},
		{"negative tokens", syncBody(testKey, "a", "2026-02-25T10:00:00Z", -1, 24), http.StatusUnprocessableEntity},
		{"bad key", syncBody("xyz", "a", "2026-02-25T10:00:00Z", 1, 24), http.StatusUnprocessableEntity},
		{"bad timestamp", syncBody(testKey, "a", "yesterday", 1, 24), http.StatusUnprocessableEntity},
		{"wrong type", strings.Replace(syncBody(testKey, "a", "2026-02-25T10:00:00Z", 1, 24), `"totalTokens": 1`, `"totalTokens": "many"`, 1), http.StatusUnprocessableEntity},
		{"too large", `{"hostname":"` + strings.Repeat("x", 4096) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, s.Handler(), http.MethodPost, "/api/sync", tc.body, nil)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d body=%s", tc.status, w.Code, w.Body.String())
			}
			var resp errorResponse
			decode(t, w, &resp)
			if resp.Status != "error" || resp.Message == "" {
				t.Fatalf("unexpected error body %s", w.Body.String())
			}
		})
	}
}

func TestStatsErrors(t *testing.T) {
	s, _ := newTestServer(t, nil)
	if w := do(t, s.Handler(), http.MethodGet, "/api/stats/not-a-key", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := do(t, s.Handler(), http.MethodGet, "/api/stats/"+testKey, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	w := do(t, s.Handler(), http.MethodGet, "/api/devices/"+testKey, "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"devices":[]`) {
		t.Fatalf("expected empty device list, got %d %s", w.Code, w.Body.String())
	}
}

func TestDeleteDevice(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	if w := do(t, h, http.MethodDelete, "/api/device/"+testKey+"/laptop", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	do(t, h, http.MethodPost, "/api/sync", syncBody(testKey, "my laptop", "2026-02-25T10:00:00Z", 1, 24), nil)
	w := do(t, h, http.MethodDelete, "/api/device/"+testKey+"/my%20laptop", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodGet, "/api/stats/"+testKey, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after removing the only device, got %d", w.Code)
	}
}

func TestDeleteDeviceEscapedHostnames(t *testing.T) {
	s, store := newTestServer(t, nil)
	h := s.Handler()
	hosts := []string{"50%", "%41", "my host", "rack/7", "A"}
	for _, host := range hosts {
		if w := do(t, h, http.MethodPost, "/api/sync", syncBody(testKey, host, "2026-02-25T10:00:00Z", 1, 24), nil); w.Code != http.StatusOK {
			t.Fatalf("sync %q: %d %s", host, w.Code, w.Body.String())
		}
	}
	for i, host := range hosts {
		w := do(t, h, http.MethodDelete, "/api/device/"+testKey+"/"+url.PathEscape(host), "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("delete %q: %d %s", host, w.Code, w.Body.String())
		}
		devices, err := store.Devices(context.Background(), testKey)
		if err != nil {
			t.Fatalf("devices: %v", err)
		}
		if len(devices) != len(hosts)-i-1 {
			t.Fatalf("delete %q left %d devices, expected %d", host, len(devices), len(hosts)-i-1)
		}
		for _, d := range devices {
			if d.Hostname == host {
				t.Fatalf("delete %q removed another device", host)
			}
		}
	}
}

func TestAdminRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	for _, target := range []string{"/api/admin/stats", "/api/admin/users", "/api/admin/user/" + testKey, "/api/admin/export"} {
		if w := do(t, s.Handler(), http.MethodGet, target, "", nil); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, w.Code)
		}
		if w := do(t, s.Handler(), http.MethodGet, target, "", withBearer("wrong")); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 with wrong key, got %d", target, w.Code)
		}
	}
	if w := do(t, s.Handler(), http.MethodGet, "/api/admin/stats", "", withBearer(testAdminKey)); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin bearer, got %d", w.Code)
	}
}

func TestAdminLoopbackNoAuth(t *testing.T) {
	loopback := func(r *http.Request) { r.RemoteAddr = "127.0.0.1:5555" }
	s, _ := newTestServer(t, nil)
	if w := do(t, s.Handler(), http.MethodGet, "/api/admin/stats", "", loopback); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected loopback to need auth by default, got %d", w.Code)
	}
	s, _ = newTestServer(t, func(c *config.ServerConfig) { c.AllowLocalhostNoAuth = true })
	if w := do(t, s.Handler(), http.MethodGet, "/api/admin/stats", "", loopback); w.Code != http.StatusOK {
		t.Fatalf("expected loopback access, got %d", w.Code)
	}
	if w := do(t, s.Handler(), http.MethodGet, "/api/admin/stats", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected remote peer to need auth, got %d", w.Code)
	}
}

func TestAdminWithoutKeyRejectsEveryone(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.ServerConfig) { c.AdminKey = "" })
	if w := do(t, s.Handler(), http.MethodGet, "/api/admin/stats", "", withBearer("")); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := do(t, s.Handler(), http.MethodPost, "/api/admin/login", `{"key":""}`, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for empty key login, got %d", w.Code)
	}
}

func TestAdminLoginSessionLifecycle(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	if w := do(t, h, http.MethodPost, "/api/admin/login", `{"key":"nope"}`, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/admin/login", `not json`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w := do(t, h, http.MethodPost, "/api/admin/login", `{"key":"`+testAdminKey+`"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", w.Code)
	}
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == adminSessionCookie {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode || cookie.MaxAge != 86400 {
		t.Fatalf("unexpected session cookie %+v", cookie)
	}
	withCookie := func(r *http.Request) { r.AddCookie(cookie) }

	if w := do(t, h, http.MethodGet, "/api/admin/stats", "", withCookie); w.Code != http.StatusOK {
		t.Fatalf("expected session access, got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/admin/logout", "", withCookie); w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/admin/stats", "", withCookie); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked session to be rejected, got %d", w.Code)
	}
}

func TestAdminSessionExpires(t *testing.T) {
	s, _ := newTestServer(t, nil)
	now := time.Date(2026, 2, 25, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	token, err := s.sessions.Create(now)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	withCookie := func(r *http.Request) { r.AddCookie(&http.Cookie{Name: adminSessionCookie, Value: token}) }
	if w := do(t, s.Handler(), http.MethodGet, "/api/admin/stats", "", withCookie); w.Code != http.StatusOK {
		t.Fatalf("expected fresh session to work, got %d", w.Code)
	}
	now = now.Add(25 * time.Hour)
	if w := do(t, s.Handler(), http.MethodGet, "/api/admin/stats", "", withCookie); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected expired session to be rejected, got %d", w.Code)
	}
	if n := s.sessions.Sweep(now); n != 1 {
		t.Fatalf("expected sweep to drop the expired session, got %d", n)
	}
}

func TestAdminStatsUsersAndDetail(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	now := time.Now().UTC()
	other := strings.Repeat("cd", 32)
	do(t, h, http.MethodPost, "/api/sync", syncBody(testKey, "a", now.Add(-time.Hour).Format(time.RFC3339), 100, 24), nil)
	do(t, h, http.MethodPost, "/api/sync", syncBody(testKey, "b", now.Add(-72*time.Hour).Format(time.RFC3339), 50, 24), nil)
	do(t, h, http.MethodPost, "/api/sync", syncBody(other, "a", now.Add(-time.Hour).Format(time.RFC3339), 25, 24), nil)

	w := do(t, h, http.MethodGet, "/api/admin/stats", "", withBearer(testAdminKey))
	var stats struct {
		TotalUsers    int64 `json:"totalUsers"`
		TotalDevices  int64 `json:"totalDevices"`
		ActiveDevices int64 `json:"activeDevices"`
		TotalTokens   int64 `json:"totalTokens"`
		Retention     struct {
			Days     int    `json:"days"`
			Schedule string `json:"schedule"`
		} `json:"retention"`
	}
	decode(t, w, &stats)
	if stats.TotalUsers != 2 || stats.TotalDevices != 3 || stats.ActiveDevices != 2 || stats.TotalTokens != 175 {
		t.Fatalf("unexpected admin stats %s", w.Body.String())
	}
	if stats.Retention.Days != 90 || stats.Retention.Schedule != "0 3 * * *" {
		t.Fatalf("unexpected retention status %s", w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/api/admin/users?limit=1&search="+testKey[:6], "", withBearer(testAdminKey))
	var users struct {
		Users []usagedb.AccountListItem `json:"users"`
		Limit int                       `json:"limit"`
	}
	decode(t, w, &users)
	if len(users.Users) != 1 || users.Users[0].AccountKey != testKey || users.Users[0].DeviceCount != 2 || users.Limit != 1 {
		t.Fatalf("unexpected users %s", w.Body.String())
	}
	if w := do(t, h, http.MethodGet, "/api/admin/users?limit=abc", "", withBearer(testAdminKey)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/api/admin/user/"+testKey, "", withBearer(testAdminKey))
	var detail usagedb.AccountDetail
	decode(t, w, &detail)
	if detail.AccountKey != testKey || len(detail.HourlyData) != 2 || detail.Stats.TotalTokens != 150 {
		t.Fatalf("unexpected detail %s", w.Body.String())
	}

	if w := do(t, h, http.MethodDelete, "/api/admin/user/"+testKey, "", withBearer(testAdminKey)); w.Code != http.StatusOK {
		t.Fatalf("delete user: expected 200, got %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/admin/user/"+testKey, "", withBearer(testAdminKey)); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestAdminExportImportsIntoEmptyStore(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/sync", syncBody(testKey, "a", "2026-02-25T10:00:00Z", 100, 24), nil)
	do(t, h, http.MethodPost, "/api/sync", syncBody(testKey, "b", "2026-02-25T11:00:00Z", 50, 24), nil)

	w := do(t, h, http.MethodGet, "/api/admin/export", "", withBearer(testAdminKey))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/zstd" {
		t.Fatalf("unexpected export response %d %v", w.Code, w.Header())
	}

	dst, err := usagedb.Open(filepath.Join(t.TempDir(), "restore.db"), usagedb.Options{})
	if err != nil {
		t.Fatalf("open restore store: %v", err)
	}
	defer dst.Close()
	n, err := dst.Import(context.Background(), bytes.NewReader(w.Body.Bytes()))
	if err != nil || n != 2 {
		t.Fatalf("import: n=%d err=%v", n, err)
	}
	sum, err := dst.AccountSummary(context.Background(), testKey)
	if err != nil || sum.TotalTokens != 150 {
		t.Fatalf("unexpected restored summary %+v err=%v", sum, err)
	}
}

func TestLiveFeedReceivesSyncEvents(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/admin/ws"
	if _, _, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("expected unauthenticated websocket dial to fail")
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+testAdminKey)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for s.hub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post(ts.URL+"/api/sync", "application/json",
		strings.NewReader(syncBody(testKey, "laptop", "2026-02-25T10:00:00Z", 42, 24)))
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	_ = resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev SyncEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != "sync" || ev.Hostname != "laptop" || ev.TotalTokens != 42 || ev.ID == "" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.AccountPrefix != testKey[:8] {
		t.Fatalf("expected only the key prefix in events, got %q", ev.AccountPrefix)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	healthURL := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(healthURL)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestCheckSameOrigin(t *testing.T) {
	cases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://example.com", true},
		{"https://evil.test", false},
		{"::bad", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "http://example.com/api/admin/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := checkSameOrigin(r); got != tc.want {
			t.Fatalf("origin %q: expected %v, got %v", tc.origin, tc.want, got)
		}
	}
}

func TestBearerToken(t *testing.T) {
	h := http.Header{}
	if bearerToken(h) != "" {
		t.Fatal("expected empty token")
	}
	h.Set("Authorization", "bearer  abc ")
	if got := bearerToken(h); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	h.Set("Authorization", "Basic abc")
	if bearerToken(h) != "" {
		t.Fatal("expected non-bearer scheme to be ignored")
	}
}
