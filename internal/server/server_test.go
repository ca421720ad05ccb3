package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"omtobe/internal/config"
	"omtobe/internal/db"
	"omtobe/internal/engine"
	"omtobe/internal/migrate"
)

const testSecret = "test-secret"

var start = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

type testServer struct {
	URL    string
	client *http.Client
	clock  *testClock
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) at(d time.Duration) time.Time {
	s.clock.mu.Lock()
	defer s.clock.mu.Unlock()
	s.clock.t = start.Add(d)
	return s.clock.t
}

func newTestServer(t *testing.T, mutate func(*Config)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := &testClock{t: start}
	e := engine.New(conn, config.Default())
	e.Now = clock.Now
	cfg := Config{
		Engine:   e,
		BasePath: "/api/v1",
		Auth:     AuthConfig{JWTSecret: testSecret},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	handler, err := New(cfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String() + "/api/v1",
		client: &http.Client{},
		clock:  clock,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(t *testing.T, userID string, roles ...string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, userID, roles, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func createUser(t *testing.T, srv *testServer, id, email string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/users", map[string]any{
		"id":       id,
		"email":    email,
		"timezone": "Asia/Tokyo",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user status %d: %s", res.StatusCode, string(data))
	}
}

func evaluateBody(now time.Time) map[string]any {
	samples := make([]map[string]any, 0, 20)
	for i := 0; i < 20; i++ {
		samples = append(samples, map[string]any{
			"timestamp": now.Add(-time.Duration(i) * time.Hour).Format(time.RFC3339),
			"value":     50,
		})
	}
	return map[string]any{
		"current_hrv": 35,
		"samples":     samples,
		"events": []map[string]any{{
			"event_id":   "evt-1",
			"title":      "Board Meeting",
			"start_time": now.Add(-10 * time.Minute).Format(time.RFC3339),
			"end_time":   now.Add(50 * time.Minute).Format(time.RFC3339),
		}},
	}
}

func TestHealthAndOpenAPIArePublic(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	var health HealthResponse
	if err := json.Unmarshal(data, &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if health.Status != "ok" || health.Version != Version || health.SchemaVersion != migrate.Latest() {
		t.Fatalf("unexpected health %+v", health)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "bearerAuth") || !strings.Contains(string(data), "/api/v1/users/{user_id}/state/check") {
		t.Fatalf("openapi missing security scheme or routes")
	}
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	createUser(t, srv, "u1", "u1@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/users/u1/state", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthorized" {
		t.Fatalf("expected 401 unauthorized, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/users/u1/state", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("expected invalid credentials, got %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/users/u1/state", nil, map[string]string{"X-User-Id": "u1"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("legacy header must be ignored unless enabled, got %d", res.StatusCode)
	}
}

func TestLegacyUserHeaderWhenEnabled(t *testing.T) {
	srv, cleanup := newTestServer(t, func(c *Config) { c.Auth.AllowLegacyUserHeader = true })
	defer cleanup()
	createUser(t, srv, "u1", "u1@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/me", nil, map[string]string{"X-User-Id": "u1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.UserID != "u1" || me.Source != "legacy_header" {
		t.Fatalf("unexpected principal %+v", me)
	}
}

func TestCreateUserValidation(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	createUser(t, srv, "u1", "u1@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/users", map[string]any{"email": "u1@example.com"}, nil)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "conflict" {
		t.Fatalf("expected conflict, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/users", map[string]any{"email": "x@example.com", "timezone": "Mars/Base"}, nil)
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "bad_request" {
		t.Fatalf("expected bad request for timezone, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/users/u1", nil, bearer(t, "u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get user status %d: %s", res.StatusCode, string(data))
	}
	var u UserResponse
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	if u.Timezone != "Asia/Tokyo" || u.HealthKitConnected || strings.Contains(string(data), "token") {
		t.Fatalf("unexpected user payload %s", string(data))
	}
}

func TestBrakeFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	createUser(t, srv, "u1", "u1@example.com")
	headers := bearer(t, "u1")
	client := srv.Client()

	now := srv.at(2*24*time.Hour + time.Hour)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/users/u1/state/evaluate", evaluateBody(now), headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("evaluate status %d: %s", res.StatusCode, string(data))
	}
	var check engine.BrakeCheck
	if err := json.Unmarshal(data, &check); err != nil {
		t.Fatalf("unmarshal check: %v", err)
	}
	if !check.ShouldDisplay || check.EventID != "Board Meeting" || check.CurrentDay != 3 {
		t.Fatalf("expected brake display, got %+v", check)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/users/u1/decisions", map[string]any{"decision_type": "Delay"}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("decision status %d: %s", res.StatusCode, string(data))
	}
	var dec engine.DecisionResult
	if err := json.Unmarshal(data, &dec); err != nil {
		t.Fatalf("unmarshal decision: %v", err)
	}
	if dec.NextAction != "cooling_period_activated" || dec.RetriggerTime == nil || dec.Record.Day != 3 {
		t.Fatalf("unexpected decision %+v", dec)
	}

	srv.at(2*24*time.Hour + time.Hour + 10*time.Minute)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/users/u1/state/evaluate", evaluateBody(now), headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("evaluate status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &check); err != nil {
		t.Fatalf("unmarshal check: %v", err)
	}
	if check.ShouldDisplay {
		t.Fatalf("expected cooling to suppress display")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/users/u1/decisions?limit=5", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var hist []map[string]any
	if err := json.Unmarshal(data, &hist); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(hist) != 1 || hist[0]["decision_type"] != "Delay" {
		t.Fatalf("unexpected history %v", hist)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/users/u1/decisions", map[string]any{"decision_type": "Maybe"}, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for unknown decision, got %d: %s", res.StatusCode, string(data))
	}
}

func TestCheckBrakeWithMockSources(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	createUser(t, srv, "u1", "u1@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/users/u1/state/check", nil, bearer(t, "u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("check status %d: %s", res.StatusCode, string(data))
	}
	var check engine.BrakeCheck
	if err := json.Unmarshal(data, &check); err != nil {
		t.Fatalf("unmarshal check: %v", err)
	}
	if check.ShouldDisplay || check.CurrentDay != 1 || check.Phase != "Total Silence" {
		t.Fatalf("day 1 must stay silent, got %+v", check)
	}
}

func TestReflectionLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	createUser(t, srv, "u1", "u1@example.com")
	headers := bearer(t, "u1")

	srv.at(3 * 24 * time.Hour)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/users/u1/reflections", map[string]any{"response": "Yes"}, headers)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "invalid_state" {
		t.Fatalf("expected invalid_state before day 7, got %d: %s", res.StatusCode, string(data))
	}

	srv.at(6*24*time.Hour + 16*time.Hour)
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/users/u1/reflections", map[string]any{"response": "No"}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("reflection status %d: %s", res.StatusCode, string(data))
	}
	var out engine.ReflectionResult
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal reflection: %v", err)
	}
	if out.State.CurrentDay != 1 || out.Response != "No" {
		t.Fatalf("expected a fresh cycle, got %+v", out)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/users/u1/reflections", nil, headers)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"response":"No"`) {
		t.Fatalf("reflection history %d: %s", res.StatusCode, string(data))
	}
}

func TestOwnershipAndSweep(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	createUser(t, srv, "u1", "u1@example.com")
	createUser(t, srv, "u2", "u2@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/users/u1/state", nil, bearer(t, "u2"))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("expected forbidden, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/cycles/sweep", nil, bearer(t, "u1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("sweep must be admin only, got %d: %s", res.StatusCode, string(data))
	}

	srv.at(8 * 24 * time.Hour)
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/cycles/sweep", nil, bearer(t, "ops", "admin"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sweep status %d: %s", res.StatusCode, string(data))
	}
	var sweep SweepResponse
	if err := json.Unmarshal(data, &sweep); err != nil {
		t.Fatalf("unmarshal sweep: %v", err)
	}
	if sweep.Reset != 2 {
		t.Fatalf("expected both cycles reset, got %d", sweep.Reset)
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	createUser(t, srv, "u1", "u1@example.com")
	headers := bearer(t, "u1")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/users/u1/api-keys", map[string]any{"name": "watch"}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var key engine.CreatedAPIKey
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if !strings.HasPrefix(key.Key, "omt_") {
		t.Fatalf("unexpected key %q", key.Key)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/users/u1/state", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key auth status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/users/u1/api-keys", map[string]any{"roles": []string{"admin"}}, headers)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("self-granted roles must be forbidden, got %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/users/u1/api-keys/"+key.ID, nil, headers)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete key status %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/users/u1/state", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key must fail, got %d", res.StatusCode)
	}
}

func TestDevLogin(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	createUser(t, srv, "u1", "u1@example.com")
	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/auth/dev/login", map[string]any{"user_id": "u1"}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("dev login must be disabled by default, got %d", res.StatusCode)
	}

	srv2, cleanup2 := newTestServer(t, func(c *Config) { c.Auth.DevLoginEnabled = true })
	defer cleanup2()
	createUser(t, srv2, "u1", "u1@example.com")
	res, data := doJSON(t, srv2.Client(), http.MethodPost, srv2.URL+"/auth/dev/login", map[string]any{"user_id": "u1"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	res, data = doJSON(t, srv2.Client(), http.MethodGet, srv2.URL+"/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"source":"jwt"`) {
		t.Fatalf("dev token rejected %d: %s", res.StatusCode, string(data))
	}
}
