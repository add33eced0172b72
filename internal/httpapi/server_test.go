package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"loops-server/internal/model"
	"loops-server/internal/repository"
	"loops-server/internal/service"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Loop{}, &model.Subtask{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	loopRepo := repository.NewLoopRepository(db)
	auth := service.NewAuthService(repository.NewUserRepository(db), "test-secret", time.Hour)
	server := NewServer(auth, service.NewLoopService(loopRepo), service.NewSyncService(loopRepo))
	return server.Router()
}

type request struct {
	method  string
	path    string
	token   string
	body    interface{}
	rawBody string
	form    url.Values
}

func doRequest(t *testing.T, handler http.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	contentType := ""
	switch {
	case req.form != nil:
		body = bytes.NewReader([]byte(req.form.Encode()))
		contentType = "application/x-www-form-urlencoded"
	case req.rawBody != "":
		body = bytes.NewReader([]byte(req.rawBody))
		contentType = "application/json"
	case req.body != nil:
		encoded, err := json.Marshal(req.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	default:
		body = bytes.NewReader(nil)
	}

	httpReq := httptest.NewRequest(req.method, req.path, body)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httpReq)
	return rec
}

func signupAndLogin(t *testing.T, handler http.Handler, email string) string {
	t.Helper()
	resp := doRequest(t, handler, request{
		method: http.MethodPost,
		path:   "/signup",
		body:   map[string]string{"email": email, "password": "long enough pw"},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d (%s)", resp.Code, resp.Body.String())
	}

	resp = doRequest(t, handler, request{
		method: http.MethodPost,
		path:   "/token",
		form:   url.Values{"username": {email}, "password": {"long enough pw"}},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("token: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if token.TokenType != "bearer" || token.AccessToken == "" {
		t.Fatalf("unexpected token response %+v", token)
	}
	return token.AccessToken
}

func testWireLoop(id, title string) map[string]interface{} {
	return map[string]interface{}{
		"id":     id,
		"tier":   "daily",
		"type":   "open",
		"status": "active",
		"title":  title,
		"color":  "#ff8800",
		"period": "2026-09-01",
		"subtasks": []map[string]interface{}{
			{"id": "s1", "text": "first", "done": false},
		},
	}
}

func TestAuthRequired(t *testing.T) {
	handler := newTestServer(t)
	for _, path := range []string{"/loops", "/sync"} {
		resp := doRequest(t, handler, request{method: http.MethodPost, path: path, body: map[string]interface{}{}})
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, resp.Code)
		}
	}
	resp := doRequest(t, handler, request{method: http.MethodGet, path: "/loops", token: "garbage"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.Code)
	}
}

func TestLoopCRUDOverHTTP(t *testing.T) {
	handler := newTestServer(t)
	token := signupAndLogin(t, handler, "crud@example.com")

	resp := doRequest(t, handler, request{
		method: http.MethodPost,
		path:   "/loops",
		token:  token,
		body:   testWireLoop("loop-1", "Read"),
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", resp.Code, resp.Body.String())
	}

	resp = doRequest(t, handler, request{method: http.MethodGet, path: "/loops/loop-1", token: token})
	if resp.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.Code)
	}
	var loop service.WireLoop
	if err := json.NewDecoder(resp.Body).Decode(&loop); err != nil {
		t.Fatalf("decode loop: %v", err)
	}
	if loop.Title != "Read" || len(loop.Subtasks) != 1 {
		t.Fatalf("unexpected loop %+v", loop)
	}

	resp = doRequest(t, handler, request{
		method: http.MethodPut,
		path:   "/loops/loop-1",
		token:  token,
		body:   map[string]interface{}{"title": "Read more"},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}

	resp = doRequest(t, handler, request{method: http.MethodGet, path: "/loops", token: token})
	if resp.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.Code)
	}
	var loops []service.WireLoop
	if err := json.NewDecoder(resp.Body).Decode(&loops); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(loops) != 1 || loops[0].Title != "Read more" {
		t.Fatalf("unexpected list %+v", loops)
	}

	resp = doRequest(t, handler, request{method: http.MethodDelete, path: "/loops/loop-1", token: token})
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.Code)
	}
	resp = doRequest(t, handler, request{method: http.MethodGet, path: "/loops/loop-1", token: token})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", resp.Code)
	}
}

func TestSyncEndpoint(t *testing.T) {
	handler := newTestServer(t)
	token := signupAndLogin(t, handler, "sync@example.com")

	resp := doRequest(t, handler, request{
		method: http.MethodPost,
		path:   "/sync",
		token:  token,
		body: map[string]interface{}{
			"loops": []map[string]interface{}{
				testWireLoop("loop-a", "A"),
				testWireLoop("loop-b", "B"),
			},
		},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	var first struct {
		Loops           []service.WireLoop `json:"loops"`
		ServerTimestamp time.Time          `json:"serverTimestamp"`
		Conflicts       []service.Conflict `json:"conflicts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&first); err != nil {
		t.Fatalf("decode sync response: %v", err)
	}
	if len(first.Loops) != 2 || len(first.Conflicts) != 0 || first.ServerTimestamp.IsZero() {
		t.Fatalf("unexpected sync response %+v", first)
	}

	// Second sync omits loop-b and carries a stale baseline: loop-b is
	// deleted by absence and loop-a reports a conflict.
	stale := first.ServerTimestamp.Add(-time.Minute)
	resp = doRequest(t, handler, request{
		method: http.MethodPost,
		path:   "/sync",
		token:  token,
		body: map[string]interface{}{
			"loops":             []map[string]interface{}{testWireLoop("loop-a", "A2")},
			"lastSyncTimestamp": stale.Format(time.RFC3339Nano),
		},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("second sync: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	var second struct {
		Loops     []service.WireLoop `json:"loops"`
		Conflicts []service.Conflict `json:"conflicts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&second); err != nil {
		t.Fatalf("decode second sync: %v", err)
	}
	if len(second.Loops) != 1 || second.Loops[0].ID != "loop-a" || second.Loops[0].Title != "A2" {
		t.Fatalf("unexpected merged loops %+v", second.Loops)
	}
	if len(second.Conflicts) != 1 || second.Conflicts[0].ClientID != "loop-a" ||
		second.Conflicts[0].Reason != service.ConflictServerModified {
		t.Fatalf("unexpected conflicts %+v", second.Conflicts)
	}
}

func TestSyncRejectsDuplicates(t *testing.T) {
	handler := newTestServer(t)
	token := signupAndLogin(t, handler, "dup@example.com")

	resp := doRequest(t, handler, request{
		method: http.MethodPost,
		path:   "/sync",
		token:  token,
		body: map[string]interface{}{
			"loops": []map[string]interface{}{
				testWireLoop("loop-a", "One"),
				testWireLoop("loop-a", "Two"),
			},
		},
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "duplicate") {
		t.Fatalf("expected duplicate message, got %s", resp.Body.String())
	}
}

func TestOwnerIsolationOverHTTP(t *testing.T) {
	handler := newTestServer(t)
	tokenA := signupAndLogin(t, handler, "owner-a@example.com")
	tokenB := signupAndLogin(t, handler, "owner-b@example.com")

	resp := doRequest(t, handler, request{
		method: http.MethodPost,
		path:   "/loops",
		token:  tokenA,
		body:   testWireLoop("loop-1", "Mine"),
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.Code)
	}

	// Another owner sees not-found, never forbidden.
	for _, req := range []request{
		{method: http.MethodGet, path: "/loops/loop-1", token: tokenB},
		{method: http.MethodPut, path: "/loops/loop-1", token: tokenB, body: map[string]interface{}{"title": "Stolen"}},
		{method: http.MethodDelete, path: "/loops/loop-1", token: tokenB},
	} {
		resp := doRequest(t, handler, req)
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", req.method, req.path, resp.Code)
		}
	}

	resp = doRequest(t, handler, request{method: http.MethodGet, path: "/loops/loop-1", token: tokenA})
	if resp.Code != http.StatusOK {
		t.Fatalf("owner read back: expected 200, got %d", resp.Code)
	}
}

func TestSignupValidation(t *testing.T) {
	handler := newTestServer(t)

	resp := doRequest(t, handler, request{
		method: http.MethodPost,
		path:   "/signup",
		body:   map[string]string{"email": "a@b.com", "password": "short"},
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short password, got %d", resp.Code)
	}

	signupAndLogin(t, handler, "taken@example.com")
	resp = doRequest(t, handler, request{
		method: http.MethodPost,
		path:   "/signup",
		body:   map[string]string{"email": "taken@example.com", "password": "long enough pw"},
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate email, got %d", resp.Code)
	}
}

func TestBadJSONBody(t *testing.T) {
	handler := newTestServer(t)
	token := signupAndLogin(t, handler, "json@example.com")

	resp := doRequest(t, handler, request{
		method:  http.MethodPost,
		path:    "/sync",
		token:   token,
		rawBody: "{not json",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
