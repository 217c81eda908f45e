package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samuell19/megazord-ai/internal/agent"
	"github.com/samuell19/megazord-ai/internal/apperr"
	"github.com/samuell19/megazord-ai/internal/conversation"
	"github.com/samuell19/megazord-ai/internal/credential"
	"github.com/samuell19/megazord-ai/internal/db"
	"github.com/samuell19/megazord-ai/internal/models"
	"github.com/samuell19/megazord-ai/internal/provider"
	"github.com/samuell19/megazord-ai/internal/revocation"
	"gorm.io/gorm"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type fakeConversations struct {
	requests []conversation.Request
	result   *conversation.Result
	err      error
	waited   bool
}

func (f *fakeConversations) HandleMessage(ctx context.Context, req conversation.Request) (*conversation.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	tokens := 15
	return &conversation.Result{Response: "hi", Model: "m", TokensUsed: &tokens, SessionID: "s-1", MessageID: "m-2"}, nil
}

func (f *fakeConversations) Wait() { f.waited = true }

type fakeCatalog struct {
	credential string
	err        error
}

func (f *fakeCatalog) ListModels(ctx context.Context, credential string) ([]provider.ModelDescriptor, error) {
	f.credential = credential
	if f.err != nil {
		return nil, f.err
	}
	return []provider.ModelDescriptor{{ID: "openai/gpt-4o-mini", Name: "GPT-4o mini", ContextLength: 128000}}, nil
}

type testServer struct {
	router  *gin.Engine
	db      *gorm.DB
	creds   *credential.Service
	conv    *fakeConversations
	catalog *fakeCatalog
	revoked *revocation.Set
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	cipher, err := credential.NewCipher("api-test-secret")
	if err != nil {
		t.Fatal(err)
	}
	ts := &testServer{
		db:      gdb,
		creds:   credential.NewService(gdb, cipher, nil),
		conv:    &fakeConversations{},
		catalog: &fakeCatalog{},
		revoked: revocation.NewSet(),
	}
	opts := StartOpts{
		DB:            gdb,
		Conversations: ts.conv,
		Credentials:   ts.creds,
		Models:        ts.catalog,
		Revoked:       ts.revoked,
	}
	if err := opts.validate(); err != nil {
		t.Fatal(err)
	}
	ts.router = newRouter(opts)
	return ts
}

type call struct {
	method string
	path   string
	user   string
	token  string
	body   string
}

func (ts *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if c.body != "" {
		body = bytes.NewReader([]byte(c.body))
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set(UserHeader, c.user)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status  int             `json:"status"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Time    string          `json:"timestamp"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	if env.Time == "" {
		t.Error("envelope missing timestamp")
	}
	return env
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, code int) envelope {
	t.Helper()
	if w.Code != code {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, code, w.Body.String())
	}
	env := decode(t, w)
	if env.Status != code {
		t.Errorf("envelope status = %d, want %d", env.Status, code)
	}
	return env
}

func (ts *testServer) seedAgent(t *testing.T, user string) *models.Agent {
	t.Helper()
	a, err := agent.Create(ts.db, agent.CreateOpts{UserID: user, Name: "Helper", Model: "openai/gpt-4o-mini"})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func jwtWithExpiry(exp time.Time) string {
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := enc.EncodeToString([]byte(fmt.Sprintf(`{"sub":"user-1","exp":%d}`, exp.Unix())))
	return header + "." + payload + "." + enc.EncodeToString([]byte("sig"))
}

// ---------------------------------------------------------------------------
// Start
// ---------------------------------------------------------------------------

func TestStart_RequiresCollaborators(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil || !strings.Contains(err.Error(), "db is required") {
		t.Errorf("err = %v", err)
	}
}

func TestStartOpts_Defaults(t *testing.T) {
	ts := newTestServer(t)
	opts := StartOpts{DB: ts.db, Conversations: ts.conv, Credentials: ts.creds, Models: ts.catalog, Revoked: ts.revoked}
	if err := opts.validate(); err != nil {
		t.Fatal(err)
	}
	if opts.Port != DefaultPort || opts.Logger == nil {
		t.Errorf("defaults = port %d logger %v", opts.Port, opts.Logger)
	}
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Start(ctx, StartOpts{
			DB: ts.db, Conversations: ts.conv, Credentials: ts.creds, Models: ts.catalog, Revoked: ts.revoked,
			Port: 18000 + int(time.Now().UnixNano()%1000),
		})
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	if !ts.conv.waited {
		t.Error("pending conversation work was not awaited")
	}
}

// slowConversations blocks HandleMessage until release is closed and records
// whether Wait was called while an exchange was still running.
type slowConversations struct {
	started chan struct{}
	release chan struct{}

	mu                 sync.Mutex
	running            bool
	waited             bool
	waitedWhileRunning bool
}

func (f *slowConversations) HandleMessage(ctx context.Context, req conversation.Request) (*conversation.Result, error) {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	close(f.started)

	<-f.release

	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	return &conversation.Result{Response: "late", Model: "m", SessionID: "s-1", MessageID: "m-2"}, nil
}

func (f *slowConversations) Wait() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waited = true
	if f.running {
		f.waitedWhileRunning = true
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestStart_DrainsExchangesBeforeWaiting(t *testing.T) {
	ts := newTestServer(t)
	conv := &slowConversations{started: make(chan struct{}), release: make(chan struct{})}
	port := freePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- Start(ctx, StartOpts{
			DB: ts.db, Conversations: conv, Credentials: ts.creds, Models: ts.catalog, Revoked: ts.revoked,
			Port: port,
		})
	}()

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := http.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	statusCh := make(chan int, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodPost, base+"/api/agents/agent-1/messages", strings.NewReader(`{"message":"hi"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(UserHeader, "user-1")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			statusCh <- 0
			return
		}
		resp.Body.Close()
		statusCh <- resp.StatusCode
	}()

	select {
	case <-conv.started:
	case <-time.After(3 * time.Second):
		t.Fatal("exchange never reached the handler")
	}
	cancel()

	select {
	case err := <-errCh:
		t.Fatalf("Start returned while an exchange was running: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	close(conv.release)

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	if got := <-statusCh; got != http.StatusOK {
		t.Errorf("in-flight exchange status = %d, want 200", got)
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	if !conv.waited {
		t.Error("pending conversation work was not awaited")
	}
	if conv.waitedWhileRunning {
		t.Error("Wait was called while an exchange was still in its handler")
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, call{method: http.MethodGet, path: "/health"})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestRequireUser(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, call{method: http.MethodGet, path: "/api/agents"})
	env := expectStatus(t, w, http.StatusUnauthorized)
	if env.Error != "AuthenticationError" {
		t.Errorf("error = %q", env.Error)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "req-42" {
		t.Errorf("request id = %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, call{method: http.MethodOptions, path: "/api/agents"})
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, call{method: http.MethodGet, path: "/nope"})
	expectStatus(t, w, http.StatusNotFound)
}

// ---------------------------------------------------------------------------
// Logout and revocation
// ---------------------------------------------------------------------------

func TestLogout_RevokesToken(t *testing.T) {
	ts := newTestServer(t)
	token := jwtWithExpiry(time.Now().Add(time.Hour))

	w := ts.do(t, call{method: http.MethodGet, path: "/api/agents", user: "user-1", token: token})
	expectStatus(t, w, http.StatusOK)

	w = ts.do(t, call{method: http.MethodPost, path: "/api/auth/logout", user: "user-1", token: token})
	expectStatus(t, w, http.StatusOK)
	if ts.revoked.Len() != 1 {
		t.Fatalf("revoked entries = %d", ts.revoked.Len())
	}

	w = ts.do(t, call{method: http.MethodGet, path: "/api/agents", user: "user-1", token: token})
	env := expectStatus(t, w, http.StatusUnauthorized)
	if !strings.Contains(env.Message, "revoked") {
		t.Errorf("message = %q", env.Message)
	}
}

func TestLogout_WithoutToken(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, call{method: http.MethodPost, path: "/api/auth/logout", user: "user-1"})
	expectStatus(t, w, http.StatusBadRequest)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	if got := tokenExpiry(jwtWithExpiry(exp)); !got.Equal(exp) {
		t.Errorf("expiry = %v, want %v", got, exp)
	}
	if got := tokenExpiry("opaque-token"); !got.IsZero() {
		t.Errorf("opaque token expiry = %v, want zero", got)
	}
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		code int
		name string
	}{
		{apperr.KindRecursionLimit, 400, "RecursionLimitError"},
		{apperr.KindNotFound, 404, "NotFound"},
		{apperr.KindAccessDenied, 403, "Forbidden"},
		{apperr.KindConfiguration, 400, "ConfigurationError"},
		{apperr.KindCorruptCredential, 500, "CredentialError"},
		{apperr.KindInvalidCredential, 401, "InvalidApiKey"},
		{apperr.KindRateLimited, 429, "TooManyRequests"},
		{apperr.KindMalformedRequest, 400, "ValidationError"},
		{apperr.KindProviderUnavailable, 503, "ServiceUnavailable"},
		{apperr.KindNetworkUnreachable, 504, "GatewayTimeout"},
		{apperr.KindProviderError, 502, "ProviderError"},
		{apperr.KindProcessingFailed, 500, "ServerError"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			code, name := statusFor(apperr.New(tt.kind, "x"))
			if code != tt.code || name != tt.name {
				t.Errorf("statusFor = %d %s, want %d %s", code, name, tt.code, tt.name)
			}
		})
	}
}
