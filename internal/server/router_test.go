package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"chatrelay/internal/auth"
	"chatrelay/internal/bus"
	"chatrelay/internal/cache"
	"chatrelay/internal/config"
	"chatrelay/internal/service"
	"chatrelay/internal/store"
	"chatrelay/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{
		Port:             "8000",
		SessionSecret:    "secret",
		LoginURL:         "/",
		BroadcastChannel: "messages",
		Env:              "dev",
		CacheTTLSeconds:  3600,
	}
	st := store.NewMemoryStore()
	c := cache.New(cache.NewMemoryBackend(cfg.CacheTTL()), cfg.CacheTTL())
	deps := Deps{
		Users:    service.NewUserService(st, c, cfg.SessionSecret),
		Resolver: auth.NewResolver(c, st),
		Gateway:  ws.NewGateway(bus.NewMemoryBus(), ws.NewHub(), cfg.BroadcastChannel),
	}
	return SetupRouter(cfg, deps), st
}

func postForm(r *gin.Engine, path, login, password string) *httptest.ResponseRecorder {
	form := url.Values{"login": {login}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			return c
		}
	}
	return nil
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestIndex(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `action="/login"`)
}

func TestRegisterLoginChat(t *testing.T) {
	r, st := newTestRouter(t)

	w := postForm(r, "/register", "alice", "pw")
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = postForm(r, "/login", "alice", "pw")
	require.Equal(t, http.StatusSeeOther, w.Code)
	loc := w.Header().Get("Location")
	assert.Regexp(t, `^/chat/[0-9a-f]{40}$`, loc)
	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, int(time.Hour.Seconds()), cookie.MaxAge)

	req := httptest.NewRequest(http.MethodGet, loc, nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Signed in as alice")
	assert.Contains(t, body, strings.TrimPrefix(loc, "/chat/"))
	assert.Contains(t, body, `data-port="8000"`)

	n, _ := st.Count(req.Context())
	assert.EqualValues(t, 1, n)
}

func TestRegister_Outcomes(t *testing.T) {
	r, st := newTestRouter(t)
	require.Equal(t, http.StatusSeeOther, postForm(r, "/register", "alice", "pw").Code)

	assert.Equal(t, http.StatusConflict, postForm(r, "/register", "alice", "other").Code)
	assert.Equal(t, http.StatusBadRequest, postForm(r, "/register", "", "pw").Code)
	assert.Equal(t, http.StatusBadRequest, postForm(r, "/register", "bob", "").Code)

	n, _ := st.Count(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.EqualValues(t, 1, n)
}

func TestLogin_FailureIssuesNothing(t *testing.T) {
	r, _ := newTestRouter(t)
	require.Equal(t, http.StatusSeeOther, postForm(r, "/register", "alice", "pw").Code)

	tests := []struct {
		name            string
		login, password string
		wantCode        int
	}{
		{"wrong password", "alice", "nope", http.StatusUnauthorized},
		{"unknown login", "bob", "pw", http.StatusUnauthorized},
		{"missing field", "alice", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postForm(r, "/login", tt.login, tt.password)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Nil(t, sessionCookie(w))
			assert.Empty(t, w.Header().Get("Location"))
		})
	}
}

func TestChatPage_AnonymousRedirects(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, cookie := range []*http.Cookie{nil, {Name: auth.SessionCookie, Value: "garbage"}} {
		req := httptest.NewRequest(http.MethodGet, "/chat/abc", nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/", w.Header().Get("Location"))
	}
}

func TestOnline(t *testing.T) {
	r, _ := newTestRouter(t)
	require.Equal(t, http.StatusSeeOther, postForm(r, "/register", "alice", "pw").Code)
	cookie := sessionCookie(postForm(r, "/login", "alice", "pw"))
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodGet, "/api/online", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"online":0,"names":[]}`, w.Body.String())
}
