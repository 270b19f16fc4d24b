package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scmguard/scmguard/pkg/accounts"
)

func TestIdentityMiddleware(t *testing.T) {
	var got *Identity
	handler := NewIdentityMiddleware(false).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetIdentity(r)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderProviderUserID, "u-1")
	r.Header.Set(HeaderProvider, "github")
	r.Header.Set(HeaderUserEmail, "dev@acme.test")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	require.NotNil(t, got)
	assert.Equal(t, "u-1", got.ProviderUserID)
	assert.Equal(t, "github", got.Provider)
	assert.Equal(t, "dev@acme.test", got.Email)
}

func TestIdentityMiddlewareMissingHeaders(t *testing.T) {
	handler := NewIdentityMiddleware(false).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without identity")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityMiddlewareOptional(t *testing.T) {
	called := false
	handler := NewIdentityMiddleware(true).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Nil(t, GetIdentity(r))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

type fakeAccountResolver struct {
	byID   map[int64]*accounts.Account
	bySlug map[string]*accounts.Account
}

func (f *fakeAccountResolver) GetAccount(_ context.Context, id int64) (*accounts.Account, error) {
	if a, ok := f.byID[id]; ok {
		return a, nil
	}
	return nil, accounts.ErrAccountNotFound
}

func (f *fakeAccountResolver) GetAccountBySlug(_ context.Context, provider, slug string) (*accounts.Account, error) {
	if a, ok := f.bySlug[provider+"/"+slug]; ok {
		return a, nil
	}
	return nil, accounts.ErrAccountNotFound
}

func accountRouter(resolver AccountResolver, handler http.HandlerFunc) *mux.Router {
	router := mux.NewRouter()
	router.Use(NewIdentityMiddleware(true).Handler)
	router.Use(NewAccountContextMiddleware(resolver).Handler)
	router.HandleFunc("/v1/accounts/{account}/repositories", handler)
	return router
}

func TestAccountContextMiddlewareByID(t *testing.T) {
	acme := &accounts.Account{ID: 7, Slug: "acme", Provider: "github"}
	resolver := &fakeAccountResolver{
		byID:   map[int64]*accounts.Account{7: acme},
		bySlug: map[string]*accounts.Account{"github/acme": acme},
	}

	var got *accounts.Account
	router := accountRouter(resolver, func(w http.ResponseWriter, r *http.Request) {
		got = GetAccount(r)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/accounts/7/repositories", nil))
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.ID)

	got = nil
	slugReq := httptest.NewRequest(http.MethodGet, "/v1/accounts/acme/repositories", nil)
	slugReq.Header.Set(HeaderProviderUserID, "u-1")
	slugReq.Header.Set(HeaderProvider, "github")
	router.ServeHTTP(rec, slugReq)
	require.NotNil(t, got)
	assert.Equal(t, "acme", got.Slug)
}

func TestAccountContextMiddlewareNotFound(t *testing.T) {
	router := accountRouter(&fakeAccountResolver{}, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for unknown account")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/accounts/missing/repositories", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	newReq := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:54321"
		return r
	}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newReq())
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimiterFailsOpenOnRedisError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	rl := NewRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
