package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/restbound/restbound/pkg/auth"
	"github.com/restbound/restbound/pkg/config"
	"github.com/restbound/restbound/pkg/profile"
	"github.com/restbound/restbound/pkg/schema"
	"github.com/restbound/restbound/pkg/transport"
)

const stubSchema = `{
  "openapi": "3.0.1",
  "info": {"title": "stub", "version": "1"},
  "servers": [{"url": "/api"}],
  "security": [{"bearerAuth": ["/v1/auth/token"]}],
  "paths": {
    "/v1/scripts": {
      "get": {"tags": ["scripts"], "summary": "List scripts"},
      "post": {"tags": ["scripts"], "summary": "Create a script"}
    },
    "/v1/scripts/{id}": {
      "get": {
        "tags": ["scripts"],
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}]
      },
      "delete": {
        "tags": ["scripts"],
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}]
      }
    },
    "/v1/legacy": {
      "get": {"tags": ["legacy"], "deprecated": true, "x-deprecation-date": "2024-11-30"}
    }
  }
}`

// apiStub is a minimal service: schema endpoint, token lifecycle and an
// in-memory scripts resource.
type apiStub struct {
	srv       *httptest.Server
	authPosts atomic.Int32
	killPosts atomic.Int32

	mu      chan struct{} // simple semaphore; the store is tiny
	scripts map[string]map[string]any
	nextID  atomic.Int32
}

func newAPIStub(t *testing.T) *apiStub {
	t.Helper()
	s := &apiStub{
		mu:      make(chan struct{}, 1),
		scripts: map[string]map[string]any{},
	}
	s.mu <- struct{}{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/schema/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, stubSchema)
	})
	mux.HandleFunc("POST /api/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		s.authPosts.Add(1)
		if u, p, ok := r.BasicAuth(); !ok || u != "admin" || p != "secret" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"token":"stub-token"}`)
	})
	mux.HandleFunc("POST /api/v1/auth/keep-alive", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token":"stub-token-2"}`)
	})
	mux.HandleFunc("POST /api/v1/auth/invalidate-token", func(w http.ResponseWriter, r *http.Request) {
		s.killPosts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	requireBearer := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer stub-token" {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return false
		}
		return true
	}

	mux.HandleFunc("GET /api/v1/legacy", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		fmt.Fprint(w, `{"status":"still here"}`)
	})
	mux.HandleFunc("POST /api/v1/scripts", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		id := fmt.Sprint(s.nextID.Add(1))
		<-s.mu
		s.scripts[id] = body
		s.mu <- struct{}{}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": id})
	})
	mux.HandleFunc("GET /api/v1/scripts", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		<-s.mu
		results := make([]map[string]any, 0, len(s.scripts))
		for id, sc := range s.scripts {
			entry := map[string]any{"id": id}
			for k, v := range sc {
				entry[k] = v
			}
			results = append(results, entry)
		}
		s.mu <- struct{}{}
		json.NewEncoder(w).Encode(map[string]any{"totalCount": len(results), "results": results})
	})
	mux.HandleFunc("GET /api/v1/scripts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		<-s.mu
		sc, ok := s.scripts[r.PathValue("id")]
		s.mu <- struct{}{}
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		entry := map[string]any{"id": r.PathValue("id")}
		for k, v := range sc {
			entry[k] = v
		}
		json.NewEncoder(w).Encode(entry)
	})
	mux.HandleFunc("DELETE /api/v1/scripts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		<-s.mu
		delete(s.scripts, r.PathValue("id"))
		s.mu <- struct{}{}
		w.WriteHeader(http.StatusNoContent)
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *apiStub) config() config.Config {
	return config.Config{
		BaseURL:      s.srv.URL,
		Username:     "admin",
		Password:     "secret",
		Timeout:      5 * time.Second,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}
}

func TestEndToEndLifecycle(t *testing.T) {
	stub := newAPIStub(t)
	ctx := context.Background()

	c, err := New(ctx, stub.config(), nil)
	require.NoError(t, err)
	defer c.Close(ctx)

	// Both verbs on /v1/scripts registered under distinct names.
	names := c.Operations()
	assert.Contains(t, names, "scripts_create_v1_scripts")
	assert.Contains(t, names, "scripts_get_v1_scripts")

	created, err := c.Invoke(ctx, "scripts_create_v1_scripts", Args{
		"data": map[string]any{"name": "install", "priority": "AFTER"},
	})
	require.NoError(t, err)
	require.True(t, created.Success, "create failed: %s", created.Body)
	require.True(t, created.IsStructured)
	id, _ := created.Parsed["id"].(string)
	require.NotEmpty(t, id)

	listed, err := c.Invoke(ctx, "scripts_get_v1_scripts", Args{"page-size": 100})
	require.NoError(t, err)
	require.True(t, listed.Success)
	assert.Equal(t, float64(1), listed.Parsed["totalCount"])
	assert.Contains(t, string(listed.Body), `"id":"`+id+`"`)

	fetched, err := c.Invoke(ctx, "scripts_get_v1_scripts_by_id", Args{"id": id})
	require.NoError(t, err)
	require.True(t, fetched.Success)
	assert.Equal(t, "install", fetched.Parsed["name"])

	deleted, err := c.Invoke(ctx, "scripts_delete_v1_scripts_by_id", Args{"id": id})
	require.NoError(t, err)
	assert.True(t, deleted.Success)
	assert.Equal(t, http.StatusNoContent, deleted.StatusCode)
	assert.False(t, deleted.IsStructured)

	// One token served the whole sequence.
	assert.Equal(t, int32(1), stub.authPosts.Load())

	require.NoError(t, c.Close(ctx))
	assert.Equal(t, int32(1), stub.killPosts.Load())
}

func TestBusinessErrorSurfacesAsEnvelope(t *testing.T) {
	stub := newAPIStub(t)
	ctx := context.Background()

	c, err := New(ctx, stub.config(), nil)
	require.NoError(t, err)
	defer c.Close(ctx)

	res, err := c.Invoke(ctx, "scripts_get_v1_scripts_by_id", Args{"id": "no-such"})
	require.NoError(t, err, "4xx must not surface as a Go error")
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestUnknownOperation(t *testing.T) {
	stub := newAPIStub(t)
	ctx := context.Background()

	c, err := New(ctx, stub.config(), nil)
	require.NoError(t, err)
	defer c.Close(ctx)

	_, err = c.Invoke(ctx, "scripts_frobnicate", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation")
}

func TestHideDeprecated(t *testing.T) {
	stub := newAPIStub(t)
	ctx := context.Background()

	cfg := stub.config()
	c, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Contains(t, c.Operations(), "legacy_get_v1_legacy")
	c.Close(ctx)

	cfg = stub.config()
	cfg.HideDeprecated = true
	hidden, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer hidden.Close(ctx)
	assert.NotContains(t, hidden.Operations(), "legacy_get_v1_legacy")
}

func TestDeprecationWarnsButProceeds(t *testing.T) {
	stub := newAPIStub(t)
	ctx := context.Background()

	core, logs := observer.New(zap.WarnLevel)
	cfg := stub.config()
	cfg.Logger = zap.New(core)

	c, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer c.Close(ctx)

	res, err := c.Invoke(ctx, "legacy_get_v1_legacy", nil)
	require.NoError(t, err)
	assert.True(t, res.Success, "deprecation must never block execution")

	entries := logs.FilterMessage("calling deprecated operation").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "legacy_get_v1_legacy", fields["operation"])
	assert.Equal(t, "2024-11-30", fields["deprecated_on"])
}

// countingDoer records calls without performing any I/O.
type countingDoer struct {
	calls atomic.Int32
}

func (d *countingDoer) Do(_ context.Context, _ transport.Request) (*transport.Result, error) {
	d.calls.Add(1)
	return &transport.Result{Status: http.StatusOK, Body: []byte(`{"token":"x"}`)}, nil
}

func TestMissingPathParamFailsBeforeNetwork(t *testing.T) {
	doer := &countingDoer{}
	c := &Client{
		prof:    profile.Modern(),
		baseURL: "https://stub.invalid",
		headers: http.Header{},
		doer:    doer,
		logger:  zap.NewNop(),
		desc:    &schema.Description{BasePath: "/api"},
	}
	c.tokens = auth.NewManager(doer, auth.Endpoints{Token: "https://stub.invalid/t"},
		auth.Credentials{Username: "u", Password: "p"}, nil)
	c.ops = map[string]*Operation{
		"scripts_get_v1_scripts_by_id": {
			Name:       "scripts_get_v1_scripts_by_id",
			Endpoint:   schema.Endpoint{Path: "/v1/scripts/{id}", Method: "GET", Tag: "scripts"},
			pathParams: []string{"id"},
			client:     c,
		},
	}

	_, err := c.Invoke(context.Background(), "scripts_get_v1_scripts_by_id", Args{"page": 1})
	var berr *BindError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "id", berr.Param)
	assert.Equal(t, int32(0), doer.calls.Load(), "no HTTP call may precede binding failure")

	// With the parameter supplied the same operation dispatches.
	res, err := c.Invoke(context.Background(), "scripts_get_v1_scripts_by_id", Args{"id": "7"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, doer.calls.Load() >= 2, "auth + dispatch expected")
}

func TestCollisionNamesStayDistinct(t *testing.T) {
	// The same operationId on three endpoints with the same verb must still
	// yield three registry entries, not a silent overwrite.
	c := &Client{
		prof:   profile.Modern(),
		logger: zap.NewNop(),
		desc: &schema.Description{Endpoints: []schema.Endpoint{
			{Path: "/v1/a", Method: "GET", Tag: "sync", OperationID: "sync"},
			{Path: "/v1/b", Method: "GET", Tag: "sync", OperationID: "sync"},
			{Path: "/v1/c", Method: "GET", Tag: "sync", OperationID: "sync"},
		}},
	}
	ops := c.buildRegistry()
	require.Len(t, ops, 3)
	for _, name := range []string{"sync_sync", "sync_sync_get", "sync_sync_get_2"} {
		assert.Contains(t, ops, name)
	}
}

func TestAuthFailurePropagates(t *testing.T) {
	stub := newAPIStub(t)
	ctx := context.Background()

	cfg := stub.config()
	cfg.Password = "wrong"
	c, err := New(ctx, cfg, nil)
	require.NoError(t, err, "construction does not authenticate")

	_, err = c.Invoke(ctx, "scripts_get_v1_scripts", nil)
	var aerr *auth.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, http.StatusUnauthorized, aerr.Status)
}

func TestPathEscaping(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/schema/":
			fmt.Fprint(w, stubSchema)
		case strings.HasSuffix(r.URL.Path, "/auth/token"):
			fmt.Fprint(w, `{"token":"stub-token"}`)
		default:
			seen = r.URL.EscapedPath()
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	cfg := config.Config{
		BaseURL: srv.URL, Username: "u", Password: "p",
		Timeout: time.Second, RetryWaitMin: time.Millisecond,
	}
	c, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), "scripts_get_v1_scripts_by_id", Args{"id": "a b/c"})
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/scripts/a%20b%2Fc", seen)
}

func TestCloseDiscardsCredentials(t *testing.T) {
	stub := newAPIStub(t)
	ctx := context.Background()

	c, err := New(ctx, stub.config(), nil)
	require.NoError(t, err)
	_, err = c.Invoke(ctx, "scripts_get_v1_scripts", nil)
	require.NoError(t, err)
	require.NoError(t, c.Close(ctx))

	_, err = c.Invoke(ctx, "scripts_get_v1_scripts", nil)
	require.True(t, errors.Is(err, auth.ErrCredentialsDiscarded))
}
