package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/internal/backend/store"
	"github.com/grovetools/envmirror/pkg/models"
	"github.com/grovetools/envmirror/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *store.Store, *httptest.Server) {
	t.Helper()
	st := store.NewMemory(store.State{
		Settings: models.Settings{models.SettingTheme: "dark"},
		Envs:     []models.EnvSummary{models.NewEnvSummary("a", nil)},
	})
	handler := rpc.HandlerFunc(func(ctx context.Context, method rpc.Method, payload json.RawMessage) (interface{}, error) {
		switch method {
		case rpc.MethodGetSettings:
			return st.Settings(), nil
		case rpc.MethodGetEnvSummaries:
			return st.EnvSummaries(), nil
		}
		return nil, errors.UnknownEnv("zz")
	})
	srv := New(handler, st, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, st, ts
}

func TestHTTPRoundTrip(t *testing.T) {
	_, _, ts := newTestServer(t)
	ctx := context.Background()

	ch := rpc.NewHTTPChannel(ts.URL, time.Second)
	require.NoError(t, ch.Init(ctx))
	b := rpc.NewBackend(ch)

	settings, err := b.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dark", settings[models.SettingTheme])

	err = b.SetEnvProperty(ctx, "zz", models.EnvPropertyLabel, "x")
	var remote *rpc.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, string(errors.ErrCodeUnknownEnv), remote.Code)
}

func TestRPCRejectsGet(t *testing.T) {
	_, _, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/rpc/getSettings")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebSocketRoundTrip(t *testing.T) {
	_, _, ts := newTestServer(t)
	ctx := context.Background()

	ch := rpc.NewWebSocketChannel("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, ch.Init(ctx))
	defer ch.Close()
	b := rpc.NewBackend(ch)

	envs, err := b.GetEnvSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "a", envs[0].ID)

	_, err = b.GetSettings(ctx)
	require.NoError(t, err)
}

func TestEventsStream(t *testing.T) {
	_, st, ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := rpc.NewHTTPChannel(ts.URL, time.Second).Events(ctx)
	require.NoError(t, err)

	require.NoError(t, st.SetSetting(models.SettingTheme, "light", "rpc"))

	select {
	case ev := <-events:
		assert.Equal(t, rpc.Event{Type: "settings", Source: "rpc", Key: "theme"}, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestMetricsAndInfo(t *testing.T) {
	_, _, ts := newTestServer(t)
	ctx := context.Background()

	ch := rpc.NewHTTPChannel(ts.URL, time.Second)
	require.NoError(t, ch.Init(ctx))
	_, err := rpc.NewBackend(ch).GetSettings(ctx)
	require.NoError(t, err)

	body := get(t, ts.URL+"/metrics")
	assert.Contains(t, body, `envmirror_backend_requests_total{method="getSettings",result="ok",transport="http"} 1`)
	assert.Contains(t, body, "envmirror_backend_request_duration_seconds")

	info := get(t, ts.URL+"/api/info")
	assert.Contains(t, info, `"environments":1`)

	state := get(t, ts.URL+"/api/state")
	assert.Contains(t, state, `"theme":"dark"`)
}

func TestNATSReply(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		subject string
		data    string
		code    string
		result  string
	}{
		{"method from subject", "envmirror.rpc.getSettings", `{"id":"1"}`, "", `{"theme":"dark"}`},
		{"matching envelope method", "envmirror.rpc.getSettings", `{"id":"2","method":"getSettings"}`, "", `{"theme":"dark"}`},
		{"handler rejection", "envmirror.rpc.setEnvProperty", `{"id":"3"}`, string(errors.ErrCodeUnknownEnv), ""},
		{"mismatched envelope method", "envmirror.rpc.getSettings", `{"id":"4","method":"setSetting"}`, string(errors.ErrCodeInvalidInput), ""},
		{"subject without method", "envmirror.rpc", `{"id":"5"}`, string(errors.ErrCodeInvalidInput), ""},
		{"malformed envelope", "envmirror.rpc.getSettings", `{`, string(errors.ErrCodeInvalidInput), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.natsReply(ctx, rpc.DefaultSubject, tt.subject, []byte(tt.data))
			if tt.code != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.code, resp.Error.Code)
				return
			}
			require.Nil(t, resp.Error)
			assert.JSONEq(t, tt.result, string(resp.Result))
		})
	}

	resp := srv.natsReply(ctx, rpc.DefaultSubject, "envmirror.rpc.getSettings", []byte(`{"id":"abc"}`))
	assert.Equal(t, "abc", resp.ID)
}

func TestShutdownBeforeServe(t *testing.T) {
	srv := New(rpc.HandlerFunc(nil), nil, nil)
	require.NoError(t, srv.Shutdown(context.Background()))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.NoError(t, srv.Serve(l))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code errors.ErrorCode
		want int
	}{
		{errors.ErrCodeInvalidInput, http.StatusBadRequest},
		{errors.ErrCodeUnknownEnv, http.StatusNotFound},
		{errors.ErrCodeEnvNotFound, http.StatusNotFound},
		{errors.ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(string(tt.code)))
		})
	}
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
