package backend

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/internal/backend/pidfile"
	"github.com/grovetools/envmirror/internal/backend/store"
	"github.com/grovetools/envmirror/pkg/models"
	"github.com/grovetools/envmirror/pkg/rpc"
	"github.com/grovetools/envmirror/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() (*Handler, *store.Store) {
	st := store.NewMemory(store.State{
		Settings: models.Settings{models.SettingTheme: "dark"},
		Envs: []models.EnvSummary{
			models.NewEnvSummary("a", map[models.EnvProperty]string{models.EnvPropertyName: "alpha"}),
		},
	})
	return NewHandler(st, nil), st
}

func TestHandlerThroughLocalChannel(t *testing.T) {
	h, st := newTestHandler()
	ctx := context.Background()

	ch := rpc.NewLocalChannel(h)
	require.NoError(t, ch.Init(ctx))
	b := rpc.NewBackend(ch)

	settings, err := b.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dark", settings[models.SettingTheme])

	require.NoError(t, b.SetSetting(ctx, models.SettingTheme, "light"))
	assert.Equal(t, "light", st.Settings()[models.SettingTheme])

	require.NoError(t, b.SetEnvProperty(ctx, "a", models.EnvPropertyLabel, "x"))
	envs, err := b.GetEnvSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	label, _ := envs[0].Get(models.EnvPropertyLabel)
	assert.Equal(t, "x", label)

	err = b.SetEnvProperty(ctx, "missing", models.EnvPropertyLabel, "x")
	require.Error(t, err)
	var remote *rpc.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, string(errors.ErrCodeUnknownEnv), remote.Code)
}

func TestHandlerRejects(t *testing.T) {
	h, _ := newTestHandler()

	tests := []struct {
		name    string
		method  rpc.Method
		payload string
	}{
		{"unknown method", rpc.Method("dropTables"), ""},
		{"missing payload", rpc.MethodSetSetting, ""},
		{"malformed payload", rpc.MethodSetEnvProperty, "{"},
		{"empty setting name", rpc.MethodSetSetting, `{"name":"","value":"x"}`},
		{"id as property name", rpc.MethodSetEnvProperty, `{"envId":"a","name":"id","value":"z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload json.RawMessage
			if tt.payload != "" {
				payload = json.RawMessage(tt.payload)
			}
			_, err := h.Serve(context.Background(), tt.method, payload)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
		})
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	dir := testutil.ShortTempDir(t)

	opts := Options{
		StateFile: filepath.Join(dir, "backend.yml"),
		Socket:    filepath.Join(dir, "b.sock"),
		PidFile:   filepath.Join(dir, "b.pid"),
	}
	b, err := New(opts, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	ch := rpc.NewUnixChannel(opts.Socket, time.Second)
	require.Eventually(t, func() bool { return ch.Init(ctx) == nil }, 5*time.Second, 20*time.Millisecond)

	settings, err := rpc.NewBackend(ch).GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dark", settings[models.SettingTheme])

	running, pid, err := pidfile.IsRunning(opts.PidFile)
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("backend did not stop")
	}
	_, err = os.Stat(opts.PidFile)
	assert.True(t, os.IsNotExist(err))
}
