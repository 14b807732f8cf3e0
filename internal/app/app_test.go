package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/envmirror/config"
	"github.com/grovetools/envmirror/pkg/models"
	"github.com/grovetools/envmirror/pkg/notify"
	"github.com/grovetools/envmirror/pkg/remotestate"
	"github.com/grovetools/envmirror/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Transport.Kind = "local"
	cfg.Backend.StateFile = filepath.Join(t.TempDir(), "backend.yml")

	testutil.WriteStateFile(t, cfg.Backend.StateFile,
		models.Settings{models.SettingTheme: "dark"},
		testutil.Env("e1", "name", "one"),
		testutil.Env("e2"),
	)
	return cfg
}

func TestNewLocal(t *testing.T) {
	cfg := localConfig(t)
	cfg.UI.EnvSort = "status"
	cfg.Cache.SerializeWrites = true

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.IsLocal())
	assert.Equal(t, remotestate.StateReady, a.Cache.State())
	assert.Equal(t, []string{"e1", "e2"}, a.Cache.EnvIDs())

	order, err := notify.GetAs[notify.SortOrder](a.Notify, notify.ChannelEnvSort)
	require.NoError(t, err)
	assert.Equal(t, notify.SortByStatus, order)

	view, err := notify.GetAs[notify.View](a.Notify, notify.ChannelEnvView)
	require.NoError(t, err)
	assert.Equal(t, notify.ViewListColumns, view)

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families, "initialize records its calls")
}

func TestLocalEvents(t *testing.T) {
	a, err := New(context.Background(), localConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := a.Events(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Cache.SetEnvProperty(ctx, "e2", models.EnvPropertyLabel, "x"))

	select {
	case ev := <-events:
		assert.Equal(t, "envs", ev.Type)
		assert.Equal(t, "rpc", ev.Source)
		assert.Equal(t, "e2", ev.Key)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	for range events {
	}
}

func TestNewRejectsBadTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Transport.Kind = "http"
	cfg.Transport.URL = ""

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestSchemaIgnoresUnknownUIValues(t *testing.T) {
	cfg := config.Default()
	cfg.UI.EnvSort = "colour"
	cfg.UI.EnvView = "grid"

	schema := Schema(cfg)
	assert.Equal(t, notify.SortByName, schema[notify.ChannelEnvSort])
	assert.Equal(t, notify.ViewGrid, schema[notify.ChannelEnvView])
}
