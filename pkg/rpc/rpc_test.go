package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingsHandler() HandlerFunc {
	settings := models.Settings{models.SettingTheme: "dark"}
	return func(ctx context.Context, method Method, payload json.RawMessage) (interface{}, error) {
		switch method {
		case MethodGetSettings:
			return settings, nil
		case MethodSetSetting:
			var req models.SetSettingRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, err
			}
			settings[req.Name] = req.Value
			return nil, nil
		}
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown method")
	}
}

func TestDispatch(t *testing.T) {
	req, err := NewRequest(MethodGetSettings, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)

	resp := Dispatch(context.Background(), settingsHandler(), req)
	assert.Equal(t, req.ID, resp.ID)
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, `{"theme":"dark"}`, string(resp.Result))

	resp = Dispatch(context.Background(), settingsHandler(), Request{ID: "x", Method: "nope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(errors.ErrCodeInvalidInput), resp.Error.Code)
	assert.Contains(t, resp.Error.Error(), "INVALID_INPUT")
}

func TestLocalChannelLifecycle(t *testing.T) {
	ctx := context.Background()
	ch := NewLocalChannel(settingsHandler())

	err := ch.Call(ctx, MethodGetSettings, nil, nil)
	assert.Error(t, err, "calls before Init are refused")

	require.NoError(t, ch.Init(ctx))
	b := NewBackend(ch)
	require.NoError(t, b.SetSetting(ctx, models.SettingTheme, "light"))
	settings, err := b.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "light", settings[models.SettingTheme])

	require.NoError(t, ch.Close())
	assert.Error(t, ch.Call(ctx, MethodGetSettings, nil, nil))
	assert.Error(t, ch.Init(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	live := NewLocalChannel(settingsHandler())
	require.NoError(t, live.Init(ctx))
	assert.ErrorIs(t, live.Call(cancelled, MethodGetSettings, nil, nil), context.Canceled)
}

func TestDialer(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"unix without socket", Options{Kind: KindUnix}, true},
		{"http without url", Options{Kind: KindHTTP}, true},
		{"websocket without url", Options{Kind: KindWebSocket}, true},
		{"nats without url", Options{Kind: KindNATS}, true},
		{"local without handler", Options{Kind: KindLocal}, true},
		{"unknown kind", Options{Kind: "carrier-pigeon"}, true},
		{"unix", Options{Kind: KindUnix, Socket: "/tmp/x.sock"}, false},
		{"http", Options{Kind: KindHTTP, URL: "http://127.0.0.1:1"}, false},
		{"websocket", Options{Kind: KindWebSocket, URL: "ws://127.0.0.1:1/ws"}, false},
		{"nats", Options{Kind: KindNATS, NATSURL: "nats://127.0.0.1:1"}, false},
		{"local", Options{Kind: KindLocal, Local: settingsHandler()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dial, err := Dialer(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, dial)
		})
	}
}

func TestDialerBuildsFreshChannels(t *testing.T) {
	dial, err := Dialer(Options{Kind: KindLocal, Local: settingsHandler()})
	require.NoError(t, err)

	first, err := dial(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := dial(context.Background())
	require.NoError(t, err)
	assert.NoError(t, second.Init(context.Background()))
}

func TestDialerAutoFallsBackToLocal(t *testing.T) {
	dial, err := Dialer(Options{Kind: KindAuto, Socket: t.TempDir() + "/absent.sock", Local: settingsHandler()})
	require.NoError(t, err)
	ch, err := dial(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &LocalChannel{}, ch)

	dial, err = Dialer(Options{Kind: KindAuto, Socket: t.TempDir() + "/absent.sock"})
	require.NoError(t, err)
	_, err = dial(context.Background())
	assert.Error(t, err)
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "envmirror.rpc.getSettings", SubjectFor(DefaultSubject, MethodGetSettings))
}

func TestMethodFromSubject(t *testing.T) {
	tests := []struct {
		subject string
		want    Method
		ok      bool
	}{
		{"envmirror.rpc.getSettings", MethodGetSettings, true},
		{"envmirror.rpc.setEnvProperty", MethodSetEnvProperty, true},
		{"envmirror.rpc.", "", false},
		{"envmirror.rpc", "", false},
		{"other.rpc.getSettings", "", false},
		{"envmirror.rpc.a.b", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			got, ok := MethodFromSubject(DefaultSubject, tt.subject)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNATSRequestEnvelope(t *testing.T) {
	subject, data, err := encodeNATSRequest("team.rpc", MethodSetSetting,
		models.SetSettingRequest{Name: models.SettingTheme, Value: "light"})
	require.NoError(t, err)
	assert.Equal(t, "team.rpc.setSetting", subject)

	var req Request
	require.NoError(t, json.Unmarshal(data, &req))
	assert.Equal(t, MethodSetSetting, req.Method)
	assert.NotEmpty(t, req.ID)
	assert.JSONEq(t, `{"name":"theme","value":"light"}`, string(req.Payload))

	method, ok := MethodFromSubject("team.rpc", subject)
	require.True(t, ok)
	assert.Equal(t, req.Method, method)
}

func TestNATSReplyDecoding(t *testing.T) {
	var settings models.Settings
	err := decodeNATSReply(MethodGetSettings, []byte(`{"id":"1","result":{"theme":"dark"}}`), &settings)
	require.NoError(t, err)
	assert.Equal(t, "dark", settings[models.SettingTheme])

	err = decodeNATSReply(MethodSetEnvProperty, []byte(`{"id":"2","error":{"code":"UNKNOWN_ENV","message":"unknown environment 'zz'"}}`), nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "UNKNOWN_ENV", remote.Code)

	err = decodeNATSReply(MethodGetSettings, []byte("not json"), &settings)
	assert.ErrorContains(t, err, "getSettings")
}

func TestNewRemoteError(t *testing.T) {
	assert.Nil(t, NewRemoteError(nil))

	remote := &RemoteError{Code: "X", Message: "y"}
	assert.Same(t, remote, NewRemoteError(remote))

	converted := NewRemoteError(errors.UnknownEnv("e1"))
	assert.Equal(t, string(errors.ErrCodeUnknownEnv), converted.Code)
}
