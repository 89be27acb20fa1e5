package remote

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNatsClientConfig_Timeouts(t *testing.T) {
	cfg := NatsClientConfig{}
	assert.Equal(t, 10*time.Second, cfg.GetTimeout())
	assert.Equal(t, 15*time.Minute, cfg.GetLoginTimeout())

	cfg = NatsClientConfig{Timeout: "2s", LoginTimeout: "1m"}
	assert.Equal(t, 2*time.Second, cfg.GetTimeout())
	assert.Equal(t, time.Minute, cfg.GetLoginTimeout())

	cfg = NatsClientConfig{Timeout: "soon"}
	assert.Equal(t, 10*time.Second, cfg.GetTimeout())
}

func TestNatsClient_Subject(t *testing.T) {
	c := NewNatsClientWithConn(nil, NatsClientConfig{})
	assert.Equal(t, "playerid.identity.users.list", c.subject("users.list"))

	c = NewNatsClientWithConn(nil, NatsClientConfig{SubjectPrefix: "launcher.auth"})
	assert.Equal(t, "launcher.auth.login.await", c.subject("login.await"))
}

func TestDecodeReply(t *testing.T) {
	t.Run("data", func(t *testing.T) {
		var s DeviceSession
		err := decodeReply([]byte(`{"data":{"verification_uri":"https://x/device","user_code":"CODE"}}`), ErrRemoteAuth, &s)
		require.NoError(t, err)
		assert.Equal(t, "CODE", s.UserCode)
	})

	t.Run("null data", func(t *testing.T) {
		var u userID
		require.NoError(t, decodeReply([]byte(`{"data":null}`), ErrRemoteService, &u))
		assert.Empty(t, u.ID)
	})

	t.Run("no output", func(t *testing.T) {
		require.NoError(t, decodeReply([]byte(`{}`), ErrRemoteService, nil))
	})

	tests := []struct {
		name string
		body string
		kind error
		want error
	}{
		{"auth timeout", `{"error":{"code":"auth_timeout"}}`, ErrRemoteAuth, ErrAuthTimeout},
		{"auth failed", `{"error":{"code":"auth_failed","message":"denied"}}`, ErrRemoteAuth, ErrRemoteAuth},
		{"other code", `{"error":{"code":"not_found"}}`, ErrRemoteService, ErrRemoteService},
		{"garbage", `<html>`, ErrRemoteService, ErrRemoteService},
		{"garbage during login", `<html>`, ErrRemoteAuth, ErrRemoteAuth},
		{"bad data", `{"data":"not an object"}`, ErrRemoteService, ErrRemoteService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u userID
			err := decodeReply([]byte(tt.body), tt.kind, &u)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// serveIdentity answers every subject under prefix with a fixed reply.
func serveIdentity(t *testing.T, nc *nats.Conn, prefix string, replies map[string]any) {
	t.Helper()
	for name, data := range replies {
		reply, err := json.Marshal(replyEnvelope{Data: mustJSON(t, data)})
		require.NoError(t, err)
		sub, err := nc.Subscribe(prefix+"."+name, func(m *nats.Msg) {
			_ = m.Respond(reply)
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = sub.Unsubscribe() })
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestNatsClient_Integration(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	prefix := "playerid.test"
	serveIdentity(t, nc, prefix, map[string]any{
		"login.begin":       DeviceSession{VerificationURI: "https://x/device", UserCode: "CODE"},
		"login.await":       notch(),
		"users.list":        []Credential{notch()},
		"users.default.get": userID{ID: notch().Profile.ID},
		"users.default.set": nil,
		"users.remove":      nil,
	})

	c := NewNatsClientWithConn(nc, NatsClientConfig{SubjectPrefix: prefix, Timeout: "2s"})
	ctx := context.Background()

	session, err := c.BeginLogin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CODE", session.UserCode)

	cred, err := c.AwaitLogin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Notch", cred.Profile.Name)

	users, err := c.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)

	id, ok, err := c.DefaultUser(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, notch().Profile.ID, id)

	require.NoError(t, c.SetDefaultUser(ctx, id))
	require.NoError(t, c.RemoveUser(ctx, id))

	// No responders on an unknown prefix.
	other := NewNatsClientWithConn(nc, NatsClientConfig{SubjectPrefix: "playerid.nobody", Timeout: "200ms"})
	_, err = other.Users(ctx)
	assert.ErrorIs(t, err, ErrRemoteService)
}
