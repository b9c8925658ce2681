package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/relaychat-server/internal/auth"
	"github.com/vovakirdan/relaychat-server/internal/config"
	"github.com/vovakirdan/relaychat-server/internal/core"
	"github.com/vovakirdan/relaychat-server/internal/proto"
	"github.com/vovakirdan/relaychat-server/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	store *sqlite.SQLiteStore
	auth  *auth.Service
	hub   *core.Hub
	stop  context.CancelFunc
}

type testUser struct {
	id    int64
	token string
}

// wireOutbound keeps data raw so tests can decode it per event.
type wireOutbound struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Ref     string          `json:"ref"`
	Data    json.RawMessage `json:"data"`
	Error   *proto.Error    `json:"error"`
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.PingInterval = 0
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})
	hub := core.NewHub(st, st, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := NewServer(hub, authService, st, st, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)

	t.Cleanup(func() {
		cancel()
		ts.Close()
		_ = st.Close()
	})

	return &testEnv{ts: ts, store: st, auth: authService, hub: hub, stop: cancel}
}

func (e *testEnv) register(t *testing.T, username string) testUser {
	t.Helper()

	token, err := e.auth.Register(context.Background(), username, strings.ToUpper(username), "password123")
	require.NoError(t, err)
	user, err := e.store.GetUserByUsername(context.Background(), username)
	require.NoError(t, err)
	return testUser{id: user.ID, token: token}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.ts.Config.Handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// dial connects with a bearer header and consumes the ready event.
func (e *testEnv) dial(ctx context.Context, t *testing.T, token string) (*websocket.Conn, proto.Ready) {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })

	out := readOutbound(ctx, t, conn)
	require.Equal(t, proto.OutboundTypeEvent, out.Type)
	require.Equal(t, proto.EventReady, out.Event)

	var ready proto.Ready
	require.NoError(t, json.Unmarshal(out.Data, &ready))
	return conn, ready
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ, ref string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Ref: ref, Data: payload}))
}

func readOutbound(ctx context.Context, t *testing.T, conn *websocket.Conn) wireOutbound {
	t.Helper()

	var out wireOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	return out
}

// readUntil skips frames until one matches.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, match func(wireOutbound) bool) wireOutbound {
	t.Helper()

	for {
		out := readOutbound(ctx, t, conn)
		if match(out) {
			return out
		}
	}
}

func isEvent(name, channel string) func(wireOutbound) bool {
	return func(out wireOutbound) bool {
		return out.Type == proto.OutboundTypeEvent && out.Event == name && (channel == "" || out.Channel == channel)
	}
}

func hasRef(ref string) func(wireOutbound) bool {
	return func(out wireOutbound) bool {
		return out.Ref == ref && (out.Type == proto.OutboundTypeAck || out.Type == proto.OutboundTypeError)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
