package ws

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/feupdate"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/hub"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/packet"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/config"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/monitoring"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/id"
)

const testAuthKey = "testkey"

type fakeTransport struct {
	frames chan any
	mu     sync.Mutex
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan any, 100)}
}

func (ft *fakeTransport) WriteJson(val any) error {
	ft.frames <- val
	return nil
}

func (ft *fakeTransport) Close() {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.closed = true
}

func (ft *fakeTransport) next(t *testing.T) any {
	t.Helper()
	select {
	case frame := <-ft.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
		return nil
	}
}

func (ft *fakeTransport) nextError(t *testing.T) *packet.ErrorPacket {
	t.Helper()
	epk, ok := ft.next(t).(*packet.ErrorPacket)
	require.True(t, ok, "expected error frame")
	return epk
}

func newTestHub(t *testing.T, cfg *config.Config) *hub.Hub {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	h, err := hub.New(cfg, testAuthKey, monitoring.NewMetrics(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.Close(ctx)
	})
	return h
}

func newTestSession(t *testing.T, h *hub.Hub) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	s := NewSession(h, id.NewUUID(), ft)
	t.Cleanup(s.Close)
	return s, ft
}

func frame(t *testing.T, val any) []byte {
	t.Helper()
	data, err := sonic.Marshal(val)
	require.NoError(t, err)
	return data
}

func watchFrame(t *testing.T, sessionId, screenId string, connect bool, authKey string) []byte {
	return frame(t, map[string]any{
		"type":      packet.WatchScreenPacketStr,
		"sessionid": sessionId,
		"screenid":  screenId,
		"connect":   connect,
		"authkey":   authKey,
	})
}

func TestRunSendsHello(t *testing.T) {
	h := newTestHub(t, nil)
	s, ft := newTestSession(t, h)

	readCh := make(chan []byte)
	close(readCh)
	s.Run(readCh)

	hello, ok := ft.next(t).(*packet.HelloPacket)
	require.True(t, ok)
	assert.Equal(t, s.ClientId, hello.ClientId)
	ft.mu.Lock()
	assert.True(t, ft.closed)
	ft.mu.Unlock()
}

func TestFramesRequireAuth(t *testing.T) {
	h := newTestHub(t, nil)
	s, ft := newTestSession(t, h)

	s.ProcessMessage(frame(t, map[string]any{"type": packet.CmdInputTextPacketStr, "screenid": id.NewUUID()}))
	epk := ft.nextError(t)
	assert.Contains(t, epk.Message, "not authenticated")
	assert.Equal(t, packet.CmdInputTextPacketStr, epk.ReqType)
	assert.False(t, s.IsAuthenticated())
}

func TestWatchScreenBadAuthKey(t *testing.T) {
	h := newTestHub(t, nil)
	s, ft := newTestSession(t, h)

	s.ProcessMessage(watchFrame(t, id.NewUUID(), id.NewUUID(), false, "wrong"))
	epk := ft.nextError(t)
	assert.Contains(t, epk.Message, "invalid authkey")
	assert.False(t, s.IsAuthenticated())
	assert.False(t, h.Models.IsRegistered(s.ClientId))
}

func TestWatchScreenRejectsBadIds(t *testing.T) {
	h := newTestHub(t, nil)
	s, ft := newTestSession(t, h)

	s.ProcessMessage(watchFrame(t, "not-a-uuid", id.NewUUID(), false, testAuthKey))
	epk := ft.nextError(t)
	assert.Contains(t, epk.Message, "sessionid")
	assert.False(t, s.IsAuthenticated())
}

func TestWatchScreenConnectSnapshot(t *testing.T) {
	h := newTestHub(t, nil)
	s, ft := newTestSession(t, h)
	sessionId, screenId := id.NewUUID(), id.NewUUID()

	s.ProcessMessage(watchFrame(t, sessionId, screenId, true, testAuthKey))

	mu, ok := ft.next(t).(*feupdate.ModelUpdate)
	require.True(t, ok)
	connects := feupdate.GetUpdateItems[*feupdate.ConnectUpdate](mu)
	require.Len(t, connects, 1)
	assert.Equal(t, sessionId, connects[0].SessionId)
	assert.Equal(t, screenId, connects[0].ScreenId)

	assert.True(t, s.IsAuthenticated())
	assert.True(t, h.Models.IsRegistered(s.ClientId))
	gotSession, gotScreen := s.Watching()
	assert.Equal(t, sessionId, gotSession)
	assert.Equal(t, screenId, gotScreen)
}

func TestWatchedUpdatesAreForwarded(t *testing.T) {
	h := newTestHub(t, nil)
	s, ft := newTestSession(t, h)
	screenId := id.NewUUID()

	s.ProcessMessage(watchFrame(t, id.NewUUID(), screenId, false, testAuthKey))
	require.True(t, h.Models.IsRegistered(s.ClientId))

	sent := h.Models.SendScopedUpdate(screenId, feupdate.MakeModelUpdate(&feupdate.ScreenNumRunningCommands{ScreenId: screenId, Num: 2}))
	assert.Equal(t, 1, sent)
	assert.Equal(t, 0, h.Models.SendScopedUpdate(id.NewUUID(), feupdate.MakeModelUpdate(&feupdate.ScreenNumRunningCommands{Num: 1})))

	mu, ok := ft.next(t).(*feupdate.ModelUpdate)
	require.True(t, ok)
	items := feupdate.GetUpdateItems[*feupdate.ScreenNumRunningCommands](mu)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Num)
}

// panickyTransport panics on the first model update it is asked to write.
type panickyTransport struct {
	*fakeTransport
	panicked bool
}

func (pt *panickyTransport) WriteJson(val any) error {
	if _, ok := val.(*feupdate.ModelUpdate); ok && !pt.panicked {
		pt.panicked = true
		panic("cannot serialize update")
	}
	return pt.fakeTransport.WriteJson(val)
}

func TestForwardingSurvivesPanickingWrite(t *testing.T) {
	h := newTestHub(t, nil)
	pt := &panickyTransport{fakeTransport: newFakeTransport()}
	s := NewSession(h, id.NewUUID(), pt)
	t.Cleanup(s.Close)
	screenId := id.NewUUID()

	s.ProcessMessage(watchFrame(t, id.NewUUID(), screenId, false, testAuthKey))
	require.True(t, h.Models.IsRegistered(s.ClientId))

	assert.Equal(t, 1, h.Models.SendScopedUpdate(screenId, feupdate.MakeModelUpdate(&feupdate.ScreenNumRunningCommands{ScreenId: screenId, Num: 1})))
	assert.Equal(t, 1, h.Models.SendScopedUpdate(screenId, feupdate.MakeModelUpdate(&feupdate.ScreenNumRunningCommands{ScreenId: screenId, Num: 2})))

	mu, ok := pt.next(t).(*feupdate.ModelUpdate)
	require.True(t, ok)
	items := feupdate.GetUpdateItems[*feupdate.ScreenNumRunningCommands](mu)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Num)
	assert.True(t, h.Models.IsRegistered(s.ClientId))
}

func TestUnwatchAndClose(t *testing.T) {
	h := newTestHub(t, nil)
	s, _ := newTestSession(t, h)

	s.ProcessMessage(watchFrame(t, id.NewUUID(), id.NewUUID(), false, testAuthKey))
	require.True(t, h.Models.IsRegistered(s.ClientId))

	s.ProcessMessage(watchFrame(t, "", "", false, testAuthKey))
	assert.False(t, h.Models.IsRegistered(s.ClientId))
	assert.True(t, s.IsAuthenticated())

	s.ProcessMessage(watchFrame(t, id.NewUUID(), id.NewUUID(), false, testAuthKey))
	require.True(t, h.Models.IsRegistered(s.ClientId))
	s.Close()
	assert.False(t, h.Models.IsRegistered(s.ClientId))
}

func TestCmdInputText(t *testing.T) {
	h := newTestHub(t, nil)
	s, _ := newTestSession(t, h)
	screenId := id.NewUUID()

	s.ProcessMessage(watchFrame(t, id.NewUUID(), screenId, false, testAuthKey))
	s.ProcessMessage(frame(t, map[string]any{
		"type":     packet.CmdInputTextPacketStr,
		"seqnum":   3,
		"screenid": screenId,
		"text":     map[string]any{"str": "echo hi", "pos": 4},
	}))

	state := h.Screens.Get(screenId)
	require.NotNil(t, state)
	assert.Equal(t, "echo hi", state.CmdInputText.Str)
	assert.Equal(t, 3, state.CmdInputSeqNum)
}

func TestFeInputValidation(t *testing.T) {
	h := newTestHub(t, nil)
	s, ft := newTestSession(t, h)
	s.ProcessMessage(watchFrame(t, "", "", false, testAuthKey))

	tests := []struct {
		name  string
		frame map[string]any
		want  string
	}{
		{
			name:  "owned remote",
			frame: map[string]any{"type": "feinput", "remote": map[string]any{"ownerid": "u1", "remoteid": "r1"}},
			want:  "owner",
		},
		{
			name:  "missing remote",
			frame: map[string]any{"type": "feinput", "remote": map[string]any{}},
			want:  "remoteid is required",
		},
		{
			name:  "bad command key",
			frame: map[string]any{"type": "feinput", "ck": "nope", "remote": map[string]any{"remoteid": "r1"}},
			want:  "command key",
		},
		{
			name: "oversized input",
			frame: map[string]any{
				"type":        "feinput",
				"remote":      map[string]any{"remoteid": "r1"},
				"inputdata64": base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 1001))),
			},
			want: "input too large",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.ProcessMessage(frame(t, tt.frame))
			epk := ft.nextError(t)
			assert.Contains(t, epk.Message, tt.want)
			assert.Equal(t, packet.FeInputPacketStr, epk.ReqType)
		})
	}
}

func TestInputRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Input.RatePerSecond = 0.001
	cfg.Input.Burst = 1
	h := newTestHub(t, cfg)
	s, ft := newTestSession(t, h)
	s.ProcessMessage(watchFrame(t, "", "", false, testAuthKey))

	input := frame(t, map[string]any{"type": "remoteinput", "remoteid": "missing"})
	s.ProcessMessage(input)
	s.ProcessMessage(input)

	epk := ft.nextError(t)
	assert.Contains(t, epk.Message, "rate exceeded")
}

func TestMalformedFrame(t *testing.T) {
	h := newTestHub(t, nil)
	s, ft := newTestSession(t, h)

	s.ProcessMessage([]byte(`{"type":"bogus"}`))
	epk := ft.nextError(t)
	assert.Equal(t, "bogus", epk.ReqType)
	assert.Contains(t, epk.Message, "unknown frame type")

	s.ProcessMessage([]byte(`not json`))
	epk = ft.nextError(t)
	assert.Contains(t, epk.Message, "malformed")
}

func TestUserInputResponseRoundTrip(t *testing.T) {
	h := newTestHub(t, nil)
	s, ft := newTestSession(t, h)
	s.ProcessMessage(watchFrame(t, id.NewUUID(), id.NewUUID(), false, testAuthKey))

	type result struct {
		resp any
		err  error
	}
	done := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := h.RPC.DoRequest(ctx, s.ClientId, &feupdate.UserInputRequest{QueryText: "continue?", ResponseType: "confirm"})
		done <- result{resp: resp, err: err}
	}()

	mu, ok := ft.next(t).(*feupdate.ModelUpdate)
	require.True(t, ok)
	reqs := feupdate.GetUpdateItems[*feupdate.UserInputRequest](mu)
	require.Len(t, reqs, 1)
	assert.Positive(t, reqs[0].TimeoutMs)

	s.ProcessMessage(frame(t, map[string]any{
		"type":      feupdate.UserInputResponseStr,
		"requestid": reqs[0].RequestId,
		"confirm":   true,
	}))

	select {
	case res := <-done:
		require.NoError(t, res.err)
		resp, ok := res.resp.(*packet.UserInputResponsePacket)
		require.True(t, ok)
		assert.True(t, resp.Confirm)
	case <-time.After(2 * time.Second):
		t.Fatal("rpc did not complete")
	}
}

func TestUserInputResponseBadRequestId(t *testing.T) {
	h := newTestHub(t, nil)
	s, ft := newTestSession(t, h)
	s.ProcessMessage(watchFrame(t, "", "", false, testAuthKey))

	s.ProcessMessage(frame(t, map[string]any{
		"type":      feupdate.UserInputResponseStr,
		"requestid": "not-a-request",
	}))
	epk := ft.nextError(t)
	assert.Contains(t, epk.Message, "invalid requestid")
}

func TestHandleConnection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestHub(t, nil)
	router := gin.New()
	router.GET("/ws", NewHandler(h, nil, zap.NewNop()).HandleConnection)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws?clientid=bad")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	clientId := id.NewUUID()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?clientid=" + clientId
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello["type"])
	assert.Equal(t, clientId, hello["clientid"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"cmdinputtext","screenid":"x"}`)))
	var errFrame map[string]any
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, "error", errFrame["type"])
	assert.Contains(t, errFrame["message"], "not authenticated")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, watchFrame(t, id.NewUUID(), id.NewUUID(), true, testAuthKey)))
	var snapshot []map[string]any
	require.NoError(t, conn.ReadJSON(&snapshot))
	require.Len(t, snapshot, 1)
	assert.Contains(t, snapshot[0], feupdate.ConnectUpdateStr)
}
