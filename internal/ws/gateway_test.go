package ws_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"poker-service/internal/config"
	"poker-service/internal/holdem"
	"poker-service/internal/presence"
	"poker-service/internal/protocol"
	"poker-service/internal/service/poker"
	"poker-service/internal/ws"
	pkgAuth "poker-service/pkg/auth"
	appErr "poker-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type harness struct {
	url    string
	signer *pkgAuth.Signer
	reg    *presence.Registry
	gw     *ws.Gateway
}

func newHarness(t *testing.T, tables ws.TableReader) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default().Protocol
	signer := pkgAuth.NewSigner("test-secret", time.Hour, "test")
	reg := presence.NewRegistry(0)
	gw := ws.NewGateway(cfg, signer, reg, tables)

	r := gin.New()
	r.GET("/ws", gw.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		gw.Shutdown()
		srv.Close()
	})
	return &harness{
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		signer: signer,
		reg:    reg,
		gw:     gw,
	}
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
	seq  int
}

func (h *harness) dial(t *testing.T) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

// session dials, says hello and authenticates as userID.
func (h *harness) session(t *testing.T, userID string) *client {
	t.Helper()
	c := h.dial(t)
	c.hello()
	token, err := h.signer.GenerateToken(userID)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	c.send(protocol.TypeAuth, protocol.Auth{Token: token})
	c.expect(protocol.TypeAuthOk)
	return c
}

func (c *client) send(typ string, payload any) string {
	c.t.Helper()
	c.seq++
	reqID := fmt.Sprintf("%s-%d", typ, c.seq)
	frame, err := protocol.Encode("1.0", typ, reqID, payload, time.Now())
	if err != nil {
		c.t.Fatalf("encode: %v", err)
	}
	c.sendRaw(string(frame))
	return reqID
}

func (c *client) sendRaw(frame string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *client) read() protocol.Envelope {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.t.Fatalf("decode %s: %v", data, err)
	}
	return env
}

func (c *client) expect(typ string) protocol.Envelope {
	c.t.Helper()
	env := c.read()
	if env.Type != typ {
		c.t.Fatalf("expected %s, got %s %s", typ, env.Type, env.Payload)
	}
	return env
}

func (c *client) expectError(code string) {
	c.t.Helper()
	env := c.expect(protocol.TypeError)
	var e protocol.Error
	if err := json.Unmarshal(env.Payload, &e); err != nil {
		c.t.Fatalf("decode error payload: %v", err)
	}
	if e.Code != code {
		c.t.Fatalf("expected error %s, got %s (%s)", code, e.Code, e.Message)
	}
}

// expectClose skips any frames and asserts the close code.
func (c *client) expectClose(code int) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, code) {
			c.t.Fatalf("expected close %d, got %v", code, err)
		}
		return
	}
}

func (c *client) hello() protocol.HelloAck {
	c.t.Helper()
	c.send(protocol.TypeHello, protocol.Hello{SupportedVersions: []string{"1.0"}})
	env := c.expect(protocol.TypeHelloAck)
	var ack protocol.HelloAck
	if err := json.Unmarshal(env.Payload, &ack); err != nil {
		c.t.Fatalf("decode helloAck: %v", err)
	}
	return ack
}

func (c *client) tableState(env protocol.Envelope) presence.TableState {
	c.t.Helper()
	var st presence.TableState
	if err := json.Unmarshal(env.Payload, &st); err != nil {
		c.t.Fatalf("decode table_state: %v", err)
	}
	return st
}

func userIDs(st presence.TableState) []string {
	out := make([]string, 0, len(st.Members))
	for _, m := range st.Members {
		out = append(out, m.UserID)
	}
	return out
}

func sameUsers(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestHelloNegotiatesVersion(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t)

	reqID := c.send(protocol.TypeHello, protocol.Hello{SupportedVersions: []string{"0.9", "1.0"}})
	env := c.expect(protocol.TypeHelloAck)
	if env.RequestID != reqID {
		t.Fatalf("expected requestId %s echoed, got %s", reqID, env.RequestID)
	}
	var ack protocol.HelloAck
	if err := json.Unmarshal(env.Payload, &ack); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ack.Version != "1.0" || ack.SessionID == "" || ack.HeartbeatMs != 25000 {
		t.Fatalf("unexpected helloAck %+v", ack)
	}
}

func TestUnsupportedVersionClosesWithProtocolError(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t)

	c.send(protocol.TypeHello, protocol.Hello{SupportedVersions: []string{"9.9"}})
	c.expectClose(websocket.CloseProtocolError)
}

func TestHelloRequiredFirst(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t)

	c.send(protocol.TypeProtectedEcho, map[string]any{"x": 1})
	c.expectError(appErr.ErrHelloRequired.Code)

	c.hello()
}

func TestMalformedFramesCloseAtThreshold(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t)
	c.hello()

	c.sendRaw(`{not json`)
	c.expectError(appErr.ErrInvalidEnvelope.Code)
	c.sendRaw(`[]`)
	c.expectError(appErr.ErrInvalidEnvelope.Code)

	c.sendRaw(`{"type":`)
	c.expectClose(websocket.CloseProtocolError)
}

func TestValidFrameResetsViolationCount(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t)
	c.hello()

	for round := 0; round < 2; round++ {
		c.sendRaw(`{oops`)
		c.expectError(appErr.ErrInvalidEnvelope.Code)
		c.sendRaw(`{oops`)
		c.expectError(appErr.ErrInvalidEnvelope.Code)
		c.hello()
	}
}

func TestOversizedFrameClosesWithMessageTooBig(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t)
	c.hello()

	big := `{"type":"protected_echo","payload":{"blob":"` + strings.Repeat("x", 40*1024) + `"}}`
	c.sendRaw(big)
	c.expectClose(websocket.CloseMessageTooBig)
}

func TestProtectedMessagesNeedAuth(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t)
	c.hello()

	c.send(protocol.TypeProtectedEcho, map[string]any{"n": 1})
	c.expectError(appErr.ErrAuthRequired.Code)

	c.send(protocol.TypeAuth, protocol.Auth{Token: "garbage"})
	env := c.expect(protocol.TypeAuthError)
	var ae protocol.AuthError
	_ = json.Unmarshal(env.Payload, &ae)
	if ae.Code != appErr.ErrAuthInvalid.Code {
		t.Fatalf("expected auth_invalid, got %+v", ae)
	}

	token, _ := h.signer.GenerateToken("alice")
	c.send(protocol.TypeAuth, protocol.Auth{Token: token})
	env = c.expect(protocol.TypeAuthOk)
	var ok protocol.AuthOk
	_ = json.Unmarshal(env.Payload, &ok)
	if ok.UserID != "alice" || ok.SessionID == "" {
		t.Fatalf("unexpected authOk %+v", ok)
	}

	c.send(protocol.TypeProtectedEcho, map[string]any{"n": 1})
	env = c.expect(protocol.TypeProtectedEcho)
	var echo protocol.Echo
	_ = json.Unmarshal(env.Payload, &echo)
	if echo.UserID != "alice" || echo.Payload["n"] != float64(1) {
		t.Fatalf("unexpected echo %+v", echo)
	}

	// authentication is monotonic
	other, _ := h.signer.GenerateToken("bob")
	c.send(protocol.TypeAuth, protocol.Auth{Token: other})
	c.expect(protocol.TypeAuthError)
	c.send(protocol.TypeProtectedEcho, nil)
	env = c.expect(protocol.TypeProtectedEcho)
	_ = json.Unmarshal(env.Payload, &echo)
	if echo.UserID != "alice" {
		t.Fatalf("session rebound to %s", echo.UserID)
	}
}

func TestDisconnectRemovesMemberImmediatelyWithZeroTTL(t *testing.T) {
	h := newHarness(t, nil)
	a := h.session(t, "alice")
	b := h.session(t, "bob")

	a.send(protocol.TypeTableJoin, protocol.TableRef{TableID: "T"})
	if st := a.tableState(a.expect(protocol.TypeTableState)); !sameUsers(userIDs(st), "alice") {
		t.Fatalf("unexpected members %v", userIDs(st))
	}

	b.send(protocol.TypeTableJoin, protocol.TableRef{TableID: "T"})
	if st := b.tableState(b.expect(protocol.TypeTableState)); !sameUsers(userIDs(st), "alice", "bob") {
		t.Fatalf("bob expected [alice bob], got %v", userIDs(st))
	}
	if st := a.tableState(a.expect(protocol.TypeTableState)); !sameUsers(userIDs(st), "alice", "bob") {
		t.Fatalf("alice expected push [alice bob], got %v", userIDs(st))
	}

	a.conn.Close()
	if st := b.tableState(b.expect(protocol.TypeTableState)); !sameUsers(userIDs(st), "bob") {
		t.Fatalf("bob expected push [bob], got %v", userIDs(st))
	}
}

func TestDuplicateJoinDoesNotBroadcast(t *testing.T) {
	h := newHarness(t, nil)
	a := h.session(t, "alice")
	b := h.session(t, "bob")

	b.send(protocol.TypeTableJoin, protocol.TableRef{TableID: "T"})
	b.expect(protocol.TypeTableState)
	a.send(protocol.TypeTableJoin, protocol.TableRef{TableID: "T"})
	a.expect(protocol.TypeTableState)
	b.expect(protocol.TypeTableState)

	a.send(protocol.TypeTableJoin, protocol.TableRef{TableID: "T"})
	if st := a.tableState(a.expect(protocol.TypeTableState)); len(st.Members) != 2 {
		t.Fatalf("duplicate join changed membership: %v", userIDs(st))
	}

	// the next frame bob sees must be his own echo, not a push
	b.send(protocol.TypeProtectedEcho, nil)
	b.expect(protocol.TypeProtectedEcho)
}

func TestLeaveAndSubscribeErrors(t *testing.T) {
	h := newHarness(t, nil)
	a := h.session(t, "alice")

	a.send(protocol.TypeTableLeave, protocol.TableRef{TableID: "T"})
	a.expectError(appErr.ErrInvalidCommand.Code)
	a.send(protocol.TypeTableLeave, nil)
	a.expectError(appErr.ErrInvalidCommand.Code)
	a.send(protocol.TypeTableJoin, map[string]any{})
	a.expectError(appErr.ErrInvalidCommand.Code)

	// command errors are not protocol violations
	a.send(protocol.TypeProtectedEcho, nil)
	a.expect(protocol.TypeProtectedEcho)

	a.send(protocol.TypeTableStateSub, protocol.TableRef{TableID: "T"})
	if st := a.tableState(a.expect(protocol.TypeTableState)); len(st.Members) != 0 {
		t.Fatalf("subscribe must not join, got %v", userIDs(st))
	}
	if h.reg.IsMember("T", "alice") {
		t.Fatal("alice became a member through table_state_sub")
	}

	a.send(protocol.TypeTableJoin, protocol.TableRef{TableID: "T"})
	a.expect(protocol.TypeTableState)
	a.send(protocol.TypeTableLeave, protocol.TableRef{TableID: "T"})
	if st := a.tableState(a.expect(protocol.TypeTableState)); len(st.Members) != 0 {
		t.Fatalf("expected empty membership after leave, got %v", userIDs(st))
	}
}

type fakeTables struct{}

func (fakeTables) GetTable(_ context.Context, userID, tableID string) (poker.GetTableResponse, error) {
	if tableID != "P" {
		return poker.GetTableResponse{}, appErr.ErrTableNotFound
	}
	return poker.GetTableResponse{
		State:       poker.StateView{Version: 7, Phase: holdem.PhasePreflop},
		MyHoleCards: []holdem.Card{holdem.NewCard(12, 3), holdem.NewCard(11, 3)},
	}, nil
}

func TestResyncIncludesPrivateCards(t *testing.T) {
	h := newHarness(t, fakeTables{})
	a := h.session(t, "alice")

	a.send(protocol.TypeResync, protocol.TableRef{TableID: "P"})
	env := a.expect(protocol.TypeTableState)
	var out struct {
		TableID     string   `json:"tableId"`
		Version     *int64   `json:"version"`
		MyHoleCards []string `json:"myHoleCards"`
	}
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.TableID != "P" || out.Version == nil || *out.Version != 7 {
		t.Fatalf("unexpected resync %s", env.Payload)
	}
	if len(out.MyHoleCards) != 2 || out.MyHoleCards[0] != "As" {
		t.Fatalf("expected hole cards, got %v", out.MyHoleCards)
	}

	// presence-only tables resync from membership alone
	a.send(protocol.TypeResync, protocol.TableRef{TableID: "lobby"})
	st := a.tableState(a.expect(protocol.TypeTableState))
	if st.TableID != "lobby" || st.Version != nil {
		t.Fatalf("unexpected presence-only resync %+v", st)
	}
}

func TestShutdownClosesSessions(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t)
	c.hello()

	if h.gw.Sessions() != 1 {
		t.Fatalf("expected one live session, got %d", h.gw.Sessions())
	}
	h.gw.Shutdown()
	c.expectClose(websocket.CloseGoingAway)

	deadline := time.Now().Add(2 * time.Second)
	for h.gw.Sessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session still registered after shutdown")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
