package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// ─── Handshake Tests ─────────────────────────────────────────────────────────

func TestWebSocket_NoTicket(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/ws", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestWebSocket_InvalidTicket(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/ws?ticket=bogus", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

// ─── Integration Tests ───────────────────────────────────────────────────────

// waitForServer polls the health endpoint until the listener answers.
func waitForServer(t *testing.T, baseURL string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("server never came up")
}

// startServer runs the full server on a fixed port and tears it down with
// the test.
func startServer(t *testing.T, env *testEnv, port int) string {
	t.Helper()

	env.srv.cfg.Port = port
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("starting server: %v", err)
	}
	t.Cleanup(func() {
		if err := env.srv.Close(); err != nil {
			t.Errorf("closing server: %v", err)
		}
	})

	base := fmt.Sprintf("http://127.0.0.1:%d/api/v1", port)
	waitForServer(t, base)
	return base
}

// obtainTicket logs in over the wire and requests a WebSocket ticket.
func obtainTicket(t *testing.T, baseURL string) string {
	t.Helper()

	loginBody := fmt.Sprintf(`{"username":"admin","password":%q}`, testPassword)
	resp, err := http.Post(baseURL+"/auth/login", "application/json", strings.NewReader(loginBody))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var pair tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/auth/ws-ticket", nil)
	if err != nil {
		t.Fatalf("building ticket request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	ticketResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ticket request: %v", err)
	}
	defer ticketResp.Body.Close()
	if ticketResp.StatusCode != http.StatusOK {
		t.Fatalf("ticket status = %d, want 200", ticketResp.StatusCode)
	}

	var body struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(ticketResp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding ticket response: %v", err)
	}
	if body.Ticket == "" {
		t.Fatal("empty ticket")
	}
	return body.Ticket
}

func readWSMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return msg
}

func TestServer_WebSocketSession(t *testing.T) {
	env := newTestEnv(t)
	base := startServer(t, env, 19080)

	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("health check after start: %v", err)
	}

	ticket := obtainTicket(t, base)
	wsURL := "ws://127.0.0.1:19080/api/v1/ws?ticket=" + ticket
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialling websocket: %v", err)
	}
	defer conn.Close()

	// Subscribe to state changes.
	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{ChannelDisplayState}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("writing subscribe: %v", err)
	}

	resp := readWSMessage(t, conn)
	if resp.Type != WSTypeResponse {
		t.Fatalf("type = %q, want response", resp.Type)
	}
	if resp.ID != "1" {
		t.Errorf("id = %q, want the correlating 1", resp.ID)
	}
	payload := resp.Payload.(map[string]any)
	subscribed := payload["subscribed"].([]any)
	if len(subscribed) != 1 || subscribed[0] != ChannelDisplayState {
		t.Errorf("subscribed = %v, want [%s]", subscribed, ChannelDisplayState)
	}

	// Broadcasts on the subscribed channel reach the session.
	env.srv.hub.Broadcast(ChannelDisplayState, map[string]any{"display_id": "d1"})
	event := readWSMessage(t, conn)
	if event.Type != WSTypeEvent {
		t.Errorf("type = %q, want event", event.Type)
	}
	if event.EventType != ChannelDisplayState {
		t.Errorf("event_type = %q, want %s", event.EventType, ChannelDisplayState)
	}

	// Application-level ping round-trip.
	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "2"}); err != nil {
		t.Fatalf("writing ping: %v", err)
	}
	pong := readWSMessage(t, conn)
	if pong.Type != WSTypePong || pong.ID != "2" {
		t.Errorf("got %q/%q, want pong/2", pong.Type, pong.ID)
	}

	// Unsubscribed channels stay silent: a broadcast on another channel
	// must not arrive before a subsequent marker event.
	env.srv.hub.Broadcast(ChannelPresetApplied, map[string]any{"preset_id": "p1"})
	env.srv.hub.Broadcast(ChannelDisplayState, map[string]any{"display_id": "marker"})
	next := readWSMessage(t, conn)
	if next.EventType != ChannelDisplayState {
		t.Errorf("event_type = %q, leaked an unsubscribed channel", next.EventType)
	}
}

func TestServer_WebSocketTicketReuse(t *testing.T) {
	env := newTestEnv(t)
	base := startServer(t, env, 19081)

	ticket := obtainTicket(t, base)
	wsURL := "ws://127.0.0.1:19081/api/v1/ws?ticket=" + ticket

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	conn.Close()

	// The ticket was consumed by the first handshake.
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("second dial succeeded with a consumed ticket")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("second dial response = %+v, want 401", resp)
	}
}

func TestServer_UnknownWSMessageType(t *testing.T) {
	env := newTestEnv(t)
	base := startServer(t, env, 19082)

	ticket := obtainTicket(t, base)
	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:19082/api/v1/ws?ticket="+ticket, nil)
	if err != nil {
		t.Fatalf("dialling websocket: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: "telepathy", ID: "9"}); err != nil {
		t.Fatalf("writing frame: %v", err)
	}

	resp := readWSMessage(t, conn)
	if resp.Type != WSTypeError {
		t.Errorf("type = %q, want error", resp.Type)
	}
	if resp.ID != "9" {
		t.Errorf("id = %q, want the correlating 9", resp.ID)
	}
}

func TestServer_WebSocketUnsubscribe(t *testing.T) {
	env := newTestEnv(t)
	base := startServer(t, env, 19083)

	ticket := obtainTicket(t, base)
	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:19083/api/v1/ws?ticket="+ticket, nil)
	if err != nil {
		t.Fatalf("dialling websocket: %v", err)
	}
	defer conn.Close()

	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{ChannelDisplayState, ChannelPresetApplied}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("writing subscribe: %v", err)
	}
	readWSMessage(t, conn)

	unsub := WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "2",
		Payload: WSSubscribePayload{Channels: []string{ChannelDisplayState}},
	}
	if err := conn.WriteJSON(unsub); err != nil {
		t.Fatalf("writing unsubscribe: %v", err)
	}
	resp := readWSMessage(t, conn)
	if resp.Type != WSTypeResponse {
		t.Fatalf("type = %q, want response", resp.Type)
	}

	// Only the remaining subscription delivers.
	env.srv.hub.Broadcast(ChannelDisplayState, map[string]any{"display_id": "d1"})
	env.srv.hub.Broadcast(ChannelPresetApplied, map[string]any{"preset_id": "p1"})
	event := readWSMessage(t, conn)
	if event.EventType != ChannelPresetApplied {
		t.Errorf("event_type = %q, want %s after unsubscribing", event.EventType, ChannelPresetApplied)
	}
}
