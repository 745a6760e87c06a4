package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"math-game-service/internal/app"
	"math-game-service/internal/domain"
	"math-game-service/internal/generator"
	"math-game-service/internal/infra/memory"
	"math-game-service/internal/life"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	users := memory.NewUserStore()
	now := time.Now()
	users.Put(domain.User{ID: "u1", Name: "Alice", Life: life.MaxLife, LastAdjusted: now})
	users.Put(domain.User{ID: "u2", Name: "Bob", Life: life.MaxLife, LastAdjusted: now})

	lives := life.NewService(users, life.DefaultUnit)
	service := app.NewRoomService(memory.NewRoomStore(), users, lives, nil, generator.New())
	wsHandler := NewWSHandler(service, lives, users)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) map[string]any {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != expect {
		t.Fatalf("expected type %s, got %s (payload %s)", expect, msg.Type, msg.Payload)
	}
	payload := map[string]any{}
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			t.Fatalf("decode %s payload: %v", msg.Type, err)
		}
	}
	return payload
}

func TestWebSocketGameFlow(t *testing.T) {
	server := newTestServer(t)
	alice := dial(t, server, "u1")
	bob := dial(t, server, "u2")

	send(t, alice, "createRoom", map[string]any{"capacity": 2, "tier": "normal"})
	created := readNext(t, alice, "roomCreated")
	roomID, _ := created["roomId"].(string)
	if roomID == "" {
		t.Fatalf("expected roomId in %v", created)
	}

	send(t, bob, "joinRoom", map[string]any{"roomId": roomID})
	readNext(t, bob, "joined")

	send(t, alice, "startGame", map[string]any{"roomId": roomID})
	started := readNext(t, alice, "started")
	if started["started"] != true {
		t.Fatalf("expected started=true, got %v", started)
	}

	// Both members fetch the first question and must see the same one.
	send(t, alice, "nextQuestion", map[string]any{"roomId": roomID, "sequence": 1})
	q1 := readNext(t, alice, "question")
	send(t, bob, "nextQuestion", map[string]any{"roomId": roomID, "sequence": 1})
	q2 := readNext(t, bob, "question")
	if q1["questionId"] != q2["questionId"] {
		t.Fatalf("members saw different questions: %v vs %v", q1["questionId"], q2["questionId"])
	}
	correctID, _ := q1["currentCorrectVariantId"].(string)
	if correctID == "" {
		t.Fatalf("expected correct variant id in %v", q1)
	}

	// Alice answers correctly and advances; the response carries her
	// running score and the correct variant of the question she answered.
	send(t, alice, "nextQuestion", map[string]any{"roomId": roomID, "sequence": 2, "previousVariantId": correctID})
	q3 := readNext(t, alice, "question")
	if q3["beforeCorrectVariantId"] != correctID {
		t.Fatalf("expected beforeCorrectVariantId=%s, got %v", correctID, q3["beforeCorrectVariantId"])
	}
	if score, _ := q3["runningScore"].(float64); score <= 0 {
		t.Fatalf("expected positive running score, got %v", q3["runningScore"])
	}

	send(t, alice, "reportEnd", map[string]any{"roomId": roomID})
	report := readNext(t, alice, "gameEnded")
	entries, _ := report["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %v", report)
	}
	send(t, bob, "reportEnd", map[string]any{"roomId": roomID})
	readNext(t, bob, "gameEnded")

	// The last report tears the room down.
	send(t, alice, "roomDetails", map[string]any{"roomId": roomID})
	errPayload := readNext(t, alice, "error")
	if errPayload["kind"] != "notFound" {
		t.Fatalf("expected notFound after finalization, got %v", errPayload)
	}
}

func TestWebSocketLifeAndLeaderboard(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "u1")

	send(t, conn, "getLife", map[string]any{})
	lifeMsg := readNext(t, conn, "life")
	if lifeMsg["life"] != float64(life.MaxLife) {
		t.Fatalf("expected full life, got %v", lifeMsg)
	}

	send(t, conn, "topUsers", map[string]any{"count": 5})
	readNext(t, conn, "topUsers")
}

func TestWebSocketErrorMapping(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "u1")

	send(t, conn, "joinRoom", map[string]any{"roomId": "missing"})
	errPayload := readNext(t, conn, "error")
	if errPayload["kind"] != "notFound" {
		t.Fatalf("expected notFound, got %v", errPayload)
	}

	send(t, conn, "createRoom", map[string]any{"capacity": 1, "tier": "easy"})
	errPayload = readNext(t, conn, "error")
	if errPayload["kind"] != "invalid" {
		t.Fatalf("expected invalid, got %v", errPayload)
	}

	send(t, conn, "bogus", map[string]any{})
	errPayload = readNext(t, conn, "error")
	if errPayload["kind"] != "invalid" {
		t.Fatalf("expected invalid for unknown type, got %v", errPayload)
	}
}

// With a full send buffer and a dead writer, enqueue must give up
// instead of blocking the read loop forever.
func TestEnqueueGivesUpWhenWriterExits(t *testing.T) {
	send := make(chan outboundMessage, 1)
	send <- outboundMessage{Type: "life"}
	writerDone := make(chan struct{})
	close(writerDone)

	if enqueue(send, writerDone, outboundMessage{Type: "life"}) {
		t.Fatalf("enqueue must report failure after writer exit")
	}

	<-send
	writerAlive := make(chan struct{})
	if !enqueue(send, writerAlive, outboundMessage{Type: "life"}) {
		t.Fatalf("enqueue must succeed while the writer runs")
	}
}

func TestWebSocketRequiresUserID(t *testing.T) {
	server := newTestServer(t)
	u := "ws" + server.URL[len("http"):] + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure without userId")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", resp)
	}
}
