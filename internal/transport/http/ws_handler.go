package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"math-game-service/internal/app"
	"math-game-service/internal/domain"
	"math-game-service/internal/life"
)

// WSHandler exposes the game operations over one websocket per player.
type WSHandler struct {
	rooms       *app.RoomService
	lives       *life.Service
	leaderboard app.LeaderboardStore
	upgrader    websocket.Upgrader
}

func NewWSHandler(rooms *app.RoomService, lives *life.Service, leaderboard app.LeaderboardStore) *WSHandler {
	return &WSHandler{
		rooms:       rooms,
		lives:       lives,
		leaderboard: leaderboard,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type createRoomPayload struct {
	Capacity int    `json:"capacity"`
	Tier     string `json:"tier"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type nextQuestionPayload struct {
	RoomID            string `json:"roomId"`
	Sequence          int    `json:"sequence"`
	PreviousVariantID string `json:"previousVariantId"`
}

type rematchPayload struct {
	Capacity int    `json:"capacity"`
	Tier     string `json:"tier"`
	Token    string `json:"token"`
}

type listRoomsPayload struct {
	Page  int `json:"page"`
	Count int `json:"count"`
}

type countPayload struct {
	Count int `json:"count"`
}

type lifePayload struct {
	Life int `json:"life"`
}

type startedPayload struct {
	Started bool `json:"started"`
}

type okPayload struct {
	OK bool `json:"ok"`
}

type createdRoomPayload struct {
	RoomID   string `json:"roomId"`
	Tier     string `json:"tier"`
	Capacity int    `json:"capacity"`
}

// ServeWS upgrades the request and serves game messages until the
// client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !enqueue(send, writerDone, h.dispatch(r, userID, inbound)) {
			break
		}
	}

	close(send)
	<-writerDone
}

// enqueue hands a reply to the writer goroutine, giving up when the
// writer already exited on a write error so the read loop never blocks
// on a full send buffer.
func enqueue(send chan<- outboundMessage, writerDone <-chan struct{}, msg outboundMessage) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func (h *WSHandler) dispatch(r *http.Request, userID string, inbound inboundMessage) outboundMessage {
	ctx := r.Context()

	switch inbound.Type {
	case "createRoom":
		var p createRoomPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errorMessage("invalid", "invalid createRoom payload")
		}
		tier, err := domain.ParseTier(p.Tier)
		if err != nil {
			return errorMessage("invalid", err.Error())
		}
		room, err := h.rooms.CreateRoom(ctx, userID, p.Capacity, tier)
		if err != nil {
			return errorFor(err)
		}
		return outboundMessage{Type: "roomCreated", Payload: createdRoomPayload{
			RoomID: room.ID, Tier: room.Tier.String(), Capacity: room.Capacity,
		}}

	case "joinRoom":
		var p roomPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errorMessage("invalid", "invalid joinRoom payload")
		}
		if err := h.rooms.JoinRoom(ctx, userID, p.RoomID); err != nil {
			return errorFor(err)
		}
		return outboundMessage{Type: "joined", Payload: okPayload{OK: true}}

	case "leaveRoom":
		var p roomPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errorMessage("invalid", "invalid leaveRoom payload")
		}
		if err := h.rooms.LeaveRoom(ctx, userID, p.RoomID); err != nil {
			return errorFor(err)
		}
		return outboundMessage{Type: "left", Payload: okPayload{OK: true}}

	case "startGame":
		var p roomPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errorMessage("invalid", "invalid startGame payload")
		}
		started, err := h.rooms.StartGame(ctx, userID, p.RoomID)
		if err != nil {
			return errorFor(err)
		}
		return outboundMessage{Type: "started", Payload: startedPayload{Started: started}}

	case "nextQuestion":
		var p nextQuestionPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errorMessage("invalid", "invalid nextQuestion payload")
		}
		view, err := h.rooms.GetNextQuestion(ctx, userID, p.RoomID, p.Sequence, p.PreviousVariantID)
		if err != nil {
			return errorFor(err)
		}
		return outboundMessage{Type: "question", Payload: view}

	case "reportEnd":
		var p roomPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errorMessage("invalid", "invalid reportEnd payload")
		}
		report, err := h.rooms.ReportGameEnd(ctx, userID, p.RoomID)
		if err != nil {
			return errorFor(err)
		}
		return outboundMessage{Type: "gameEnded", Payload: report}

	case "rematch":
		var p rematchPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errorMessage("invalid", "invalid rematch payload")
		}
		tier, err := domain.ParseTier(p.Tier)
		if err != nil {
			return errorMessage("invalid", err.Error())
		}
		roomID, err := h.rooms.RematchPlay(ctx, userID, p.Capacity, tier, p.Token)
		if err != nil {
			return errorFor(err)
		}
		return outboundMessage{Type: "rematchRoom", Payload: roomPayload{RoomID: roomID}}

	case "listRooms":
		var p listRoomsPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errorMessage("invalid", "invalid listRooms payload")
		}
		rooms, err := h.rooms.Rooms(ctx, p.Page, p.Count)
		if err != nil {
			return errorFor(err)
		}
		return outboundMessage{Type: "rooms", Payload: rooms}

	case "roomDetails":
		var p roomPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errorMessage("invalid", "invalid roomDetails payload")
		}
		details, err := h.rooms.RoomDetails(ctx, p.RoomID)
		if err != nil {
			return errorFor(err)
		}
		return outboundMessage{Type: "roomDetails", Payload: details}

	case "getLife":
		value, err := h.lives.Life(ctx, userID)
		if err != nil {
			return errorFor(err)
		}
		return outboundMessage{Type: "life", Payload: lifePayload{Life: value}}

	case "boostLife":
		value, err := h.lives.Boost(ctx, userID)
		if err != nil {
			return errorFor(err)
		}
		return outboundMessage{Type: "life", Payload: lifePayload{Life: value}}

	case "referralBoost":
		value, err := h.lives.ReferralBoost(ctx, userID)
		if err != nil {
			return errorFor(err)
		}
		return outboundMessage{Type: "life", Payload: lifePayload{Life: value}}

	case "topUsers":
		var p countPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errorMessage("invalid", "invalid topUsers payload")
		}
		if p.Count < 1 || p.Count > 100 {
			p.Count = 10
		}
		top, err := h.leaderboard.TopUsers(ctx, p.Count)
		if err != nil {
			return errorFor(err)
		}
		return outboundMessage{Type: "topUsers", Payload: top}

	default:
		return errorMessage("invalid", "unsupported message type")
	}
}

// errorFor maps domain sentinels onto wire error kinds; anything else
// is reported as an internal failure without leaking the cause.
func errorFor(err error) outboundMessage {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return errorMessage("unauthorized", err.Error())
	case errors.Is(err, domain.ErrRoomFull):
		return errorMessage("roomFull", err.Error())
	case errors.Is(err, domain.ErrInvalidCapacity):
		return errorMessage("invalid", err.Error())
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrVariantNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return errorMessage("notFound", err.Error())
	default:
		log.Printf("ws internal error: %v", err)
		return errorMessage("internal", "internal error")
	}
}

func errorMessage(kind, message string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Kind: kind, Message: message}}
}
