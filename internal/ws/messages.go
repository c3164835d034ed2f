package ws

import (
	"encoding/json"
)

// Envelope wraps every inbound WS frame.
type Envelope struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// Wire event names; the closed set below is the whole contract.
const (
	evCreateRoom   = "createRoom"
	evJoinRoom     = "joinRoom"
	evLeaveRoom    = "leaveRoom"
	evChatMessage  = "chatMessage"
	evPlayerUpdate = "playerUpdate"
	evGameEvent    = "gameEvent"

	evRoomCreated     = "roomCreated"
	evJoinRoomSuccess = "joinRoomSuccess"
	evUserJoined      = "userJoined"
	evUserLeft        = "userLeft"
	evMessage         = "message"
	evRoomDetails     = "roomDetails"
	evErrorMessage    = "errorMessage"
)

// systemUser names the pseudo-sender of join/leave notices.
const systemUser = "Room"

// ──────────────────────────── Request DTOs ───────────────────────────────────

type CreateRoomRequest struct {
	Username string `json:"username" validate:"required"`
}

type JoinRoomRequest struct {
	RoomID   string `json:"roomId"   validate:"required"`
	Username string `json:"username" validate:"required"`
}

// LeaveRoomRequest is empty; the registry binding names the room.
type LeaveRoomRequest struct{}

type ChatMessageRequest struct {
	RoomID   string `json:"roomId"   validate:"required"`
	Username string `json:"username" validate:"required"`
	Message  string `json:"message"`
}

type PlayerUpdateRequest struct {
	Score       *int  `json:"score,omitempty"`
	AnswerOrder *int  `json:"answerOrder,omitempty"`
	Active      *bool `json:"active,omitempty"`
}

// GameEventRequest carries an opaque game event; name and payload are
// forwarded verbatim to the room.
type GameEventRequest struct {
	RoomID  string          `json:"roomId" validate:"required"`
	Name    string          `json:"name"   validate:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ──────────────────────────── Response DTOs ──────────────────────────────────

type RoomCreatedBody struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// joinRoomSuccess and roomDetails both carry a full rooms.RoomDTO snapshot.

type UserJoinedBody struct {
	Username string `json:"username"`
}

type UserLeftBody struct {
	Username string `json:"username"`
}

type MessageBody struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
}
