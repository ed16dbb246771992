package model

import (
	"encoding/json"
)

// Envelope is the frame exchanged over a client's persistent connection.
// Data stays raw so relayed payloads pass through the server byte-for-byte.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message kinds exchanged over the persistent connection
const (
	TypeAssignedID  = "assigned-id"
	TypeJoinRoom    = "join-room"
	TypeChatMessage = "chat-message"
	TypeCallInvite  = "call-invite"
	TypeCallAccept  = "call-accept"
	TypeCallEnd     = "call-end"
	TypeCallEnded   = "call-ended"
)

// AssignedID is pushed to a client immediately after its connection is
// accepted.
type AssignedID struct {
	ID string `json:"id"`
}

// JoinRoom asks the server to add the sender to a named chat room.
type JoinRoom struct {
	RoomName string `json:"roomName"`
}

// ChatMessage declares only the addressing field the server reads. The rest
// of the message (author, text, time) is relayed exactly as received.
type ChatMessage struct {
	RoomName string `json:"roomName"`
}

// CallInvite is a client's request to start a call with another connection.
type CallInvite struct {
	TargetID   string          `json:"targetId"`
	Payload    json.RawMessage `json:"payload"`
	CallerID   string          `json:"callerId"`
	CallerName string          `json:"callerName"`
}

// CallInviteDelivery is what the invited client receives.
type CallInviteDelivery struct {
	Payload    json.RawMessage `json:"payload"`
	CallerID   string          `json:"callerId"`
	CallerName string          `json:"callerName"`
}

// CallAccept carries the callee's answer back to the original caller. The
// callee remembers who invited it and addresses the caller itself.
type CallAccept struct {
	TargetID string          `json:"targetId"`
	Payload  json.RawMessage `json:"payload"`
}

// CallAcceptDelivery is what the original caller receives.
type CallAcceptDelivery struct {
	Payload json.RawMessage `json:"payload"`
}

// CallEnd is sent by either party to hang up. TargetID is optional; the
// server prefers its own pairing table to find the peer.
type CallEnd struct {
	TargetID string `json:"targetId,omitempty"`
}
