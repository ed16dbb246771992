package router

import (
	"encoding/json"
	"log"

	"github.com/carelink/telehealth-signaling/internal/metrics"
	"github.com/carelink/telehealth-signaling/internal/model"
	"github.com/carelink/telehealth-signaling/internal/registry"
)

// Push is one outbound delivery produced by routing: a complete frame
// destined for a single connection.
type Push struct {
	TargetID string
	Type     string
	Data     []byte
}

// handlerFunc turns one inbound frame into zero or more outbound pushes.
type handlerFunc func(senderID string, data json.RawMessage) []Push

// Router dispatches inbound frames by message kind against an explicit
// handler table and computes the resulting pushes. It holds no transport
// handle, so the routing logic is independent of the websocket layer and can
// be exercised directly in tests.
type Router struct {
	registry *registry.Registry
	metrics  metrics.Collector
	handlers map[string]handlerFunc
}

// New creates a router over the given registry.
func New(reg *registry.Registry, m metrics.Collector) *Router {
	rt := &Router{
		registry: reg,
		metrics:  m,
	}
	rt.handlers = map[string]handlerFunc{
		model.TypeJoinRoom:    rt.handleJoinRoom,
		model.TypeChatMessage: rt.handleChatMessage,
		model.TypeCallInvite:  rt.handleCallInvite,
		model.TypeCallAccept:  rt.handleCallAccept,
		model.TypeCallEnd:     rt.handleCallEnd,
	}
	return rt
}

// Dispatch routes one raw inbound frame from senderID. Malformed or unknown
// frames are dropped; one bad message never tears down the sending connection
// or affects other clients.
func (rt *Router) Dispatch(senderID string, raw []byte) []Push {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		rt.metrics.MessageDropped("", "malformed")
		return nil
	}

	handler, ok := rt.handlers[env.Type]
	if !ok {
		log.Printf("Unknown message type %q from %s", env.Type, senderID)
		rt.metrics.MessageDropped(env.Type, "unknown_type")
		return nil
	}

	rt.metrics.MessageReceived(env.Type, len(raw))
	return handler(senderID, env.Data)
}

// Disconnect removes the connection from the registry and produces one
// directed call-ended push for each affected peer: the active call partner
// and anyone with an invite still outstanding to or from the connection.
// Safe to call more than once for the same id.
func (rt *Router) Disconnect(id string) []Push {
	return rt.endedPushes(rt.registry.Remove(id))
}

// endedPushes turns a list of affected peers into directed call-ended pushes,
// skipping peers that are no longer live.
func (rt *Router) endedPushes(peers []string) []Push {
	var pushes []Push
	for _, peer := range peers {
		if !rt.registry.Alive(peer) {
			continue
		}
		rt.metrics.CallEnded()
		pushes = append(pushes, rt.push(peer, model.TypeCallEnded, json.RawMessage(`{}`)))
	}
	return pushes
}

func (rt *Router) handleJoinRoom(senderID string, data json.RawMessage) []Push {
	var req model.JoinRoom
	if err := json.Unmarshal(data, &req); err != nil || req.RoomName == "" {
		rt.metrics.MessageDropped(model.TypeJoinRoom, "missing_field")
		return nil
	}

	if rt.registry.Join(senderID, req.RoomName) {
		rt.metrics.RoomJoined(req.RoomName)
	}
	return nil
}

// handleChatMessage fans the sender's original payload out to every other
// current member of the named room. The payload is relayed as received, so
// fields the server never reads survive verbatim.
func (rt *Router) handleChatMessage(senderID string, data json.RawMessage) []Push {
	var req model.ChatMessage
	if err := json.Unmarshal(data, &req); err != nil || req.RoomName == "" {
		rt.metrics.MessageDropped(model.TypeChatMessage, "missing_field")
		return nil
	}

	members := rt.registry.RoomMembers(req.RoomName)
	pushes := make([]Push, 0, len(members))
	for _, id := range members {
		if id == senderID {
			continue
		}
		pushes = append(pushes, rt.push(id, model.TypeChatMessage, data))
	}
	return pushes
}

func (rt *Router) handleCallInvite(senderID string, data json.RawMessage) []Push {
	var req model.CallInvite
	if err := json.Unmarshal(data, &req); err != nil || req.TargetID == "" {
		rt.metrics.MessageDropped(model.TypeCallInvite, "missing_field")
		return nil
	}

	// Dead target: silent no-op, and no pair is recorded. The caller observes
	// only silence.
	if !rt.registry.Alive(req.TargetID) {
		rt.metrics.MessageDropped(model.TypeCallInvite, "unknown_target")
		return nil
	}

	// An invite is only an offer: it is recorded as pending and must not
	// disturb a call either party already has. The pair is promoted when the
	// callee accepts.
	rt.registry.AddInvite(senderID, req.TargetID)
	rt.metrics.CallStarted()

	delivery, err := json.Marshal(model.CallInviteDelivery{
		Payload:    req.Payload,
		CallerID:   req.CallerID,
		CallerName: req.CallerName,
	})
	if err != nil {
		rt.metrics.MessageDropped(model.TypeCallInvite, "encode_error")
		return nil
	}
	return []Push{rt.push(req.TargetID, model.TypeCallInvite, delivery)}
}

func (rt *Router) handleCallAccept(senderID string, data json.RawMessage) []Push {
	var req model.CallAccept
	if err := json.Unmarshal(data, &req); err != nil || req.TargetID == "" {
		rt.metrics.MessageDropped(model.TypeCallAccept, "missing_field")
		return nil
	}

	if !rt.registry.Alive(req.TargetID) {
		rt.metrics.MessageDropped(model.TypeCallAccept, "unknown_target")
		return nil
	}

	delivery, err := json.Marshal(model.CallAcceptDelivery{Payload: req.Payload})
	if err != nil {
		rt.metrics.MessageDropped(model.TypeCallAccept, "encode_error")
		return nil
	}
	pushes := []Push{rt.push(req.TargetID, model.TypeCallAccept, delivery)}

	// Promote the pending invite into the active pair. A party that walks
	// into a new call this way leaves its old one; the displaced peer gets a
	// directed call-ended rather than silence. An accept with no matching
	// invite is still relayed, but records nothing.
	if displaced, ok := rt.registry.Accept(req.TargetID, senderID); ok {
		pushes = append(pushes, rt.endedPushes(displaced)...)
	}
	return pushes
}

// handleCallEnd notifies the sender's call peers that the call is over: the
// active partner, or the parties of any invite still pending with the
// sender. The registry is authoritative; the client-supplied target is only
// a fallback for a hang-up that raced the pairing.
func (rt *Router) handleCallEnd(senderID string, data json.RawMessage) []Push {
	peers := rt.registry.EndCalls(senderID)
	if len(peers) == 0 {
		var req model.CallEnd
		if err := json.Unmarshal(data, &req); err != nil || req.TargetID == "" {
			return nil
		}
		peers = []string{req.TargetID}
	}
	return rt.endedPushes(peers)
}

func (rt *Router) push(targetID, msgType string, data json.RawMessage) Push {
	frame, err := json.Marshal(model.Envelope{Type: msgType, Data: data})
	if err != nil {
		// Data is already valid JSON here; this cannot fail in practice.
		log.Printf("Failed to encode %s push for %s: %v", msgType, targetID, err)
		return Push{TargetID: targetID, Type: msgType}
	}
	return Push{TargetID: targetID, Type: msgType, Data: frame}
}
