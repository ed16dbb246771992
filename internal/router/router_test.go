package router

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/carelink/telehealth-signaling/internal/metrics"
	"github.com/carelink/telehealth-signaling/internal/model"
	"github.com/carelink/telehealth-signaling/internal/registry"
)

func newTestRouter() (*Router, *registry.Registry) {
	reg := registry.New()
	return New(reg, metrics.Noop{}), reg
}

func frame(msgType, data string) []byte {
	return []byte(fmt.Sprintf(`{"type":%q,"data":%s}`, msgType, data))
}

func decodeData(t *testing.T, p Push, v interface{}) {
	t.Helper()
	var env model.Envelope
	if err := json.Unmarshal(p.Data, &env); err != nil {
		t.Fatalf("push frame is not a valid envelope: %v", err)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("push data did not decode: %v", err)
	}
}

func targets(pushes []Push) map[string]int {
	got := make(map[string]int)
	for _, p := range pushes {
		got[p.TargetID]++
	}
	return got
}

func TestChatFanout_ExcludesSender(t *testing.T) {
	rt, reg := newTestRouter()
	a, b, c := reg.Add(), reg.Add(), reg.Add()
	outsider := reg.Add()
	for _, id := range []string{a, b, c} {
		rt.Dispatch(id, frame(model.TypeJoinRoom, `{"roomName":"r1"}`))
	}

	pushes := rt.Dispatch(a, frame(model.TypeChatMessage,
		`{"roomName":"r1","authorId":"a","authorName":"Ann","text":"hi","time":"10:00"}`))

	got := targets(pushes)
	if got[a] != 0 {
		t.Fatal("sender received its own message")
	}
	if got[b] != 1 || got[c] != 1 {
		t.Fatalf("expected exactly one copy for each other member, got %v", got)
	}
	if got[outsider] != 0 {
		t.Fatal("non-member received a room message")
	}
}

func TestChatFanout_RelaysPayloadVerbatim(t *testing.T) {
	rt, reg := newTestRouter()
	a, b := reg.Add(), reg.Add()
	rt.Dispatch(a, frame(model.TypeJoinRoom, `{"roomName":"r1"}`))
	rt.Dispatch(b, frame(model.TypeJoinRoom, `{"roomName":"r1"}`))

	// Fields the server never reads must survive untouched
	data := `{"roomName":"r1","text":"hi","attachment":{"kind":"report","id":42}}`
	pushes := rt.Dispatch(a, frame(model.TypeChatMessage, data))

	if len(pushes) != 1 {
		t.Fatalf("expected 1 push, got %d", len(pushes))
	}
	var env model.Envelope
	if err := json.Unmarshal(pushes[0].Data, &env); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	if string(env.Data) != data {
		t.Fatalf("payload mutated in transit:\n sent %s\n got  %s", data, env.Data)
	}
	if env.Type != model.TypeChatMessage {
		t.Fatalf("expected type %s, got %s", model.TypeChatMessage, env.Type)
	}
}

func TestChat_UnknownRoomIsSilentNoop(t *testing.T) {
	rt, reg := newTestRouter()
	a := reg.Add()

	pushes := rt.Dispatch(a, frame(model.TypeChatMessage, `{"roomName":"empty","text":"hi"}`))
	if len(pushes) != 0 {
		t.Fatalf("expected no pushes, got %d", len(pushes))
	}
}

func TestDispatch_DropsBadFrames(t *testing.T) {
	rt, reg := newTestRouter()
	a := reg.Add()

	cases := []struct {
		name string
		raw  []byte
	}{
		{"not json", []byte("not json at all")},
		{"unknown type", frame("totally-new-kind", `{}`)},
		{"join missing room", frame(model.TypeJoinRoom, `{}`)},
		{"chat missing room", frame(model.TypeChatMessage, `{"text":"hi"}`)},
		{"invite missing target", frame(model.TypeCallInvite, `{"payload":{"sdp":"A"}}`)},
		{"accept missing target", frame(model.TypeCallAccept, `{"payload":{"sdp":"B"}}`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if pushes := rt.Dispatch(a, tc.raw); len(pushes) != 0 {
				t.Fatalf("expected drop, got %d pushes", len(pushes))
			}
		})
	}

	// The offending connection is untouched
	if !reg.Alive(a) {
		t.Fatal("bad frames must not tear down the connection")
	}
}

func TestCallInvite_DeliversToTarget(t *testing.T) {
	rt, reg := newTestRouter()
	caller, callee := reg.Add(), reg.Add()

	pushes := rt.Dispatch(caller, frame(model.TypeCallInvite, fmt.Sprintf(
		`{"targetId":%q,"payload":{"sdp":"A"},"callerId":%q,"callerName":"Dr. Adams"}`,
		callee, caller)))

	if len(pushes) != 1 || pushes[0].TargetID != callee {
		t.Fatalf("expected one push to callee, got %+v", pushes)
	}

	var delivery model.CallInviteDelivery
	decodeData(t, pushes[0], &delivery)
	if string(delivery.Payload) != `{"sdp":"A"}` {
		t.Fatalf("payload mutated: %s", delivery.Payload)
	}
	if delivery.CallerID != caller || delivery.CallerName != "Dr. Adams" {
		t.Fatalf("caller identity lost: %+v", delivery)
	}

	if target, ok := reg.Invited(caller); !ok || target != callee {
		t.Fatal("invite should be recorded as pending")
	}
	if _, ok := reg.Peer(caller); ok {
		t.Fatal("an unaccepted invite must not create an active pair")
	}
}

func TestCallInvite_UnknownTargetIsSilentNoop(t *testing.T) {
	rt, reg := newTestRouter()
	caller := reg.Add()

	pushes := rt.Dispatch(caller, frame(model.TypeCallInvite,
		`{"targetId":"gone","payload":{"sdp":"A"}}`))

	if len(pushes) != 0 {
		t.Fatalf("expected no pushes, got %d", len(pushes))
	}
	if _, ok := reg.Invited(caller); ok {
		t.Fatal("no invite should be recorded for a dead target")
	}
}

func TestCallAccept_PayloadPassthrough(t *testing.T) {
	rt, reg := newTestRouter()
	caller, callee := reg.Add(), reg.Add()
	rt.Dispatch(caller, frame(model.TypeCallInvite, fmt.Sprintf(
		`{"targetId":%q,"payload":{"sdp":"A"}}`, callee)))

	payload := `{"sdp":"B","candidates":[{"port":9999}]}`
	pushes := rt.Dispatch(callee, frame(model.TypeCallAccept, fmt.Sprintf(
		`{"targetId":%q,"payload":%s}`, caller, payload)))

	if len(pushes) != 1 || pushes[0].TargetID != caller {
		t.Fatalf("expected one push to caller, got %+v", pushes)
	}

	var delivery model.CallAcceptDelivery
	decodeData(t, pushes[0], &delivery)
	if string(delivery.Payload) != payload {
		t.Fatalf("payload mutated in transit:\n sent %s\n got  %s", payload, delivery.Payload)
	}

	if peer, _ := reg.Peer(caller); peer != callee {
		t.Fatal("accept should promote the invite into the active pair")
	}
}

func TestCallInvite_DoesNotClobberActiveCall(t *testing.T) {
	rt, reg := newTestRouter()
	a, b, d := reg.Add(), reg.Add(), reg.Add()

	// A and B establish a call
	rt.Dispatch(a, frame(model.TypeCallInvite, fmt.Sprintf(
		`{"targetId":%q,"payload":{"sdp":"A"}}`, b)))
	rt.Dispatch(b, frame(model.TypeCallAccept, fmt.Sprintf(
		`{"targetId":%q,"payload":{"sdp":"B"}}`, a)))

	// A third party rings B; the established call must survive
	rt.Dispatch(d, frame(model.TypeCallInvite, fmt.Sprintf(
		`{"targetId":%q,"payload":{"sdp":"D"}}`, b)))

	if peer, _ := reg.Peer(b); peer != a {
		t.Fatalf("unaccepted invite destroyed the active pair: b paired with %q", peer)
	}

	// B disconnects: its call partner A gets exactly one call-ended, and the
	// still-ringing D is told the callee is gone
	got := targets(rt.Disconnect(b))
	if got[a] != 1 {
		t.Fatalf("expected exactly one call-ended for the call partner, got %v", got)
	}
	if got[d] != 1 {
		t.Fatalf("expected one call-ended for the pending caller, got %v", got)
	}
}

func TestCallAccept_DisplacedPeerNotified(t *testing.T) {
	rt, reg := newTestRouter()
	a, b, c := reg.Add(), reg.Add(), reg.Add()

	rt.Dispatch(a, frame(model.TypeCallInvite, fmt.Sprintf(
		`{"targetId":%q,"payload":{"sdp":"A"}}`, b)))
	rt.Dispatch(b, frame(model.TypeCallAccept, fmt.Sprintf(
		`{"targetId":%q,"payload":{"sdp":"B"}}`, a)))

	// B walks into a new call with C; A must hear the old one is over
	rt.Dispatch(c, frame(model.TypeCallInvite, fmt.Sprintf(
		`{"targetId":%q,"payload":{"sdp":"C"}}`, b)))
	pushes := rt.Dispatch(b, frame(model.TypeCallAccept, fmt.Sprintf(
		`{"targetId":%q,"payload":{"sdp":"B2"}}`, c)))

	got := targets(pushes)
	if got[c] != 1 {
		t.Fatalf("expected the accept delivered to the new caller, got %v", got)
	}
	if got[a] != 1 {
		t.Fatalf("expected one call-ended for the displaced peer, got %v", got)
	}
	if peer, _ := reg.Peer(b); peer != c {
		t.Fatalf("expected b paired with %s, got %s", c, peer)
	}
	if _, ok := reg.Peer(a); ok {
		t.Fatal("displaced peer should no longer be paired")
	}
}

func TestCallAccept_WithoutInviteStillForwards(t *testing.T) {
	rt, reg := newTestRouter()
	a, b := reg.Add(), reg.Add()

	pushes := rt.Dispatch(b, frame(model.TypeCallAccept, fmt.Sprintf(
		`{"targetId":%q,"payload":{"sdp":"B"}}`, a)))

	if len(pushes) != 1 || pushes[0].TargetID != a {
		t.Fatalf("expected the accept relayed to its target, got %+v", pushes)
	}
	if _, ok := reg.Peer(a); ok {
		t.Fatal("an accept with no matching invite must not record a pair")
	}
}

func TestCallEnd_DirectedAtPeerOnly(t *testing.T) {
	rt, reg := newTestRouter()
	caller, callee := reg.Add(), reg.Add()
	bystander := reg.Add()
	rt.Dispatch(caller, frame(model.TypeCallInvite, fmt.Sprintf(
		`{"targetId":%q,"payload":{"sdp":"A"}}`, callee)))

	pushes := rt.Dispatch(caller, frame(model.TypeCallEnd, `{}`))

	got := targets(pushes)
	if got[callee] != 1 {
		t.Fatalf("expected exactly one call-ended for the peer, got %v", got)
	}
	if got[bystander] != 0 {
		t.Fatal("call-ended leaked to an uninvolved connection")
	}
	if pushes[0].Type != model.TypeCallEnded {
		t.Fatalf("expected %s, got %s", model.TypeCallEnded, pushes[0].Type)
	}

	// Hanging up twice notifies nobody twice
	if pushes := rt.Dispatch(caller, frame(model.TypeCallEnd, `{}`)); len(pushes) != 0 {
		t.Fatalf("second hang-up produced %d pushes", len(pushes))
	}
}

func TestDisconnect_NotifiesCallPeerOnce(t *testing.T) {
	rt, reg := newTestRouter()
	caller, callee := reg.Add(), reg.Add()
	rt.Dispatch(caller, frame(model.TypeCallInvite, fmt.Sprintf(
		`{"targetId":%q,"payload":{"sdp":"A"}}`, callee)))

	pushes := rt.Disconnect(callee)
	if len(pushes) != 1 || pushes[0].TargetID != caller || pushes[0].Type != model.TypeCallEnded {
		t.Fatalf("expected one call-ended for the caller, got %+v", pushes)
	}

	// Idempotent: a second disconnect for the same id does nothing
	if pushes := rt.Disconnect(callee); len(pushes) != 0 {
		t.Fatalf("second disconnect produced %d pushes", len(pushes))
	}
}

func TestDisconnect_NoCallNoNotice(t *testing.T) {
	rt, reg := newTestRouter()
	a := reg.Add()
	rt.Dispatch(a, frame(model.TypeJoinRoom, `{"roomName":"r1"}`))

	if pushes := rt.Disconnect(a); len(pushes) != 0 {
		t.Fatalf("expected no pushes, got %d", len(pushes))
	}
	if reg.RoomCount() != 0 {
		t.Fatal("disconnect should clear room membership")
	}
}
