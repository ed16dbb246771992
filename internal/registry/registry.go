package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks every live connection, its room memberships, its pending
// call invites and its active call pairing. It is an explicit object rather
// than package state so tests can run isolated instances side by side. All
// mutation is serialized behind a single lock; every connection handler
// touches this state.
//
// Invites and active pairs are kept apart: an invite is only an offer, so it
// must not disturb a call either party already has. The pair is recorded when
// the callee accepts.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]map[string]struct{} // connection id -> rooms joined
	rooms    map[string]map[string]struct{} // room name -> member ids
	pairs    map[string]string              // active calls, symmetric
	invites  map[string]string              // caller id -> invited target id
	invitees map[string]map[string]struct{} // target id -> callers with an outstanding invite
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		conns:    make(map[string]map[string]struct{}),
		rooms:    make(map[string]map[string]struct{}),
		pairs:    make(map[string]string),
		invites:  make(map[string]string),
		invitees: make(map[string]map[string]struct{}),
	}
}

// Add registers a new live connection and returns its id. Ids are random
// UUIDs and are never reissued for the lifetime of the process.
func (r *Registry) Add() string {
	id := uuid.NewString()

	r.mu.Lock()
	r.conns[id] = make(map[string]struct{})
	r.mu.Unlock()

	return id
}

// Alive reports whether id belongs to a live connection.
func (r *Registry) Alive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.conns[id]
	return ok
}

// Join adds the connection to the named room, creating the room on first
// join. Joining a room twice is a no-op. Returns false if the connection is
// no longer live.
func (r *Registry) Join(id, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[id]
	if !ok {
		return false
	}

	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(map[string]struct{})
	}
	r.rooms[room][id] = struct{}{}
	joined[room] = struct{}{}

	return true
}

// RoomMembers returns a snapshot of the room's current member ids. An absent
// room yields an empty slice.
func (r *Registry) RoomMembers(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		members = append(members, id)
	}
	return members
}

// AddInvite records an outstanding invite from caller to target. A caller
// has at most one outstanding invite; a new one replaces it. Active pairs
// are not touched: ringing someone must not disturb a call either party
// already has.
func (r *Registry) AddInvite(caller, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropInviteLocked(caller)
	r.invites[caller] = target
	if r.invitees[target] == nil {
		r.invitees[target] = make(map[string]struct{})
	}
	r.invitees[target][caller] = struct{}{}
}

// Invited returns who caller currently has an outstanding invite to.
func (r *Registry) Invited(caller string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	target, ok := r.invites[caller]
	return target, ok
}

// Accept promotes the outstanding invite from caller to callee into an
// active pair. Any previous pairing either party still had is replaced, and
// the displaced peers are returned so they can be notified. Returns false
// if no matching invite exists, in which case nothing is recorded.
func (r *Registry) Accept(caller, callee string) (displaced []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.invites[caller] != callee {
		return nil, false
	}
	r.dropInviteLocked(caller)

	return r.setPairLocked(caller, callee), true
}

// SetPair records an active call pairing between a and b, replacing any
// pairing either side still had. The displaced peers are returned.
func (r *Registry) SetPair(a, b string) (displaced []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.setPairLocked(a, b)
}

func (r *Registry) setPairLocked(a, b string) (displaced []string) {
	if peer, ok := r.clearPairLocked(a); ok && peer != b {
		displaced = append(displaced, peer)
	}
	if peer, ok := r.clearPairLocked(b); ok && peer != a {
		displaced = append(displaced, peer)
	}
	r.pairs[a] = b
	r.pairs[b] = a
	return displaced
}

// Peer returns the current call peer of id, if any.
func (r *Registry) Peer(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, ok := r.pairs[id]
	return peer, ok
}

// ClearPair removes id's active pairing and returns the former peer.
func (r *Registry) ClearPair(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.clearPairLocked(id)
}

func (r *Registry) clearPairLocked(id string) (string, bool) {
	peer, ok := r.pairs[id]
	if !ok {
		return "", false
	}
	delete(r.pairs, id)
	if r.pairs[peer] == id {
		delete(r.pairs, peer)
	}
	return peer, true
}

func (r *Registry) dropInviteLocked(caller string) {
	target, ok := r.invites[caller]
	if !ok {
		return
	}
	delete(r.invites, caller)
	if set := r.invitees[target]; set != nil {
		delete(set, caller)
		if len(set) == 0 {
			delete(r.invitees, target)
		}
	}
}

// EndCalls clears id's active pairing and every pending invite involving id,
// returning the distinct peers that should receive a call-ended notice: the
// active call peer, the target still being rung by id, and any caller whose
// invite was addressed to id.
func (r *Registry) EndCalls(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.endCallsLocked(id)
}

func (r *Registry) endCallsLocked(id string) []string {
	var peers []string

	if peer, ok := r.clearPairLocked(id); ok {
		peers = appendUnique(peers, peer)
	}

	if target, ok := r.invites[id]; ok {
		r.dropInviteLocked(id)
		peers = appendUnique(peers, target)
	}

	if set := r.invitees[id]; len(set) > 0 {
		callers := make([]string, 0, len(set))
		for caller := range set {
			callers = append(callers, caller)
		}
		for _, caller := range callers {
			r.dropInviteLocked(caller)
			peers = appendUnique(peers, caller)
		}
	}

	return peers
}

func appendUnique(peers []string, id string) []string {
	for _, p := range peers {
		if p == id {
			return peers
		}
	}
	return append(peers, id)
}

// Remove deletes the connection, its room memberships, its pending invites
// and its active call pairing. It returns the peers that should receive a
// directed call-ended notice. Removing an unknown id is a no-op, which makes
// disconnect handling idempotent.
func (r *Registry) Remove(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[id]
	if !ok {
		return nil
	}

	for room := range joined {
		delete(r.rooms[room], id)
		if len(r.rooms[room]) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.conns, id)

	return r.endCallsLocked(id)
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// CallCount returns the number of active call pairs.
func (r *Registry) CallCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.pairs) / 2
}
