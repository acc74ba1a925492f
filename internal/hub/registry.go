// Package hub is the process-wide index mapping sessions to rooms. It also
// owns the two per-phase frame handlers (§4.4), since they exist only to
// call back into the registry's own Register/AttachToRoom/Unregister
// operations — keeping them together avoids an import cycle between a
// "registry" package and a "dispatcher" package that would otherwise need
// each other.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kamilrusin/fusion-relay/internal/audit"
	"github.com/kamilrusin/fusion-relay/internal/relay"
	"github.com/kamilrusin/fusion-relay/internal/wire"
)

// Registry tracks every live session and, for each, whether it is
// unidentified or attached to a named room. Its three structures and their
// cross-invariant are specified in §3; see DESIGN.md for how the Go
// rendition avoids ever nesting their locks.
type Registry struct {
	log   *zerolog.Logger
	audit *audit.Log // nil-safe: a nil *audit.Log is a no-op sink.

	unidentifiedMtx sync.Mutex
	unidentified    map[Conn]struct{}

	sessionRoomMtx sync.Mutex
	sessionRoom    map[Conn]string // "" means unjoined.

	roomsMtx sync.Mutex
	rooms    map[string]*relay.Room

	shuttingDown atomic.Bool

	unjoinedHandler *unjoinedHandler
	roomHandler     *roomHandler
}

// New constructs an empty registry. auditLog may be nil.
func New(log *zerolog.Logger, auditLog *audit.Log) *Registry {
	r := &Registry{
		log:          log,
		audit:        auditLog,
		unidentified: make(map[Conn]struct{}),
		sessionRoom:  make(map[Conn]string),
		rooms:        make(map[string]*relay.Room),
	}
	r.unjoinedHandler = &unjoinedHandler{reg: r}
	r.roomHandler = &roomHandler{reg: r}
	return r
}

// UnjoinedHandler returns the handler every freshly registered session
// should be given.
func (r *Registry) UnjoinedHandler() Handler { return r.unjoinedHandler }

// Register inserts session into the unidentified set and returns the
// handler it should use to process its next frame. Re-registering a
// session that is already known is a no-op.
func (r *Registry) Register(session Conn) Handler {
	r.sessionRoomMtx.Lock()
	if _, known := r.sessionRoom[session]; known {
		r.sessionRoomMtx.Unlock()
		r.log.Warn().Str("remote", session.RemoteEndpoint()).Msg("session already registered")
		return r.unjoinedHandler
	}
	r.sessionRoom[session] = ""
	r.sessionRoomMtx.Unlock()

	r.unidentifiedMtx.Lock()
	r.unidentified[session] = struct{}{}
	r.unidentifiedMtx.Unlock()

	r.audit.Record(audit.EventSessionRegistered, "", session.RemoteEndpoint())
	return r.unjoinedHandler
}

// Unregister removes session from whichever structure currently holds it.
// Concurrent unregistrations of the same session converge to a single
// effective removal; calls received after Shutdown short-circuit entirely,
// per §4.5, so they never race a process-wide teardown.
func (r *Registry) Unregister(session Conn) {
	if r.shuttingDown.Load() {
		return
	}

	r.sessionRoomMtx.Lock()
	name, known := r.sessionRoom[session]
	if !known {
		r.sessionRoomMtx.Unlock()
		return
	}
	delete(r.sessionRoom, session)
	r.sessionRoomMtx.Unlock()

	r.audit.Record(audit.EventSessionUnregistered, name, session.RemoteEndpoint())

	if name == "" {
		r.unidentifiedMtx.Lock()
		delete(r.unidentified, session)
		r.unidentifiedMtx.Unlock()
		return
	}

	r.leaveRoom(session, name)
}

// AttachToRoom moves session from unidentified into the named room,
// creating the room if it does not yet exist. On failure (the room's teams
// are both full) all state is left unchanged.
func (r *Registry) AttachToRoom(session Conn, name, nick string, hint relay.Team) (wire.Snapshot, uint64, bool) {
	room, created := r.getOrCreateRoom(name)
	if created {
		r.audit.Record(audit.EventRoomCreated, name, "")
	}

	p, ok := room.Join(session, nick, hint)
	if !ok {
		if created {
			r.dropRoomIfEmpty(name, room)
		}
		return wire.Snapshot{}, 0, false
	}

	r.sessionRoomMtx.Lock()
	r.sessionRoom[session] = name
	r.sessionRoomMtx.Unlock()

	r.unidentifiedMtx.Lock()
	delete(r.unidentified, session)
	r.unidentifiedMtx.Unlock()

	r.audit.Record(audit.EventSessionJoined, name, session.RemoteEndpoint())
	return room.Snapshot(), p.ID, true
}

// Shutdown marks the registry as draining. Every Unregister call received
// afterwards short-circuits, per §4.5, preventing a double-free race
// between per-session teardown and process shutdown.
func (r *Registry) Shutdown() {
	r.shuttingDown.Store(true)
}

func (r *Registry) getOrCreateRoom(name string) (*relay.Room, bool) {
	r.roomsMtx.Lock()
	defer r.roomsMtx.Unlock()
	if room, ok := r.rooms[name]; ok {
		return room, false
	}
	room := relay.New(name)
	r.rooms[name] = room
	return room, true
}

func (r *Registry) lookupRoom(name string) (*relay.Room, bool) {
	r.roomsMtx.Lock()
	defer r.roomsMtx.Unlock()
	room, ok := r.rooms[name]
	return room, ok
}

// dropRoomIfEmpty removes name from the room index if room currently has no
// members. It is safe to call speculatively: a room with zero members must
// never persist in rooms after any join/leave completes (§8).
func (r *Registry) dropRoomIfEmpty(name string, room *relay.Room) {
	if room.Size() != 0 {
		return
	}
	r.roomsMtx.Lock()
	if cur, ok := r.rooms[name]; ok && cur == room && cur.Size() == 0 {
		delete(r.rooms, name)
		r.roomsMtx.Unlock()
		r.audit.Record(audit.EventRoomDestroyed, name, "")
		return
	}
	r.roomsMtx.Unlock()
}

func (r *Registry) leaveRoom(session Conn, name string) {
	room, ok := r.lookupRoom(name)
	if !ok {
		return
	}
	room.Leave(session)
	r.dropRoomIfEmpty(name, room)
}

func (r *Registry) applyUpdate(conn Conn, f wire.UpdateFrame) {
	r.sessionRoomMtx.Lock()
	name := r.sessionRoom[conn]
	r.sessionRoomMtx.Unlock()
	if name == "" {
		return
	}

	room, ok := r.lookupRoom(name)
	if !ok {
		return
	}

	if p, ok := room.Player(conn); ok {
		p.Position.X = int64(f.Position[0])
		p.Position.Y = int64(f.Position[1])
		p.Angle = f.Angle
	}

	room.Broadcast(marshalOrNil(r.log, wire.NewUpdateBroadcast(room.Snapshot())))
}

func (r *Registry) handleLeave(conn Conn) {
	r.sessionRoomMtx.Lock()
	name := r.sessionRoom[conn]
	r.sessionRoomMtx.Unlock()
	if name == "" {
		writeJSON(conn, r.log, wire.NewWarning())
		return
	}

	room, ok := r.lookupRoom(name)
	if !ok {
		return
	}
	room.Leave(conn)
	r.dropRoomIfEmpty(name, room)

	r.sessionRoomMtx.Lock()
	r.sessionRoom[conn] = ""
	r.sessionRoomMtx.Unlock()

	r.unidentifiedMtx.Lock()
	r.unidentified[conn] = struct{}{}
	r.unidentifiedMtx.Unlock()

	r.audit.Record(audit.EventSessionLeft, name, conn.RemoteEndpoint())
	conn.SetHandler(r.unjoinedHandler)
	room.Broadcast(marshalOrNil(r.log, wire.NewUpdateBroadcast(room.Snapshot())))
}

func marshalOrNil(log *zerolog.Logger, v any) []byte {
	b, err := wire.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal broadcast frame")
		return nil
	}
	return b
}
