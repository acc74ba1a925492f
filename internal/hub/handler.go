package hub

import (
	"github.com/rs/zerolog"

	"github.com/kamilrusin/fusion-relay/internal/relay"
	"github.com/kamilrusin/fusion-relay/internal/wire"
)

// Conn is the subset of Session behavior the hub depends on. Session
// satisfies this interface structurally; this package never imports the
// session package.
type Conn interface {
	relay.Member
	SetHandler(h Handler)
	Close()
	CloseWithFrame(frame []byte)
}

// Handler processes one parsed frame for a session currently in some phase.
// Which Handler a session holds is exactly the session's phase, per §4.4/§9.
type Handler interface {
	HandleFrame(conn Conn, frame wire.Frame)
}

func writeJSON(conn Conn, log *zerolog.Logger, v any) {
	b, err := wire.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal outbound frame")
		return
	}
	conn.Write(b)
}

// unjoinedHandler accepts only `join`; everything else is a warning, and the
// session stays unjoined.
type unjoinedHandler struct {
	reg *Registry
}

func (h *unjoinedHandler) HandleFrame(conn Conn, frame wire.Frame) {
	jf, ok := frame.(wire.JoinFrame)
	if !ok {
		h.reg.log.Warn().Str("remote", conn.RemoteEndpoint()).Msg("received non-join frame while unjoined")
		writeJSON(conn, h.reg.log, wire.NewWarning())
		return
	}

	snapshot, myID, ok := h.reg.AttachToRoom(conn, jf.Game, jf.Nick, relay.TeamRandom)
	if !ok {
		writeJSON(conn, h.reg.log, wire.FullResponse{ID: jf.ID, Result: "full"})
		return
	}

	conn.SetHandler(h.reg.roomHandler)
	writeJSON(conn, h.reg.log, wire.JoinedResponse{
		ID:      jf.ID,
		Result:  "joined",
		MyID:    myID,
		Players: snapshot.Players,
		Rays:    snapshot.Rays,
	})
}

// roomHandler accepts `update` and `leave` for the session's current room.
// Anything else is a warning; the session stays joined to its room.
type roomHandler struct {
	reg *Registry
}

func (h *roomHandler) HandleFrame(conn Conn, frame wire.Frame) {
	switch f := frame.(type) {
	case wire.UpdateFrame:
		h.reg.applyUpdate(conn, f)
	case wire.LeaveFrame:
		h.reg.handleLeave(conn)
	default:
		writeJSON(conn, h.reg.log, wire.NewWarning())
	}
}
