// Package relay implements the Room: the two-team membership, broadcast,
// and snapshot primitive every joined session belongs to.
package relay

import (
	"sync"
	"sync/atomic"

	"github.com/kamilrusin/fusion-relay/internal/player"
	"github.com/kamilrusin/fusion-relay/internal/wire"
)

// Team identifies one of a room's two sides, or asks Join to pick whichever
// currently has fewer members.
type Team int

const (
	TeamA Team = iota
	TeamB
	TeamRandom
)

// KTeamSize is the maximum number of members one team may hold.
const KTeamSize = 5

// Member is anything a Room can hold a reference to and write frames into.
// Session satisfies this structurally; Room never imports the session
// package.
type Member interface {
	Write(frame []byte)
	RemoteEndpoint() string
}

// team keeps its members in join order, since the snapshot's `players`
// array must reflect insertion order (§4.2), which a bare map cannot do.
type team struct {
	mtx     sync.RWMutex
	order   []Member
	players map[Member]*player.Player
}

func newTeam() *team {
	return &team{players: make(map[Member]*player.Player)}
}

func (t *team) len() int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return len(t.order)
}

func (t *team) has(m Member) bool {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	_, ok := t.players[m]
	return ok
}

func (t *team) insert(m Member, p *player.Player) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.order = append(t.order, m)
	t.players[m] = p
}

func (t *team) remove(m Member) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if _, ok := t.players[m]; !ok {
		return false
	}
	delete(t.players, m)
	for i, existing := range t.order {
		if existing == m {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

func (t *team) get(m Member) (*player.Player, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	p, ok := t.players[m]
	return p, ok
}

// each calls fn for every current member in join order, holding the read
// lock for the duration so callers never observe a torn snapshot.
func (t *team) each(fn func(m Member, p *player.Player)) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	for _, m := range t.order {
		fn(m, t.players[m])
	}
}

// Room is a named multicast group split into two teams of at most
// KTeamSize members each.
type Room struct {
	Name string

	teamA *team
	teamB *team

	nextPlayerID atomic.Uint64
}

// New constructs an empty room with the given name.
func New(name string) *Room {
	return &Room{
		Name:  name,
		teamA: newTeam(),
		teamB: newTeam(),
	}
}

// Join places session into a team, preferring hint unless it is
// TeamRandom, in which case the smaller team is chosen (ties go to B).
// It fails, returning (nil, false), if the session is already a member or
// the chosen team is full.
//
// Lock order is team A before team B, matching the server-wide ordering in
// §5, so Join can never deadlock against a concurrent Size or Broadcast.
func (r *Room) Join(session Member, nick string, hint Team) (*player.Player, bool) {
	r.teamA.mtx.Lock()
	defer r.teamA.mtx.Unlock()
	r.teamB.mtx.Lock()
	defer r.teamB.mtx.Unlock()

	if _, exists := r.teamA.players[session]; exists {
		return nil, false
	}
	if _, exists := r.teamB.players[session]; exists {
		return nil, false
	}

	target := hint
	if hint == TeamRandom {
		if len(r.teamA.order) < len(r.teamB.order) {
			target = TeamA
		} else {
			target = TeamB
		}
	}

	var t *team
	var teamID uint8
	if target == TeamA {
		t, teamID = r.teamA, 0
	} else {
		t, teamID = r.teamB, 1
	}

	if len(t.order) >= KTeamSize {
		return nil, false
	}

	p := player.New(r.nextPlayerID.Add(1)-1, teamID, nick)
	t.order = append(t.order, session)
	t.players[session] = p
	return p, true
}

// Leave removes session from whichever team holds it. It returns false if
// the session was not a member.
func (r *Room) Leave(session Member) bool {
	if r.teamA.remove(session) {
		return true
	}
	return r.teamB.remove(session)
}

// Player returns the Player record for session, if it is currently a member.
func (r *Room) Player(session Member) (*player.Player, bool) {
	if p, ok := r.teamA.get(session); ok {
		return p, true
	}
	return r.teamB.get(session)
}

// Broadcast enqueues frame onto every current member's outbound queue.
// Delivery order across members is unspecified; delivery order for a single
// member's own frames is preserved by its own Write implementation.
func (r *Room) Broadcast(frame []byte) {
	r.teamA.each(func(m Member, _ *player.Player) { m.Write(frame) })
	r.teamB.each(func(m Member, _ *player.Player) { m.Write(frame) })
}

// Players returns the concatenation of team A then team B members, in join
// order and in the JSON wire shape, for use in a snapshot.
func (r *Room) Players() []player.JSON {
	out := make([]player.JSON, 0, r.teamA.len()+r.teamB.len())
	r.teamA.each(func(_ Member, p *player.Player) { out = append(out, p.ToJSON()) })
	r.teamB.each(func(_ Member, p *player.Player) { out = append(out, p.ToJSON()) })
	return out
}

// Size returns the total number of members across both teams.
func (r *Room) Size() int {
	return r.teamA.len() + r.teamB.len()
}

// Snapshot returns the room's current `{players, rays}` state.
func (r *Room) Snapshot() wire.Snapshot {
	return wire.Snapshot{
		Players: r.Players(),
		Rays:    []struct{}{},
	}
}
