package hub

import (
	"testing"

	"github.com/kamilrusin/fusion-relay/internal/wire"
)

type fakeConn struct {
	addr    string
	out     [][]byte
	handler Handler
	closed  bool
}

func (c *fakeConn) Write(frame []byte)       { c.out = append(c.out, frame) }
func (c *fakeConn) RemoteEndpoint() string   { return c.addr }
func (c *fakeConn) SetHandler(h Handler)     { c.handler = h }
func (c *fakeConn) Close()                   { c.closed = true }
func (c *fakeConn) CloseWithFrame(f []byte)  { c.out = append(c.out, f); c.closed = true }

func TestRegisterReturnsUnjoinedHandler(t *testing.T) {
	reg := New(discardLogger(), nil)
	conn := &fakeConn{addr: "a"}
	h := reg.Register(conn)
	if h != reg.UnjoinedHandler() {
		t.Fatal("expected Register to return the unjoined handler")
	}
}

func TestJoinFrameAttachesToRoomAndSwitchesHandler(t *testing.T) {
	reg := New(discardLogger(), nil)
	conn := &fakeConn{addr: "a"}
	h := reg.Register(conn)

	h.HandleFrame(conn, wire.JoinFrame{ID: 7, Nick: "alice", Game: "lobby"})

	if conn.handler != reg.roomHandler {
		t.Fatal("expected handler to switch to roomHandler after a successful join")
	}
	if len(conn.out) != 1 {
		t.Fatalf("expected exactly one response frame, got %d", len(conn.out))
	}
}

func TestSecondJoinerLandsOnDistinctTeamAndBothSeeUpdate(t *testing.T) {
	reg := New(discardLogger(), nil)
	alice := &fakeConn{addr: "alice"}
	bob := &fakeConn{addr: "bob"}

	reg.Register(alice).HandleFrame(alice, wire.JoinFrame{ID: 1, Nick: "alice", Game: "lobby"})
	reg.Register(bob).HandleFrame(bob, wire.JoinFrame{ID: 2, Nick: "bob", Game: "lobby"})

	reg.roomsMtx.Lock()
	room := reg.rooms["lobby"]
	reg.roomsMtx.Unlock()
	pa, okA := room.Player(alice)
	pb, okB := room.Player(bob)
	if !okA || !okB || pa.TeamID == pb.TeamID {
		t.Fatalf("expected alice and bob on distinct teams, got alice=%+v bob=%+v", pa, pb)
	}

	aliceOut := len(alice.out)
	bobOut := len(bob.out)
	bob.handler.HandleFrame(bob, wire.UpdateFrame{TeamID: 1, Position: [2]float64{3, 4}, Angle: 1})

	if len(alice.out) != aliceOut+1 {
		t.Fatalf("expected alice to receive the update broadcast, frames=%d", len(alice.out))
	}
	if len(bob.out) != bobOut+1 {
		t.Fatalf("expected bob to receive the update broadcast, frames=%d", len(bob.out))
	}
}

func TestHandleLeaveReturnsSessionToUnjoined(t *testing.T) {
	reg := New(discardLogger(), nil)
	conn := &fakeConn{addr: "a"}

	reg.Register(conn).HandleFrame(conn, wire.JoinFrame{ID: 1, Nick: "alice", Game: "lobby"})
	conn.handler.HandleFrame(conn, wire.LeaveFrame{})

	if conn.handler != reg.UnjoinedHandler() {
		t.Fatal("expected handler to revert to unjoined after leave")
	}

	reg.roomsMtx.Lock()
	_, stillExists := reg.rooms["lobby"]
	reg.roomsMtx.Unlock()
	if stillExists {
		t.Fatal("expected the now-empty room to be garbage collected")
	}
}

func TestUnregisterAfterShutdownIsNoop(t *testing.T) {
	reg := New(discardLogger(), nil)
	conn := &fakeConn{addr: "a"}
	reg.Register(conn).HandleFrame(conn, wire.JoinFrame{ID: 1, Nick: "alice", Game: "lobby"})

	reg.Shutdown()
	reg.Unregister(conn)

	reg.sessionRoomMtx.Lock()
	_, stillTracked := reg.sessionRoom[conn]
	reg.sessionRoomMtx.Unlock()
	if !stillTracked {
		t.Fatal("expected Unregister to be a no-op once the registry is shutting down")
	}
}
