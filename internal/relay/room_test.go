package relay

import "testing"

type fakeMember struct {
	addr string
	out  [][]byte
}

func (m *fakeMember) Write(frame []byte)     { m.out = append(m.out, frame) }
func (m *fakeMember) RemoteEndpoint() string { return m.addr }

func TestJoinAssignsSmallerTeamOnRandom(t *testing.T) {
	room := New("lobby")

	a := &fakeMember{addr: "a"}
	pa, ok := room.Join(a, "alice", TeamRandom)
	if !ok || pa.TeamID != 1 {
		t.Fatalf("expected first random join to land on team B (ties go to B), got %+v ok=%v", pa, ok)
	}

	b := &fakeMember{addr: "b"}
	pb, ok := room.Join(b, "bob", TeamRandom)
	if !ok || pb.TeamID != 0 {
		t.Fatalf("expected second random join to land on the smaller team A, got %+v ok=%v", pb, ok)
	}
}

func TestJoinRejectsDuplicateMember(t *testing.T) {
	room := New("lobby")
	m := &fakeMember{addr: "a"}
	if _, ok := room.Join(m, "alice", TeamA); !ok {
		t.Fatal("expected first join to succeed")
	}
	if _, ok := room.Join(m, "alice", TeamA); ok {
		t.Fatal("expected duplicate join to fail")
	}
}

func TestJoinRejectsFullTeam(t *testing.T) {
	room := New("lobby")
	for i := 0; i < KTeamSize; i++ {
		m := &fakeMember{addr: string(rune('a' + i))}
		if _, ok := room.Join(m, "p", TeamA); !ok {
			t.Fatalf("expected join %d to succeed", i)
		}
	}
	overflow := &fakeMember{addr: "overflow"}
	if _, ok := room.Join(overflow, "p", TeamA); ok {
		t.Fatal("expected team A to reject a 6th member")
	}
}

func TestPlayersPreservesInsertionOrderAcrossTeams(t *testing.T) {
	room := New("lobby")
	first := &fakeMember{addr: "first"}
	second := &fakeMember{addr: "second"}
	third := &fakeMember{addr: "third"}

	if _, ok := room.Join(first, "first", TeamA); !ok {
		t.Fatal("join first failed")
	}
	if _, ok := room.Join(second, "second", TeamB); !ok {
		t.Fatal("join second failed")
	}
	if _, ok := room.Join(third, "third", TeamA); !ok {
		t.Fatal("join third failed")
	}

	got := room.Players()
	if len(got) != 3 {
		t.Fatalf("expected 3 players, got %d", len(got))
	}
	// Team A members (first, third) must precede team B members (second),
	// each group in join order.
	if got[0].Nick != "first" || got[1].Nick != "third" || got[2].Nick != "second" {
		t.Fatalf("unexpected player order: %+v", got)
	}
}

func TestLeaveRemovesMemberAndAllowsRejoin(t *testing.T) {
	room := New("lobby")
	m := &fakeMember{addr: "a"}
	if _, ok := room.Join(m, "alice", TeamA); !ok {
		t.Fatal("join failed")
	}
	if !room.Leave(m) {
		t.Fatal("expected leave to succeed")
	}
	if room.Size() != 0 {
		t.Fatalf("expected empty room after leave, got size %d", room.Size())
	}
	if _, ok := room.Join(m, "alice", TeamA); !ok {
		t.Fatal("expected rejoin after leave to succeed")
	}
}

func TestBroadcastReachesEveryMember(t *testing.T) {
	room := New("lobby")
	a := &fakeMember{addr: "a"}
	b := &fakeMember{addr: "b"}
	room.Join(a, "alice", TeamA)
	room.Join(b, "bob", TeamB)

	room.Broadcast([]byte("hi"))

	if len(a.out) != 1 || string(a.out[0]) != "hi" {
		t.Fatalf("member a did not receive broadcast: %+v", a.out)
	}
	if len(b.out) != 1 || string(b.out[0]) != "hi" {
		t.Fatalf("member b did not receive broadcast: %+v", b.out)
	}
}
