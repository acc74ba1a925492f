package wire

import "testing"

func TestVerifyJoinOK(t *testing.T) {
	f, errFrame := Verify([]byte(`{"type":"join","id":1,"nick":"alice","game":"lobby"}`))
	if errFrame != nil {
		t.Fatalf("unexpected error frame: %+v", errFrame)
	}
	jf, ok := f.(JoinFrame)
	if !ok {
		t.Fatalf("expected JoinFrame, got %T", f)
	}
	if jf.ID != 1 || jf.Nick != "alice" || jf.Game != "lobby" {
		t.Fatalf("unexpected join frame: %+v", jf)
	}
}

func TestVerifyJoinMissingField(t *testing.T) {
	_, errFrame := Verify([]byte(`{"type":"join","id":1,"nick":"alice"}`))
	if errFrame == nil {
		t.Fatal("expected error frame for missing field")
	}
	if errFrame.Message != `A "JOIN" was ill-formed.` {
		t.Fatalf("unexpected message: %q", errFrame.Message)
	}
	if !errFrame.Closed {
		t.Fatal("expected ill-formed join to close the connection")
	}
}

func TestVerifyUpdateOK(t *testing.T) {
	f, errFrame := Verify([]byte(`{"type":"update","team_id":1,"position":[1,2],"angle":0.5}`))
	if errFrame != nil {
		t.Fatalf("unexpected error frame: %+v", errFrame)
	}
	uf, ok := f.(UpdateFrame)
	if !ok {
		t.Fatalf("expected UpdateFrame, got %T", f)
	}
	if uf.TeamID != 1 || uf.Position[0] != 1 || uf.Position[1] != 2 || uf.Angle != 0.5 {
		t.Fatalf("unexpected update frame: %+v", uf)
	}
}

func TestVerifyUpdateRejectsOutOfRangeTeam(t *testing.T) {
	_, errFrame := Verify([]byte(`{"type":"update","team_id":2,"position":[1,2],"angle":0}`))
	if errFrame == nil {
		t.Fatal("expected error frame for out-of-range team_id")
	}
}

func TestVerifyLeaveOK(t *testing.T) {
	f, errFrame := Verify([]byte(`{"type":"leave"}`))
	if errFrame != nil {
		t.Fatalf("unexpected error frame: %+v", errFrame)
	}
	if _, ok := f.(LeaveFrame); !ok {
		t.Fatalf("expected LeaveFrame, got %T", f)
	}
}

func TestVerifyLeaveRejectsExtraFields(t *testing.T) {
	_, errFrame := Verify([]byte(`{"type":"leave","extra":true}`))
	if errFrame == nil {
		t.Fatal("expected error frame for extra field on leave")
	}
}

func TestVerifyRejectsInvalidJSON(t *testing.T) {
	_, errFrame := Verify([]byte(`not json`))
	if errFrame == nil || errFrame.Message != `One of the packages didn't contain a valid JSON.` {
		t.Fatalf("unexpected error frame: %+v", errFrame)
	}
}

func TestVerifyRejectsMissingType(t *testing.T) {
	_, errFrame := Verify([]byte(`{"id":1}`))
	if errFrame == nil || errFrame.Message != `One of the packages didn't have a "type" field.` {
		t.Fatalf("unexpected error frame: %+v", errFrame)
	}
}

func TestVerifyRejectsUnrecognizedType(t *testing.T) {
	_, errFrame := Verify([]byte(`{"type":"teleport"}`))
	if errFrame == nil {
		t.Fatal("expected error frame for unrecognized type")
	}
}
