// Package wire parses, validates, and serializes the JSON frames exchanged
// between a client and the relay, per the WebSocket frame schema of the
// specification. Validation is strict: anything that doesn't match one of
// the known shapes exactly is rejected rather than coerced to a default.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/kamilrusin/fusion-relay/internal/player"
)

var validate = validator.New()

// FrameType enumerates the client-originated frame kinds the codec accepts.
type FrameType string

const (
	TypeJoin   FrameType = "join"
	TypeUpdate FrameType = "update"
	TypeLeave  FrameType = "leave"
)

// Frame is implemented by every inbound frame the codec can produce.
type Frame interface {
	FrameType() FrameType
}

// JoinFrame is the client's request to join a named room.
type JoinFrame struct {
	ID   uint64 `json:"id" validate:"required"`
	Nick string `json:"nick" validate:"required"`
	Game string `json:"game" validate:"required"`
}

func (JoinFrame) FrameType() FrameType { return TypeJoin }

// UpdateFrame carries a joined client's latest position and facing angle.
type UpdateFrame struct {
	TeamID   uint8      `json:"team_id" validate:"lte=1"`
	Position [2]float64 `json:"position"`
	Angle    float64    `json:"angle"`
}

func (UpdateFrame) FrameType() FrameType { return TypeUpdate }

// LeaveFrame asks the server to remove the sender from its current room.
type LeaveFrame struct{}

func (LeaveFrame) FrameType() FrameType { return TypeLeave }

// ErrorFrame is the server's response to a frame that failed validation.
// Closed is advisory: true means the caller should close the connection
// after sending this frame.
type ErrorFrame struct {
	Type    string `json:"type"`
	Closed  bool   `json:"closed"`
	Message string `json:"message"`
}

func (e *ErrorFrame) Error() string { return e.Message }

func newError(msg string) *ErrorFrame {
	return &ErrorFrame{Type: "error", Closed: true, Message: msg}
}

// Verify parses raw bytes as a single JSON document and validates it against
// the schema for its declared type. On success it returns the typed Frame.
// On failure it returns a nil Frame and a populated *ErrorFrame describing
// what went wrong, ready to be serialized back to the client.
func Verify(raw []byte) (Frame, *ErrorFrame) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, newError(`One of the packages didn't contain a valid JSON.`)
	}

	rawType, ok := generic["type"]
	if !ok {
		return nil, newError(`One of the packages didn't have a "type" field.`)
	}

	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return nil, newError(`One of the packages didn't have a "type" field.`)
	}

	switch FrameType(typ) {
	case TypeJoin:
		if len(generic) != 4 {
			return nil, newError(`A "JOIN" was ill-formed.`)
		}
		var f JoinFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, newError(`A "JOIN" was ill-formed.`)
		}
		if err := validate.Struct(f); err != nil {
			return nil, newError(`A "JOIN" was ill-formed.`)
		}
		return f, nil

	case TypeUpdate:
		if _, ok := generic["team_id"]; !ok {
			return nil, newError(`A "UPDATE" was ill-formed.`)
		}
		if _, ok := generic["position"]; !ok {
			return nil, newError(`A "UPDATE" was ill-formed.`)
		}
		if _, ok := generic["angle"]; !ok {
			return nil, newError(`A "UPDATE" was ill-formed.`)
		}
		if len(generic) != 4 {
			return nil, newError(`A "UPDATE" was ill-formed.`)
		}
		var f UpdateFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, newError(`A "UPDATE" was ill-formed.`)
		}
		if err := validate.Struct(f); err != nil {
			return nil, newError(`A "UPDATE" was ill-formed.`)
		}
		return f, nil

	case TypeLeave:
		if len(generic) != 1 {
			return nil, newError(`A "LEAVE" was ill-formed.`)
		}
		return LeaveFrame{}, nil

	default:
		return nil, newError(fmt.Sprintf("Unrecognized package type %q.", typ))
	}
}

// Warning is the server's reply to a frame that parsed fine but is not
// accepted in the sender's current phase.
type Warning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Closed  bool   `json:"closed"`
}

// NewWarning builds the single warning frame the dispatcher ever sends.
func NewWarning() Warning {
	return Warning{
		Type:    "warning",
		Message: "Received an unidentified package.",
		Closed:  false,
	}
}

// Snapshot is a room's `{players, rays}` state, per §4.2's GetCurrentState
// and the reserved, always-empty `rays` field discussed in §9.
type Snapshot struct {
	Players []player.JSON `json:"players"`
	Rays    []struct{}    `json:"rays"`
}

// JoinedResponse is sent to a client whose join succeeded.
type JoinedResponse struct {
	ID      uint64        `json:"id"`
	Result  string        `json:"result"`
	MyID    uint64        `json:"my_id"`
	Players []player.JSON `json:"players"`
	Rays    []struct{}    `json:"rays"`
}

// FullResponse is sent to a client whose join failed because the room/team
// was full.
type FullResponse struct {
	ID     uint64 `json:"id"`
	Result string `json:"result"`
}

// UpdateBroadcast is sent to every member of a room after any member's
// update has been applied.
type UpdateBroadcast struct {
	Type    string        `json:"type"`
	Players []player.JSON `json:"players"`
	Rays    []struct{}    `json:"rays"`
}

// NewUpdateBroadcast wraps a snapshot as the `update` broadcast frame.
func NewUpdateBroadcast(s Snapshot) UpdateBroadcast {
	return UpdateBroadcast{Type: "update", Players: s.Players, Rays: s.Rays}
}

// Marshal serializes any outbound frame value to its wire form.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
