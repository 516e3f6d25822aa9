package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/chartstudio/collab/internal/model"
)

func TestFrameRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("cursor frames preserve coordinates and chart context", prop.ForAll(
		func(x, y float64, chartID, userID string) bool {
			raw, err := Encode(MessageTypeCursorMove, CursorMovePayload{
				UserID: userID,
				Cursor: model.CursorPosition{X: x, Y: y, ChartID: chartID},
			})
			if err != nil {
				return false
			}

			frame, err := Decode(raw)
			if err != nil || frame.Type != MessageTypeCursorMove {
				return false
			}

			var p CursorMovePayload
			if err := DecodePayload(frame, &p); err != nil {
				return false
			}
			return p.UserID == userID && p.Cursor.X == x && p.Cursor.Y == y && p.Cursor.ChartID == chartID
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("comment frames preserve text verbatim", prop.ForAll(
		func(text, userID string) bool {
			raw, err := Encode(MessageTypeCommentAdd, CommentAddPayload{
				Comment: &model.Comment{ID: "c1", UserID: userID, Text: text},
			})
			if err != nil {
				return false
			}

			frame, err := Decode(raw)
			if err != nil {
				return false
			}

			var p CommentAddPayload
			if err := DecodePayload(frame, &p); err != nil {
				return false
			}
			return p.Comment.Text == text && p.Comment.UserID == userID
		},
		gen.AnyString(),
		gen.AlphaString(),
	))

	properties.Property("error frames preserve code and message", prop.ForAll(
		func(code, message string) bool {
			raw, err := Encode(MessageTypeError, ErrorPayload{Code: code, Message: message})
			if err != nil {
				return false
			}
			frame, err := Decode(raw)
			if err != nil {
				return false
			}
			var p ErrorPayload
			if err := DecodePayload(frame, &p); err != nil {
				return false
			}
			return p.Code == code && p.Message == message
		},
		gen.AlphaString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "{not json"},
		{"empty object", "{}"},
		{"missing type", `{"data":{"x":1}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode([]byte(tc.raw)); err == nil {
				t.Fatalf("expected error decoding %q", tc.raw)
			}
		})
	}
}

func TestDecodeAcceptsFrameWithoutData(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Type != MessageTypePing {
		t.Fatalf("expected ping, got %s", frame.Type)
	}
}

func TestInitFrameCarriesSession(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	sess := &model.CollaborationSession{
		ID:          "s1",
		WorkspaceID: "w1",
		Users: []*model.CollaborationUser{
			{ID: "u1", Name: "Dana", Color: "#3B82F6", Active: true, LastActive: now},
		},
		CreatedAt:  now,
		LastActive: now,
	}

	raw, err := Encode(MessageTypeInit, InitPayload{Session: sess})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	frame, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	var p InitPayload
	if err := DecodePayload(frame, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Session.WorkspaceID != "w1" || len(p.Session.Users) != 1 || p.Session.Users[0].Name != "Dana" {
		t.Fatalf("session not preserved: %+v", p.Session)
	}
}

func TestWorkspaceURL(t *testing.T) {
	got := WorkspaceURL("ws://localhost:8080/", "ws-42", "user-7")
	want := "ws://localhost:8080/ws/workspace/ws-42/user/user-7"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFrameWireShape(t *testing.T) {
	raw, err := Encode(MessageTypeLeave, LeavePayload{UserID: "u9"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := generic["type"]; !ok {
		t.Fatal("frame missing type field")
	}
	if _, ok := generic["data"]; !ok {
		t.Fatal("frame missing data field")
	}
}
