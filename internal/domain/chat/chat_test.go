package chat

import (
	"errors"
	"strings"
	"testing"
	"time"

	"fleet-realtime/internal/domain/user"
)

func TestDirectConversationID(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		want    string
		wantErr error
	}{
		{"sorted", "alice", "bob", "alice_bob", nil},
		{"reversed", "bob", "alice", "alice_bob", nil},
		{"numeric", "64b2", "64a9", "64a9_64b2", nil},
		{"self", "alice", "alice", "", ErrSelfConversation},
		{"missing other", "alice", " ", "", ErrMissingOtherUser},
		{"missing self", "", "bob", "", user.ErrMissingUserID},
		{"separator", "a_b", "c", "", ErrSeparatorInUserID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DirectConversationID(tt.a, tt.b)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DirectConversationID() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DirectConversationID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DirectConversationID(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDirectConversationIDCommutes(t *testing.T) {
	pairs := [][2]string{{"u1", "u2"}, {"Z", "a"}, {"507f1f77", "507f191e"}}
	for _, p := range pairs {
		ab, _ := DirectConversationID(p[0], p[1])
		ba, _ := DirectConversationID(p[1], p[0])
		if ab != ba {
			t.Errorf("id(%q,%q) = %q but id(%q,%q) = %q", p[0], p[1], ab, p[1], p[0], ba)
		}
		got, ok := ParticipantsFromID(ab)
		if !ok || got != SortedPair(p[0], p[1]) {
			t.Errorf("ParticipantsFromID(%q) = %v, %v", ab, got, ok)
		}
	}
}

func TestParticipantsFromIDRejects(t *testing.T) {
	for _, id := range []string{"", "solo", "a_b_c", "b_a", "_b", "a_"} {
		if _, ok := ParticipantsFromID(id); ok {
			t.Errorf("ParticipantsFromID(%q) should fail", id)
		}
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("é", 150)
	if got := Preview(long, 100); len([]rune(got)) != 100 {
		t.Errorf("Preview() kept %d runes, want 100", len([]rune(got)))
	}
	if got := Preview("short", 100); got != "short" {
		t.Errorf("Preview() = %q, want %q", got, "short")
	}
}

func TestNewMessage(t *testing.T) {
	sender := user.Identity{ID: "a", Name: "Ann", Role: user.RoleManager}

	if _, err := NewMessage("m1", "a_b", sender, "b", "   \n\t", nil); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("whitespace content error = %v, want ErrEmptyContent", err)
	}
	if _, err := NewMessage("m1", "a_b", sender, "", "hi", nil); !errors.Is(err, ErrMissingRecipient) {
		t.Errorf("missing recipient error = %v, want ErrMissingRecipient", err)
	}

	// content is validated trimmed but stored as sent
	msg, err := NewMessage("m1", "a_b", sender, "b", "  hello ", nil)
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	if msg.Content != "  hello " || msg.SenderName != "Ann" || msg.Read {
		t.Errorf("NewMessage() = %+v", msg)
	}
}

func TestMessageTransitionsAreIdempotent(t *testing.T) {
	msg := &Message{ID: "m1", SenderID: "a", RecipientID: "b"}
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if !msg.MarkRead(first) {
		t.Fatal("first MarkRead should change state")
	}
	if msg.MarkRead(first.Add(time.Hour)) {
		t.Error("second MarkRead should be a no-op")
	}
	if !msg.ReadAt.Equal(first) {
		t.Errorf("ReadAt = %v, want %v", msg.ReadAt, first)
	}

	if !msg.SoftDelete(first) || msg.SoftDelete(first) {
		t.Error("SoftDelete should change state exactly once")
	}
	if err := msg.CanDelete("b"); !errors.Is(err, ErrNotSender) {
		t.Errorf("CanDelete(recipient) = %v, want ErrNotSender", err)
	}
	if err := msg.CanMarkRead("a"); !errors.Is(err, ErrNotRecipient) {
		t.Errorf("CanMarkRead(sender) = %v, want ErrNotRecipient", err)
	}
}

func TestConversationHelpers(t *testing.T) {
	conv, err := NewDirectConversation(
		Participant{UserID: "zed", UserName: "Zed", UserRole: user.RoleDriver},
		Participant{UserID: "amy", UserName: "Amy", UserRole: user.RoleDispatcher},
	)
	if err != nil {
		t.Fatalf("NewDirectConversation() error = %v", err)
	}
	if conv.ID != "amy_zed" || conv.Type != TypeDirect {
		t.Errorf("conversation = %+v", conv)
	}
	if !conv.HasParticipant("amy") || conv.HasParticipant("bob") {
		t.Error("HasParticipant() misreports membership")
	}
	if ids := conv.ParticipantIDs(); ids[0] != "amy" || ids[1] != "zed" {
		t.Errorf("ParticipantIDs() = %v", ids)
	}
	if other, ok := conv.OtherParticipant("zed"); !ok || other.UserID != "amy" {
		t.Errorf("OtherParticipant() = %+v, %v", other, ok)
	}
}
