package chat

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/apperr"
)

// IDSeparator joins the two sorted participant ids of a direct conversation.
const IDSeparator = "_"

// Type is the conversation type.
type Type string

const (
	TypeDirect Type = "direct"
	TypeGroup  Type = "group"
)

var (
	ErrMissingConversationID = apperr.Validation("conversationId is required")
	ErrMissingOtherUser      = apperr.Validation("otherUserId is required")
	ErrSelfConversation      = apperr.Validation("cannot start a conversation with yourself")
	ErrSeparatorInUserID     = apperr.Validation("user id cannot contain the conversation separator")
	ErrConversationNotFound  = apperr.NotFound("conversation not found")
	ErrNotParticipant        = apperr.Forbidden("not a participant of this conversation")
)

// Participant is one member of a conversation.
type Participant struct {
	UserID   string
	UserName string
	UserRole user.Role
	Avatar   string
}

// LastMessage is the denormalized preview kept on the conversation.
type LastMessage struct {
	Content   string
	SenderID  string
	Timestamp time.Time
}

// Conversation is the domain entity corresponding to the `conversations` table.
type Conversation struct {
	ID           string
	Participants []Participant
	Type         Type
	Name         string
	LastMessage  *LastMessage
	UnreadCounts map[string]int
	Archived     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DirectConversationID sorts the two user ids and joins them with IDSeparator.
// It is commutative, and distinct pairs of separator-free ids never collide.
func DirectConversationID(a, b string) (string, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" {
		return "", user.ErrMissingUserID
	}
	if b == "" {
		return "", ErrMissingOtherUser
	}
	if a == b {
		return "", ErrSelfConversation
	}
	if strings.Contains(a, IDSeparator) || strings.Contains(b, IDSeparator) {
		return "", ErrSeparatorInUserID
	}
	pair := SortedPair(a, b)
	return pair[0] + IDSeparator + pair[1], nil
}

// SortedPair returns the two ids in lexicographic order.
func SortedPair(a, b string) [2]string {
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

// ParticipantsFromID recovers the pair encoded in a direct conversation id.
func ParticipantsFromID(conversationID string) ([2]string, bool) {
	parts := strings.Split(conversationID, IDSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || parts[0] >= parts[1] {
		return [2]string{}, false
	}
	return [2]string{parts[0], parts[1]}, true
}

// NewDirectConversation builds a two-party conversation with its deterministic id.
func NewDirectConversation(self, other Participant) (*Conversation, error) {
	id, err := DirectConversationID(self.UserID, other.UserID)
	if err != nil {
		return nil, err
	}
	self.UserID = strings.TrimSpace(self.UserID)
	other.UserID = strings.TrimSpace(other.UserID)

	now := time.Now().UTC()
	return &Conversation{
		ID:           id,
		Participants: []Participant{self, other},
		Type:         TypeDirect,
		UnreadCounts: map[string]int{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasParticipant reports whether userID is a member of the conversation.
func (conversation *Conversation) HasParticipant(userID string) bool {
	return slices.ContainsFunc(conversation.Participants, func(p Participant) bool {
		return p.UserID == userID
	})
}

// ParticipantIDs returns member ids sorted lexicographically.
func (conversation *Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(conversation.Participants))
	for _, p := range conversation.Participants {
		ids = append(ids, p.UserID)
	}
	slices.Sort(ids)
	return ids
}

// OtherParticipant returns the first member that is not userID.
func (conversation *Conversation) OtherParticipant(userID string) (Participant, bool) {
	for _, p := range conversation.Participants {
		if p.UserID != userID {
			return p, true
		}
	}
	return Participant{}, false
}

// Preview truncates content to at most n runes.
func Preview(content string, n int) string {
	if n <= 0 || utf8.RuneCountInString(content) <= n {
		return content
	}
	runes := []rune(content)
	return string(runes[:n])
}

// Clone returns a deep copy.
func (conversation *Conversation) Clone() *Conversation {
	out := *conversation
	out.Participants = slices.Clone(conversation.Participants)
	if conversation.LastMessage != nil {
		lm := *conversation.LastMessage
		out.LastMessage = &lm
	}
	out.UnreadCounts = make(map[string]int, len(conversation.UnreadCounts))
	for k, v := range conversation.UnreadCounts {
		out.UnreadCounts[k] = v
	}
	return &out
}
