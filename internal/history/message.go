package history

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Message represents a single conversational turn entry.
type Message struct {
	ID          string    `json:"id" msgpack:"id"`
	Role        Role      `json:"role" msgpack:"role"`
	Text        string    `json:"text" msgpack:"text"`
	Timestamp   time.Time `json:"timestamp" msgpack:"timestamp"`
	IsStreaming bool      `json:"isStreaming,omitempty" msgpack:"is_streaming,omitempty"`
	IsError     bool      `json:"isError,omitempty" msgpack:"is_error,omitempty"`
}

// GreetingID is the fixed id of the seeded greeting message.
const GreetingID = "welcome"

// GreetingText is the text of the seeded greeting message.
const GreetingText = "Hello, I'm JENESI Autobot. I can chat with you, search the web, or speak my responses. How can I help you today?"

// FailureText is shown in place of a reply when generation fails.
const FailureText = "I encountered a connection error. Please try again."

// NewID returns a fresh message id.
func NewID() string {
	return uuid.NewString()
}

// Greeting returns the seeded greeting stamped with now.
func Greeting(now time.Time) Message {
	return Message{
		ID:        GreetingID,
		Role:      RoleModel,
		Text:      GreetingText,
		Timestamp: now,
	}
}

// IsGreeting reports whether m is the seeded greeting.
func (m Message) IsGreeting() bool {
	return m.ID == GreetingID
}
