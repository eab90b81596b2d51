package ids

import (
	"strings"

	"github.com/google/uuid"
)

// NewThreadID returns a unique thread identifier.
func NewThreadID() string {
	return "th_" + compact()
}

// NewMessageID returns a unique message identifier.
func NewMessageID() string {
	return "msg_" + compact()
}

func compact() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
