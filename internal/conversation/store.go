// Package conversation retains the recent message history used as context
// for follow-up requests.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/af-corp/relay/internal/types"
)

const (
	DefaultMaxMessages = 20
	DefaultTTL         = 7 * 24 * time.Hour
)

// Key identifies one conversation.
type Key struct {
	TeamID    string
	ChannelID string
	UserID    string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.TeamID, k.ChannelID, k.UserID)
}

// Store keeps at most MaxMessages entries per key, newest last.
type Store interface {
	// Load returns the stored context, or an empty context when none exists.
	Load(ctx context.Context, key Key) (*types.ConversationContext, error)
	// Append adds messages in order and trims to the newest entries.
	Append(ctx context.Context, key Key, tokens int, msgs ...types.Message) error
	Clear(ctx context.Context, key Key) error
}

// Options configures both store implementations.
type Options struct {
	MaxMessages int
	TTL         time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxMessages <= 0 {
		o.MaxMessages = DefaultMaxMessages
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	return o
}

// Turn returns the user and assistant messages for one completed exchange.
func Turn(prompt, answer string) []types.Message {
	return []types.Message{
		{Role: types.RoleUser, Content: prompt},
		{Role: types.RoleAssistant, Content: answer},
	}
}
