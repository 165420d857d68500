// Package tokenstore keeps reconnection tokens captured from joined rooms
// so a later process can resume a session.
//
// Stores are keyed by room id and must be safe for concurrent use.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

// Store errors.
var (
	ErrNotFound = errors.New("tokenstore: entry not found")
	ErrClosed   = errors.New("tokenstore: store closed")
)

// DefaultTTL is how long an entry lives when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// Entry is one captured reconnection token.
type Entry struct {
	RoomID            string    `json:"roomId"`
	ProcessID         string    `json:"processId,omitempty"`
	RoomType          string    `json:"roomType,omitempty"`
	SessionID         string    `json:"sessionId"`
	ReconnectionToken string    `json:"reconnectionToken"`
	SavedAt           time.Time `json:"savedAt"`
}

// Store persists entries.
type Store interface {
	// Save stores e, replacing any entry for the same room.
	Save(ctx context.Context, e Entry) error

	// Load returns the entry for roomID, or ErrNotFound.
	Load(ctx context.Context, roomID string) (Entry, error)

	// Delete removes the entry for roomID. Deleting a missing entry is
	// not an error.
	Delete(ctx context.Context, roomID string) error

	// List returns every live entry, newest first.
	List(ctx context.Context) ([]Entry, error)

	// Close releases the store's resources.
	Close() error
}
