package livecache

import (
	"context"
	"time"
)

// Default TTLs for the live view.
//
// Active session blobs expire unless renewed: every mutating coordinator
// operation MUST rewrite the blob with a fresh TTL, or the live view silently
// expires out from under an otherwise-active session. Treat a missed renewal
// as a defect, not a tuning knob.
const (
	ActiveSessionTTL = 3600 * time.Second
	MailboxTTL       = 300 * time.Second
)

// Cache is the fast-path distributed store backing both coordinators.
//
// It exposes primitives, not session semantics. All operations must be safe
// under concurrent access from multiple coordinator instances; implementations
// must use the store's native atomic primitives rather than application-level
// read-modify-write round trips.
type Cache interface {
	// Whole-session blob with a renewable TTL.
	SetActiveBlob(ctx context.Context, key string, value []byte, ttl time.Duration) error
	GetActiveBlob(ctx context.Context, key string) ([]byte, bool, error)
	DeleteActiveBlob(ctx context.Context, key string) error

	// Participant membership sets.
	AddMember(ctx context.Context, setKey, member string) error
	RemoveMember(ctx context.Context, setKey, member string) error
	Cardinality(ctx context.Context, setKey string) (int64, error)
	ClearMembers(ctx context.Context, setKey string) error

	// Pointers back the user->call and channel->huddle indexes.
	// SetPointerIfAbsent is the atomic claim used for one-per-key invariants;
	// it reports whether this caller won the key.
	SetPointer(ctx context.Context, key, value string) error
	SetPointerIfAbsent(ctx context.Context, key, value string) (bool, error)
	GetPointer(ctx context.Context, key string) (string, bool, error)
	ClearPointer(ctx context.Context, key string) error

	// Signaling mailboxes: short-lived ordered queues of opaque payloads.
	// Drain returns the buffered payloads in push order and clears the
	// mailbox atomically.
	PushMailbox(ctx context.Context, mailboxKey string, payload []byte, ttl time.Duration) error
	DrainMailbox(ctx context.Context, mailboxKey string) ([][]byte, error)
}
