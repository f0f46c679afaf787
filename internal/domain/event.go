package domain

import "time"

// EventKind classifies a single inbound unit.
type EventKind string

const (
	EventText  EventKind = "text"
	EventMedia EventKind = "media"
)

// KeySpace separates the two aggregation namespaces. A user identity and an
// album identity never collide even if their raw IDs happen to be equal.
type KeySpace string

const (
	KeyUser  KeySpace = "user"
	KeyAlbum KeySpace = "album"
)

// AggregationKey identifies one burst of events: either a user (freeform
// text) or an album (a group of photos sent together).
type AggregationKey struct {
	Space KeySpace
	ID    string
}

func UserKey(id string) AggregationKey  { return AggregationKey{Space: KeyUser, ID: id} }
func AlbumKey(id string) AggregationKey { return AggregationKey{Space: KeyAlbum, ID: id} }

func (k AggregationKey) String() string { return string(k.Space) + ":" + k.ID }

// Event is a single inbound unit from the transport. It is owned by exactly
// one aggregation bucket from arrival until that bucket flushes.
type Event struct {
	Kind       EventKind
	Text       string // message text, or caption for media
	Attachment string // opaque attachment reference, resolvable to bytes
	AlbumID    string // media group identity; empty for standalone events
	ChatID     string
	SenderID   string
	SenderName string
	ReceivedAt time.Time
}
