package store

import "time"

// DeclinedMarker replaces content on versions synthesized when a moderator
// dismisses a pending suggestion that never went live.
const DeclinedMarker = "DECLINED"

type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Moderator    bool
	Locked       bool
	CreatedAt    time.Time
	LastSeenAt   time.Time
}

// Entity is a live row: the current, queryable state of one identity.
// Absence of a live row means "never created" or "deleted/declined".
type Entity[C any] struct {
	ID               int64
	Content          C
	ModerationUserID int64
	ATime            float64
	Visibility       Visibility
}

// Version is one immutable audit-ledger entry. Existence false marks a
// decline or deletion rather than a content state.
type Version[C any] struct {
	ID               int64
	EntityID         int64
	Content          C
	ModerationUserID int64
	ATime            float64
	Existence        bool
	Visibility       Visibility
}

// VersionMeta is the kind-independent view of a version row used by the
// cross-kind components (cascade, acceptor, queue).
type VersionMeta struct {
	ID               int64
	EntityID         int64
	ModerationUserID int64
	AuthorModerator  bool
	ATime            float64
	Existence        bool
	Visibility       Visibility
}

// QueueItem is one pending entity in the moderation queue: its latest
// version was authored by a non-moderator and the live row is missing or
// stale.
type QueueItem struct {
	Kind      string  `json:"kind"`
	EntityID  int64   `json:"entityId"`
	VersionID int64   `json:"versionId"`
	ATime     float64 `json:"aTime"`
	Author    string  `json:"author"`
	HasLive   bool    `json:"hasLive"`
}

// LinkPair identifies one (a, b) relation instance.
type LinkPair struct {
	AID int64
	BID int64
}

// LinkSuggestion is a pending cross-link in the moderation queue, annotated
// with whether each end currently exists live so the UI can distinguish
// brand-new children from links between existing entities.
type LinkSuggestion struct {
	AKind string  `json:"aKind"`
	BKind string  `json:"bKind"`
	AID   int64   `json:"aId"`
	BID   int64   `json:"bId"`
	ATime float64 `json:"aTime"`
	ALive bool    `json:"aLive"`
	BLive bool    `json:"bLive"`
}

// HistoryItem is one entry of the unified audit feed. VersionID is -1 for
// link-creation events, which have no version row of their own.
type HistoryItem struct {
	Kind       string  `json:"kind"`
	EntityID   int64   `json:"entityId"`
	VersionID  int64   `json:"versionId"`
	ATime      float64 `json:"aTime"`
	Existence  bool    `json:"existence"`
	HasLive    bool    `json:"hasLive"`
	Author     string  `json:"author"`
	ParentKind string  `json:"parentKind,omitempty"`
	ParentID   int64   `json:"parentId,omitempty"`
	ParentName string  `json:"parentName,omitempty"`
}

// ParentRef names the live parent an entity is attached to, for display
// grouping in the history feed.
type ParentRef struct {
	Kind string
	ID   int64
	Name string
}

// Content types, one per entity kind. These are the full snapshot columns
// carried by both the live and the version tables.

type Org struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Event struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
}

type Address struct {
	Postal    string   `json:"postal"`
	Source    string   `json:"source"`
	Lookup    string   `json:"lookup"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type Contact struct {
	Medium      string `json:"medium"`
	Text        string `json:"text"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

type Note struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
