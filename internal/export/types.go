package export

import (
	"time"

	"mango/internal/store"
)

// Snapshot is one full dump of the public directory: every public live
// entity plus the live links between them. Pending and private rows are
// never exported.
type Snapshot struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Orgs        []OrgEntry     `json:"orgs"`
	Events      []EventEntry   `json:"events"`
	Addresses   []AddressEntry `json:"addresses"`
	Contacts    []ContactEntry `json:"contacts"`
	Notes       []NoteEntry    `json:"notes"`
	Tags        []TagEntry     `json:"tags"`
	Links       []LinkEntry    `json:"links"`
}

type OrgEntry struct {
	ID int64 `json:"id"`
	store.Org
}

type EventEntry struct {
	ID int64 `json:"id"`
	store.Event
}

type AddressEntry struct {
	ID int64 `json:"id"`
	store.Address
}

type ContactEntry struct {
	ID int64 `json:"id"`
	store.Contact
}

type NoteEntry struct {
	ID int64 `json:"id"`
	store.Note
}

type TagEntry struct {
	ID int64 `json:"id"`
	store.Tag
}

// LinkEntry names one live relation instance between two exported
// entities.
type LinkEntry struct {
	AKind string `json:"aKind"`
	AID   int64  `json:"aId"`
	BKind string `json:"bKind"`
	BID   int64  `json:"bId"`
}

// Result describes one uploaded dump object.
type Result struct {
	Object      string `json:"object"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}
