package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mango/internal/store"
)

// Loader assembles a directory snapshot.
type Loader interface {
	LoadSnapshot(ctx context.Context) (Snapshot, error)
}

// StoreLoader reads the snapshot from Postgres through the entity and
// link stores.
type StoreLoader struct {
	db        *sql.DB
	orgs      *store.EntityStore[store.Org]
	events    *store.EntityStore[store.Event]
	addresses *store.EntityStore[store.Address]
	contacts  *store.EntityStore[store.Contact]
	notes     *store.EntityStore[store.Note]
	tags      *store.EntityStore[store.Tag]
	links     []*store.LinkStore
}

func NewStoreLoader(db *sql.DB) *StoreLoader {
	l := &StoreLoader{
		db:        db,
		orgs:      store.NewEntityStore(store.Orgs),
		events:    store.NewEntityStore(store.Events),
		addresses: store.NewEntityStore(store.Addresses),
		contacts:  store.NewEntityStore(store.Contacts),
		notes:     store.NewEntityStore(store.Notes),
		tags:      store.NewEntityStore(store.Tags),
	}
	for _, kind := range store.AllLinkKinds {
		l.links = append(l.links, store.NewLinkStore(kind))
	}
	return l
}

// LoadSnapshot gathers every public live entity, then the live links
// whose both ends made it into the snapshot. Links to private entities
// are dropped so the dump never implies hidden rows.
func (l *StoreLoader) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{GeneratedAt: time.Now().UTC()}
	exported := map[string]map[int64]bool{}
	mark := func(kind string, id int64) {
		if exported[kind] == nil {
			exported[kind] = map[int64]bool{}
		}
		exported[kind][id] = true
	}

	orgs, err := l.orgs.ListLive(ctx, l.db, true)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load orgs: %w", err)
	}
	for _, e := range orgs {
		snap.Orgs = append(snap.Orgs, OrgEntry{ID: e.ID, Org: e.Content})
		mark("org", e.ID)
	}

	events, err := l.events.ListLive(ctx, l.db, true)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load events: %w", err)
	}
	for _, e := range events {
		snap.Events = append(snap.Events, EventEntry{ID: e.ID, Event: e.Content})
		mark("event", e.ID)
	}

	addresses, err := l.addresses.ListLive(ctx, l.db, true)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load addresses: %w", err)
	}
	for _, e := range addresses {
		snap.Addresses = append(snap.Addresses, AddressEntry{ID: e.ID, Address: e.Content})
		mark("address", e.ID)
	}

	contacts, err := l.contacts.ListLive(ctx, l.db, true)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load contacts: %w", err)
	}
	for _, e := range contacts {
		snap.Contacts = append(snap.Contacts, ContactEntry{ID: e.ID, Contact: e.Content})
		mark("contact", e.ID)
	}

	notes, err := l.notes.ListLive(ctx, l.db, true)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load notes: %w", err)
	}
	for _, e := range notes {
		snap.Notes = append(snap.Notes, NoteEntry{ID: e.ID, Note: e.Content})
		mark("note", e.ID)
	}

	tags, err := l.tags.ListLive(ctx, l.db, true)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load tags: %w", err)
	}
	for _, e := range tags {
		snap.Tags = append(snap.Tags, TagEntry{ID: e.ID, Tag: e.Content})
		mark("tag", e.ID)
	}

	for _, link := range l.links {
		kind := link.Kind()
		pairs, err := link.AllLive(ctx, l.db)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load links: %w", err)
		}
		for _, p := range pairs {
			if !exported[kind.AKind][p.AID] || !exported[kind.BKind][p.BID] {
				continue
			}
			snap.Links = append(snap.Links, LinkEntry{
				AKind: kind.AKind, AID: p.AID,
				BKind: kind.BKind, BID: p.BID,
			})
		}
	}

	return snap, nil
}
