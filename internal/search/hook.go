package search

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"mango/internal/moderation"
)

// LiveHook keeps the search index in step with moderation: whenever a
// searchable entity changes live state the public row is reindexed, and
// rows that are gone or no longer public are dropped from the index.
type LiveHook struct {
	db  *sql.DB
	svc *Service
}

func NewLiveHook(db *sql.DB, svc *Service) *LiveHook {
	return &LiveHook{db: db, svc: svc}
}

func (h *LiveHook) EntityChanged(ctx context.Context, ev moderation.Event) {
	switch ev.Kind {
	case "org":
		h.syncOrg(ctx, ev)
	case "event":
		h.syncEvent(ctx, ev)
	case "tag":
		h.syncTag(ctx, ev)
	}
}

func (h *LiveHook) syncOrg(ctx context.Context, ev moderation.Event) {
	if !ev.Live {
		h.svc.DeleteOrg(ev.ID)
		return
	}
	var r OrgRecord
	var public sql.NullBool
	err := h.db.QueryRowContext(ctx,
		`SELECT id, name, description, public FROM org WHERE id=$1`, ev.ID).
		Scan(&r.ID, &r.Name, &r.Description, &public)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !(public.Valid && public.Bool)) {
		h.svc.DeleteOrg(ev.ID)
		return
	}
	if err != nil {
		log.Printf("search: load org %d: %v", ev.ID, err)
		return
	}
	h.svc.IndexOrg(r)
}

func (h *LiveHook) syncEvent(ctx context.Context, ev moderation.Event) {
	if !ev.Live {
		h.svc.DeleteEvent(ev.ID)
		return
	}
	var r EventRecord
	var start sql.NullString
	var public sql.NullBool
	err := h.db.QueryRowContext(ctx,
		`SELECT id, name, description, start_date::text, public FROM event WHERE id=$1`, ev.ID).
		Scan(&r.ID, &r.Name, &r.Description, &start, &public)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !(public.Valid && public.Bool)) {
		h.svc.DeleteEvent(ev.ID)
		return
	}
	if err != nil {
		log.Printf("search: load event %d: %v", ev.ID, err)
		return
	}
	r.StartDate = start.String
	h.svc.IndexEvent(r)
}

func (h *LiveHook) syncTag(ctx context.Context, ev moderation.Event) {
	if !ev.Live {
		h.svc.DeleteTag(ev.ID)
		return
	}
	var r TagRecord
	var public sql.NullBool
	err := h.db.QueryRowContext(ctx,
		`SELECT id, name, description, public FROM tag WHERE id=$1`, ev.ID).
		Scan(&r.ID, &r.Name, &r.Description, &public)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !(public.Valid && public.Bool)) {
		h.svc.DeleteTag(ev.ID)
		return
	}
	if err != nil {
		log.Printf("search: load tag %d: %v", ev.ID, err)
		return
	}
	h.svc.IndexTag(r)
}
