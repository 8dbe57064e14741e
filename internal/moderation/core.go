package moderation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mango/internal/store"
)

// KindOps is the kind-erased slice of an entity store: what the core
// needs to run cascades, queues and feeds without knowing the content
// type.
type KindOps interface {
	KindName() string
	LiveExists(ctx context.Context, q store.Querier, id int64) (bool, error)
	LatestVersionMeta(ctx context.Context, q store.Querier, id int64) (store.VersionMeta, bool, error)
	InsertDecline(ctx context.Context, q store.Querier, id, userID int64, atime float64) (int64, error)
	PendingQueue(ctx context.Context, q store.Querier, limit int) ([]store.QueueItem, error)
	VersionFeed(ctx context.Context, q store.Querier, limit int) ([]store.HistoryItem, error)
}

// LinkOps is the store surface for one link relation.
type LinkOps interface {
	Kind() store.LinkKind
	LiveExists(ctx context.Context, q store.Querier, aID, bID int64) (bool, error)
	InsertLive(ctx context.Context, q store.Querier, aID, bID int64, atime float64) error
	DeleteLive(ctx context.Context, q store.Querier, aID, bID int64) (bool, error)
	InsertVersion(ctx context.Context, q store.Querier, aID, bID int64, atime float64, existence bool) error
	LatestVersion(ctx context.Context, q store.Querier, aID, bID int64) (store.LinkVersion, bool, error)
	PendingForA(ctx context.Context, q store.Querier, aID int64) ([]store.LinkPair, error)
	PendingForB(ctx context.Context, q store.Querier, bID int64) ([]store.LinkPair, error)
	PendingSuggestions(ctx context.Context, q store.Querier, limit int) ([]store.LinkSuggestion, error)
	LiveLinksForA(ctx context.Context, q store.Querier, aID int64) ([]store.LinkPair, error)
	LiveLinksForB(ctx context.Context, q store.Querier, bID int64) ([]store.LinkPair, error)
	EventFeed(ctx context.Context, q store.Querier, limit int) ([]store.HistoryItem, error)
	ParentsOfB(ctx context.Context, q store.Querier, bIDs []int64) (map[int64]store.ParentRef, error)
}

// Core owns the moderation protocol that spans entity kinds: the
// transaction boundary, the cross-link acceptor, the delete cascade, the
// queue and the history feed. Per-kind actions go through a Workflow.
type Core struct {
	db  store.Querier
	run func(ctx context.Context, fn func(q store.Querier) error) error

	kinds     map[string]KindOps
	kindOrder []string
	links     []LinkOps
	hooks     []Hook

	now func() float64
}

func NewCore(db *sql.DB) *Core {
	return &Core{
		db:    db,
		run:   runTx(db),
		kinds: make(map[string]KindOps),
		now:   wallClock,
	}
}

func wallClock() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// runTx wraps one moderation action in one transaction: the version row,
// the live row and every cascade land together or not at all.
func runTx(db *sql.DB) func(ctx context.Context, fn func(q store.Querier) error) error {
	return func(ctx context.Context, fn func(q store.Querier) error) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin moderation tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit moderation tx: %w", err)
		}
		return nil
	}
}

// transact runs fn in one transaction and fires the collected events
// only after commit, so hooks never observe rolled-back state.
func (c *Core) transact(ctx context.Context, fn func(q store.Querier, ev *eventLog) error) error {
	var ev eventLog
	err := c.run(ctx, func(q store.Querier) error {
		return fn(q, &ev)
	})
	if err != nil {
		return err
	}
	c.fire(ctx, ev.events)
	return nil
}

func (c *Core) fire(ctx context.Context, events []Event) {
	for _, ev := range events {
		for _, h := range c.hooks {
			h.EntityChanged(ctx, ev)
		}
	}
}

func (c *Core) registerKind(ops KindOps) {
	name := ops.KindName()
	if _, ok := c.kinds[name]; !ok {
		c.kindOrder = append(c.kindOrder, name)
	}
	c.kinds[name] = ops
}

// RegisterLink adds one relation to the acceptor, cascade, queue and
// history. Registration order is the queue's display order.
func (c *Core) RegisterLink(ops LinkOps) {
	c.links = append(c.links, ops)
}

// RegisterHook adds a post-commit observer of live entity changes.
func (c *Core) RegisterHook(h Hook) {
	c.hooks = append(c.hooks, h)
}

// acceptNew runs when an entity becomes live: every pending link whose
// other end is already live is materialized. The live table's primary
// key absorbs the race where both ends become live concurrently.
func (c *Core) acceptNew(ctx context.Context, q store.Querier, kind string, id int64, atime float64, ev *eventLog) error {
	for _, link := range c.links {
		lk := link.Kind()
		if lk.AKind == kind {
			pairs, err := link.PendingForA(ctx, q, id)
			if err != nil {
				return err
			}
			for _, p := range pairs {
				live, err := c.kinds[lk.BKind].LiveExists(ctx, q, p.BID)
				if err != nil {
					return err
				}
				if !live {
					continue
				}
				if err := link.InsertLive(ctx, q, p.AID, p.BID, atime); err != nil {
					return err
				}
				ev.add(lk.BKind, p.BID, true)
			}
		}
		if lk.BKind == kind {
			pairs, err := link.PendingForB(ctx, q, id)
			if err != nil {
				return err
			}
			for _, p := range pairs {
				live, err := c.kinds[lk.AKind].LiveExists(ctx, q, p.AID)
				if err != nil {
					return err
				}
				if !live {
					continue
				}
				if err := link.InsertLive(ctx, q, p.AID, p.BID, atime); err != nil {
					return err
				}
				ev.add(lk.AKind, p.AID, true)
			}
		}
	}
	return nil
}

// cascadeDelete removes and declines everything hanging off a deleted
// entity: live links come down with a closing ledger entry, pending
// suggestions are declined, and orphaned child suggestions that only
// existed for this parent are declined too.
func (c *Core) cascadeDelete(ctx context.Context, q store.Querier, kind string, id, userID int64, atime float64, ev *eventLog) error {
	for _, link := range c.links {
		lk := link.Kind()
		if lk.AKind == kind {
			pending, err := link.PendingForA(ctx, q, id)
			if err != nil {
				return err
			}
			for _, p := range pending {
				if err := link.InsertVersion(ctx, q, p.AID, p.BID, atime, false); err != nil {
					return err
				}
				if err := c.declineOrphanChild(ctx, q, lk.BKind, p.BID, userID, atime); err != nil {
					return err
				}
			}
			lives, err := link.LiveLinksForA(ctx, q, id)
			if err != nil {
				return err
			}
			for _, p := range lives {
				if _, err := link.DeleteLive(ctx, q, p.AID, p.BID); err != nil {
					return err
				}
				if err := link.InsertVersion(ctx, q, p.AID, p.BID, atime, false); err != nil {
					return err
				}
				ev.add(lk.BKind, p.BID, true)
			}
		}
		if lk.BKind == kind {
			pending, err := link.PendingForB(ctx, q, id)
			if err != nil {
				return err
			}
			for _, p := range pending {
				if err := link.InsertVersion(ctx, q, p.AID, p.BID, atime, false); err != nil {
					return err
				}
			}
			lives, err := link.LiveLinksForB(ctx, q, id)
			if err != nil {
				return err
			}
			for _, p := range lives {
				if _, err := link.DeleteLive(ctx, q, p.AID, p.BID); err != nil {
					return err
				}
				if err := link.InsertVersion(ctx, q, p.AID, p.BID, atime, false); err != nil {
					return err
				}
				ev.add(lk.AKind, p.AID, true)
			}
		}
	}
	return nil
}

// declineOrphanChild declines a child suggestion whose only parent was
// just deleted. Live children stand on their own; versions authored by a
// moderator or already closed are left alone.
func (c *Core) declineOrphanChild(ctx context.Context, q store.Querier, kind string, id, userID int64, atime float64) error {
	ops, ok := c.kinds[kind]
	if !ok {
		return nil
	}
	live, err := ops.LiveExists(ctx, q, id)
	if err != nil {
		return err
	}
	if live {
		return nil
	}
	meta, found, err := ops.LatestVersionMeta(ctx, q, id)
	if err != nil {
		return err
	}
	if !found || meta.AuthorModerator || !meta.Existence {
		return nil
	}
	_, err = ops.InsertDecline(ctx, q, id, userID, atime)
	return err
}

func (c *Core) linkOps(aKind, bKind string) (LinkOps, bool) {
	for _, link := range c.links {
		lk := link.Kind()
		if lk.AKind == aKind && lk.BKind == bKind {
			return link, true
		}
	}
	return nil, false
}
