package moderation

import (
	"context"

	"mango/internal/store"
)

// LinkResult reports what a link submission produced. Live means the
// link exists in the live table after the action; NoOp means the
// requested state was already recorded.
type LinkResult struct {
	Live bool
	NoOp bool
}

// PutLink asserts a link between two entities. A moderator linking two
// live entities materializes the link immediately; any other case
// records a pending suggestion the acceptor or queue resolves later.
// Repeating an assertion that already holds is a no-op.
func (c *Core) PutLink(ctx context.Context, caller Caller, aKind, bKind string, aID, bID int64) (LinkResult, error) {
	if !caller.CanWrite() {
		return LinkResult{}, ErrForbidden
	}
	link, ok := c.linkOps(aKind, bKind)
	if !ok {
		return LinkResult{}, ErrNotFound
	}
	now := c.now()

	var result LinkResult
	err := c.transact(ctx, func(q store.Querier, ev *eventLog) error {
		alreadyLive, err := link.LiveExists(ctx, q, aID, bID)
		if err != nil {
			return err
		}
		if alreadyLive {
			result = LinkResult{Live: true, NoOp: true}
			return nil
		}

		if caller.Moderator {
			aLive, err := c.kinds[aKind].LiveExists(ctx, q, aID)
			if err != nil {
				return err
			}
			bLive, err := c.kinds[bKind].LiveExists(ctx, q, bID)
			if err != nil {
				return err
			}
			if aLive && bLive {
				if err := link.InsertLive(ctx, q, aID, bID, now); err != nil {
					return err
				}
				if err := link.InsertVersion(ctx, q, aID, bID, now, true); err != nil {
					return err
				}
				result = LinkResult{Live: true}
				ev.add(aKind, aID, true)
				ev.add(bKind, bID, true)
				return nil
			}
		}

		// Pending suggestion. Skip the ledger write if the latest entry
		// already asserts existence for this pair.
		latest, hasLatest, err := link.LatestVersion(ctx, q, aID, bID)
		if err != nil {
			return err
		}
		if hasLatest && latest.Existence {
			result = LinkResult{NoOp: true}
			return nil
		}
		if err := link.InsertVersion(ctx, q, aID, bID, now, true); err != nil {
			return err
		}
		result = LinkResult{}
		return nil
	})
	if err != nil {
		return LinkResult{}, err
	}
	return result, nil
}

// DeleteLink removes a live link or declines a pending suggestion,
// recording a closing ledger entry either way. Moderator only.
func (c *Core) DeleteLink(ctx context.Context, caller Caller, aKind, bKind string, aID, bID int64) error {
	if !caller.Moderator || caller.Locked {
		return ErrForbidden
	}
	link, ok := c.linkOps(aKind, bKind)
	if !ok {
		return ErrNotFound
	}
	now := c.now()

	return c.transact(ctx, func(q store.Querier, ev *eventLog) error {
		removed, err := link.DeleteLive(ctx, q, aID, bID)
		if err != nil {
			return err
		}
		if removed {
			if err := link.InsertVersion(ctx, q, aID, bID, now, false); err != nil {
				return err
			}
			ev.add(aKind, aID, true)
			ev.add(bKind, bID, true)
			return nil
		}
		latest, hasLatest, err := link.LatestVersion(ctx, q, aID, bID)
		if err != nil {
			return err
		}
		if !hasLatest || !latest.Existence {
			return ErrNotFound
		}
		return link.InsertVersion(ctx, q, aID, bID, now, false)
	})
}

// LiveLinks lists the live links attached to one entity, grouped by the
// kind on the other end. Read-only, for entity detail pages and export.
func (c *Core) LiveLinks(ctx context.Context, kind string, id int64) (map[string][]store.LinkPair, error) {
	out := make(map[string][]store.LinkPair)
	for _, link := range c.links {
		lk := link.Kind()
		if lk.AKind == kind {
			pairs, err := link.LiveLinksForA(ctx, c.db, id)
			if err != nil {
				return nil, err
			}
			out[lk.BKind] = append(out[lk.BKind], pairs...)
		}
		if lk.BKind == kind {
			pairs, err := link.LiveLinksForB(ctx, c.db, id)
			if err != nil {
				return nil, err
			}
			out[lk.AKind] = append(out[lk.AKind], pairs...)
		}
	}
	return out, nil
}
