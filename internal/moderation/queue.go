package moderation

import (
	"context"

	"mango/internal/store"
)

// QueueKind is one kind's slice of the moderation queue.
type QueueKind struct {
	Kind  string            `json:"kind"`
	Items []store.QueueItem `json:"items"`
}

// Queue is the moderator's work list: per-kind pending submissions plus
// pending link suggestions.
type Queue struct {
	Entities []QueueKind            `json:"entities"`
	Links    []store.LinkSuggestion `json:"links"`
}

const queueKindLimit = 20

// ModerationQueue assembles the pending work list. Each kind and each
// relation is capped independently; the queue is worked down
// interactively, not paginated.
func (c *Core) ModerationQueue(ctx context.Context, caller Caller) (Queue, error) {
	if !caller.Moderator {
		return Queue{}, ErrForbidden
	}
	queue := Queue{
		Entities: make([]QueueKind, 0, len(c.kindOrder)),
		Links:    make([]store.LinkSuggestion, 0),
	}
	for _, name := range c.kindOrder {
		items, err := c.kinds[name].PendingQueue(ctx, c.db, queueKindLimit)
		if err != nil {
			return Queue{}, err
		}
		queue.Entities = append(queue.Entities, QueueKind{Kind: name, Items: items})
	}
	for _, link := range c.links {
		items, err := link.PendingSuggestions(ctx, c.db, queueKindLimit)
		if err != nil {
			return Queue{}, err
		}
		queue.Links = append(queue.Links, items...)
	}
	return queue, nil
}
