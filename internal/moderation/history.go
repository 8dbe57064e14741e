package moderation

import (
	"context"
	"sort"

	"mango/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// History reconstructs the recent moderation record across every kind
// and relation, newest first. Version rows and live link events are
// merged by action time; at equal times newer version ids sort first and
// link events (which carry no version id) sort last.
func (c *Core) History(ctx context.Context, caller Caller, limit, offset int) ([]store.HistoryItem, error) {
	if !caller.Moderator {
		return nil, ErrForbidden
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	fetch := offset + limit

	items := make([]store.HistoryItem, 0, fetch*2)
	for _, name := range c.kindOrder {
		feed, err := c.kinds[name].VersionFeed(ctx, c.db, fetch)
		if err != nil {
			return nil, err
		}
		items = append(items, feed...)
	}
	for _, link := range c.links {
		feed, err := link.EventFeed(ctx, c.db, fetch)
		if err != nil {
			return nil, err
		}
		items = append(items, feed...)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ATime != items[j].ATime {
			return items[i].ATime > items[j].ATime
		}
		return items[i].VersionID > items[j].VersionID
	})

	if offset >= len(items) {
		return []store.HistoryItem{}, nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	page := items[offset:end]

	if err := c.attachParents(ctx, page); err != nil {
		return nil, err
	}
	return page, nil
}

// attachParents fills in the first live parent of each child item on the
// page, so the feed can say which org or event an address or note
// belongs to.
func (c *Core) attachParents(ctx context.Context, page []store.HistoryItem) error {
	for _, link := range c.links {
		lk := link.Kind()
		var need []int64
		for i := range page {
			if page[i].Kind == lk.BKind && page[i].ParentKind == "" {
				need = append(need, page[i].EntityID)
			}
		}
		if len(need) == 0 {
			continue
		}
		parents, err := link.ParentsOfB(ctx, c.db, need)
		if err != nil {
			return err
		}
		for i := range page {
			if page[i].Kind != lk.BKind || page[i].ParentKind != "" {
				continue
			}
			if ref, ok := parents[page[i].EntityID]; ok {
				page[i].ParentKind = ref.Kind
				page[i].ParentID = ref.ID
				page[i].ParentName = ref.Name
			}
		}
	}
	return nil
}
