package moderation

import (
	"context"
	"sort"

	"mango/internal/store"
)

// memEntityStore is an in-memory EntityOps implementation. The Querier
// argument is ignored; the fixture's core runs actions with a
// passthrough transaction.
type memEntityStore[C any] struct {
	kind    store.Kind[C]
	users   map[int64]store.User
	nextID  int64
	nextVID int64
	live    map[int64]store.Entity[C]
	verList []store.Version[C]

	failInsertVersion error
}

func newMemEntityStore[C any](kind store.Kind[C], users map[int64]store.User) *memEntityStore[C] {
	return &memEntityStore[C]{
		kind:  kind,
		users: users,
		live:  make(map[int64]store.Entity[C]),
	}
}

func (m *memEntityStore[C]) KindName() string { return m.kind.Name }

func (m *memEntityStore[C]) AllocateID(ctx context.Context, q store.Querier) (int64, error) {
	m.nextID++
	return m.nextID, nil
}

func (m *memEntityStore[C]) GetLive(ctx context.Context, q store.Querier, id int64) (store.Entity[C], bool, error) {
	e, ok := m.live[id]
	return e, ok, nil
}

func (m *memEntityStore[C]) LiveExists(ctx context.Context, q store.Querier, id int64) (bool, error) {
	_, ok := m.live[id]
	return ok, nil
}

func (m *memEntityStore[C]) UpsertLive(ctx context.Context, q store.Querier, e store.Entity[C]) error {
	m.live[e.ID] = e
	return nil
}

func (m *memEntityStore[C]) InsertVersion(ctx context.Context, q store.Querier, v store.Version[C]) (store.Version[C], error) {
	if m.failInsertVersion != nil {
		return store.Version[C]{}, m.failInsertVersion
	}
	m.nextVID++
	v.ID = m.nextVID
	m.verList = append(m.verList, v)
	return v, nil
}

func (m *memEntityStore[C]) ResetActionTime(ctx context.Context, q store.Querier, id, userID int64) (bool, error) {
	e, ok := m.live[id]
	if !ok {
		return false, nil
	}
	e.ATime = 0
	e.ModerationUserID = userID
	m.live[id] = e
	return true, nil
}

func (m *memEntityStore[C]) DeleteLive(ctx context.Context, q store.Querier, id int64) (bool, error) {
	if _, ok := m.live[id]; !ok {
		return false, nil
	}
	delete(m.live, id)
	return true, nil
}

func (m *memEntityStore[C]) latest(id int64) (store.Version[C], bool) {
	for i := len(m.verList) - 1; i >= 0; i-- {
		if m.verList[i].EntityID == id {
			return m.verList[i], true
		}
	}
	return store.Version[C]{}, false
}

func (m *memEntityStore[C]) LatestVersion(ctx context.Context, q store.Querier, id int64) (store.Version[C], bool, error) {
	v, ok := m.latest(id)
	return v, ok, nil
}

func (m *memEntityStore[C]) LatestVersionBy(ctx context.Context, q store.Querier, userID, id int64) (store.Version[C], bool, error) {
	for i := len(m.verList) - 1; i >= 0; i-- {
		v := m.verList[i]
		if v.EntityID == id && v.ModerationUserID == userID {
			return v, true, nil
		}
	}
	return store.Version[C]{}, false, nil
}

func (m *memEntityStore[C]) GetVersion(ctx context.Context, q store.Querier, versionID int64) (store.Version[C], bool, error) {
	for _, v := range m.verList {
		if v.ID == versionID {
			return v, true, nil
		}
	}
	return store.Version[C]{}, false, nil
}

func (m *memEntityStore[C]) LatestVersionMeta(ctx context.Context, q store.Querier, id int64) (store.VersionMeta, bool, error) {
	v, ok := m.latest(id)
	if !ok {
		return store.VersionMeta{}, false, nil
	}
	return store.VersionMeta{
		ID:               v.ID,
		EntityID:         v.EntityID,
		ModerationUserID: v.ModerationUserID,
		AuthorModerator:  m.users[v.ModerationUserID].Moderator,
		ATime:            v.ATime,
		Existence:        v.Existence,
		Visibility:       v.Visibility,
	}, true, nil
}

func (m *memEntityStore[C]) InsertDecline(ctx context.Context, q store.Querier, id, userID int64, atime float64) (int64, error) {
	v, err := m.InsertVersion(ctx, q, store.Version[C]{
		EntityID:         id,
		Content:          m.kind.Declined(),
		ModerationUserID: userID,
		ATime:            atime,
		Existence:        false,
		Visibility:       store.VisibilityPending,
	})
	if err != nil {
		return 0, err
	}
	return v.ID, nil
}

func (m *memEntityStore[C]) PendingQueue(ctx context.Context, q store.Querier, limit int) ([]store.QueueItem, error) {
	if limit <= 0 {
		limit = 20
	}
	seen := make(map[int64]bool)
	items := make([]store.QueueItem, 0)
	for i := len(m.verList) - 1; i >= 0; i-- {
		v := m.verList[i]
		if seen[v.EntityID] {
			continue
		}
		seen[v.EntityID] = true
		if m.users[v.ModerationUserID].Moderator || !v.Existence {
			continue
		}
		live, hasLive := m.live[v.EntityID]
		if hasLive && live.ATime == v.ATime {
			continue
		}
		items = append(items, store.QueueItem{
			Kind:      m.kind.Name,
			EntityID:  v.EntityID,
			VersionID: v.ID,
			ATime:     v.ATime,
			Author:    m.users[v.ModerationUserID].Name,
			HasLive:   hasLive,
		})
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (m *memEntityStore[C]) VersionFeed(ctx context.Context, q store.Querier, limit int) ([]store.HistoryItem, error) {
	items := make([]store.HistoryItem, 0, len(m.verList))
	for _, v := range m.verList {
		_, hasLive := m.live[v.EntityID]
		items = append(items, store.HistoryItem{
			Kind:      m.kind.Name,
			EntityID:  v.EntityID,
			VersionID: v.ID,
			ATime:     v.ATime,
			Existence: v.Existence,
			HasLive:   hasLive,
			Author:    m.users[v.ModerationUserID].Name,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ATime != items[j].ATime {
			return items[i].ATime > items[j].ATime
		}
		return items[i].VersionID > items[j].VersionID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memEntityStore[C]) ListLive(ctx context.Context, q store.Querier, onlyPublic bool) ([]store.Entity[C], error) {
	ids := make([]int64, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	items := make([]store.Entity[C], 0, len(ids))
	for _, id := range ids {
		e := m.live[id]
		if onlyPublic && e.Visibility != store.VisibilityPublic {
			continue
		}
		items = append(items, e)
	}
	return items, nil
}

type memLiveLink struct {
	pair  store.LinkPair
	atime float64
}

// memLinkStore is an in-memory LinkOps implementation.
type memLinkStore struct {
	kind    store.LinkKind
	nextVID int64
	liveSet []memLiveLink
	verList []store.LinkVersion

	aLive      func(id int64) bool
	bLive      func(id int64) bool
	parentName func(aID int64) string
}

func newMemLinkStore(kind store.LinkKind) *memLinkStore {
	return &memLinkStore{
		kind:       kind,
		aLive:      func(int64) bool { return false },
		bLive:      func(int64) bool { return false },
		parentName: func(int64) string { return "" },
	}
}

func (m *memLinkStore) Kind() store.LinkKind { return m.kind }

func (m *memLinkStore) liveIndex(aID, bID int64) int {
	for i, l := range m.liveSet {
		if l.pair.AID == aID && l.pair.BID == bID {
			return i
		}
	}
	return -1
}

func (m *memLinkStore) LiveExists(ctx context.Context, q store.Querier, aID, bID int64) (bool, error) {
	return m.liveIndex(aID, bID) >= 0, nil
}

func (m *memLinkStore) InsertLive(ctx context.Context, q store.Querier, aID, bID int64, atime float64) error {
	if m.liveIndex(aID, bID) >= 0 {
		return nil
	}
	m.liveSet = append(m.liveSet, memLiveLink{pair: store.LinkPair{AID: aID, BID: bID}, atime: atime})
	return nil
}

func (m *memLinkStore) DeleteLive(ctx context.Context, q store.Querier, aID, bID int64) (bool, error) {
	i := m.liveIndex(aID, bID)
	if i < 0 {
		return false, nil
	}
	m.liveSet = append(m.liveSet[:i], m.liveSet[i+1:]...)
	return true, nil
}

func (m *memLinkStore) InsertVersion(ctx context.Context, q store.Querier, aID, bID int64, atime float64, existence bool) error {
	m.nextVID++
	m.verList = append(m.verList, store.LinkVersion{
		ID: m.nextVID, AID: aID, BID: bID, ATime: atime, Existence: existence,
	})
	return nil
}

func (m *memLinkStore) LatestVersion(ctx context.Context, q store.Querier, aID, bID int64) (store.LinkVersion, bool, error) {
	for i := len(m.verList) - 1; i >= 0; i-- {
		v := m.verList[i]
		if v.AID == aID && v.BID == bID {
			return v, true, nil
		}
	}
	return store.LinkVersion{}, false, nil
}

// pendingPairs returns pairs whose latest ledger entry asserts existence
// but that have no live link, in first-suggested order.
func (m *memLinkStore) pendingPairs() []store.LinkVersion {
	latest := make(map[store.LinkPair]store.LinkVersion)
	order := make([]store.LinkPair, 0)
	for _, v := range m.verList {
		pair := store.LinkPair{AID: v.AID, BID: v.BID}
		if _, seen := latest[pair]; !seen {
			order = append(order, pair)
		}
		latest[pair] = v
	}
	pending := make([]store.LinkVersion, 0)
	for _, pair := range order {
		v := latest[pair]
		if !v.Existence {
			continue
		}
		if m.liveIndex(pair.AID, pair.BID) >= 0 {
			continue
		}
		pending = append(pending, v)
	}
	return pending
}

func (m *memLinkStore) PendingForA(ctx context.Context, q store.Querier, aID int64) ([]store.LinkPair, error) {
	pairs := make([]store.LinkPair, 0)
	for _, v := range m.pendingPairs() {
		if v.AID == aID {
			pairs = append(pairs, store.LinkPair{AID: v.AID, BID: v.BID})
		}
	}
	return pairs, nil
}

func (m *memLinkStore) PendingForB(ctx context.Context, q store.Querier, bID int64) ([]store.LinkPair, error) {
	pairs := make([]store.LinkPair, 0)
	for _, v := range m.pendingPairs() {
		if v.BID == bID {
			pairs = append(pairs, store.LinkPair{AID: v.AID, BID: v.BID})
		}
	}
	return pairs, nil
}

func (m *memLinkStore) PendingSuggestions(ctx context.Context, q store.Querier, limit int) ([]store.LinkSuggestion, error) {
	if limit <= 0 {
		limit = 20
	}
	items := make([]store.LinkSuggestion, 0)
	for _, v := range m.pendingPairs() {
		items = append(items, store.LinkSuggestion{
			AKind: m.kind.AKind,
			BKind: m.kind.BKind,
			AID:   v.AID,
			BID:   v.BID,
			ATime: v.ATime,
			ALive: m.aLive(v.AID),
			BLive: m.bLive(v.BID),
		})
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (m *memLinkStore) LiveLinksForA(ctx context.Context, q store.Querier, aID int64) ([]store.LinkPair, error) {
	pairs := make([]store.LinkPair, 0)
	for _, l := range m.liveSet {
		if l.pair.AID == aID {
			pairs = append(pairs, l.pair)
		}
	}
	return pairs, nil
}

func (m *memLinkStore) LiveLinksForB(ctx context.Context, q store.Querier, bID int64) ([]store.LinkPair, error) {
	pairs := make([]store.LinkPair, 0)
	for _, l := range m.liveSet {
		if l.pair.BID == bID {
			pairs = append(pairs, l.pair)
		}
	}
	return pairs, nil
}

func (m *memLinkStore) EventFeed(ctx context.Context, q store.Querier, limit int) ([]store.HistoryItem, error) {
	items := make([]store.HistoryItem, 0, len(m.liveSet))
	for _, l := range m.liveSet {
		items = append(items, store.HistoryItem{
			Kind:       m.kind.Table(),
			EntityID:   l.pair.BID,
			VersionID:  -1,
			ATime:      l.atime,
			Existence:  true,
			HasLive:    true,
			ParentKind: m.kind.AKind,
			ParentID:   l.pair.AID,
			ParentName: m.parentName(l.pair.AID),
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].ATime > items[j].ATime })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memLinkStore) ParentsOfB(ctx context.Context, q store.Querier, bIDs []int64) (map[int64]store.ParentRef, error) {
	parents := make(map[int64]store.ParentRef)
	for _, bID := range bIDs {
		for _, l := range m.liveSet {
			if l.pair.BID != bID {
				continue
			}
			if _, seen := parents[bID]; seen {
				continue
			}
			parents[bID] = store.ParentRef{
				Kind: m.kind.AKind,
				ID:   l.pair.AID,
				Name: m.parentName(l.pair.AID),
			}
		}
	}
	return parents, nil
}

// recordingHook captures post-commit events for assertions.
type recordingHook struct {
	events []Event
}

func (h *recordingHook) EntityChanged(ctx context.Context, ev Event) {
	h.events = append(h.events, ev)
}
