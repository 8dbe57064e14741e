package moderation

import (
	"context"
	"errors"
	"testing"

	"mango/internal/store"
)

var (
	mod    = Caller{UserID: 1, Name: "mod", Moderator: true}
	ana    = Caller{UserID: 2, Name: "ana"}
	ben    = Caller{UserID: 3, Name: "ben"}
	locked = Caller{UserID: 4, Name: "locked", Locked: true}
	anon   = Caller{}
)

type fixture struct {
	clock     float64
	users     map[int64]store.User
	core      *Core
	orgs      *memEntityStore[store.Org]
	addresses *memEntityStore[store.Address]
	orgAddr   *memLinkStore
	orgWF     *Workflow[store.Org]
	addrWF    *Workflow[store.Address]
	hook      *recordingHook
}

func newFixture() *fixture {
	f := &fixture{
		clock: 1,
		users: map[int64]store.User{
			1: {ID: 1, Name: "mod", Moderator: true},
			2: {ID: 2, Name: "ana"},
			3: {ID: 3, Name: "ben"},
			4: {ID: 4, Name: "locked", Locked: true},
		},
		hook: &recordingHook{},
	}
	f.core = &Core{
		kinds: make(map[string]KindOps),
		now:   func() float64 { return f.clock },
		run: func(ctx context.Context, fn func(q store.Querier) error) error {
			return fn(nil)
		},
	}
	f.orgs = newMemEntityStore(store.Orgs, f.users)
	f.addresses = newMemEntityStore(store.Addresses, f.users)
	f.orgWF = &Workflow[store.Org]{core: f.core, desc: store.Orgs, store: f.orgs}
	f.core.registerKind(f.orgs)
	f.addrWF = &Workflow[store.Address]{core: f.core, desc: store.Addresses, store: f.addresses}
	f.core.registerKind(f.addresses)

	f.orgAddr = newMemLinkStore(store.OrgAddress)
	f.orgAddr.aLive = func(id int64) bool { _, ok := f.orgs.live[id]; return ok }
	f.orgAddr.bLive = func(id int64) bool { _, ok := f.addresses.live[id]; return ok }
	f.orgAddr.parentName = func(id int64) string { return f.orgs.live[id].Content.Name }
	f.core.RegisterLink(f.orgAddr)
	f.core.RegisterHook(f.hook)
	return f
}

func (f *fixture) mustPutOrg(t *testing.T, caller Caller, req PutRequest[store.Org]) PutResult[store.Org] {
	t.Helper()
	res, err := f.orgWF.Put(context.Background(), caller, req)
	if err != nil {
		t.Fatalf("put org: %v", err)
	}
	return res
}

func (f *fixture) mustPutAddr(t *testing.T, caller Caller, req PutRequest[store.Address]) PutResult[store.Address] {
	t.Helper()
	res, err := f.addrWF.Put(context.Background(), caller, req)
	if err != nil {
		t.Fatalf("put address: %v", err)
	}
	return res
}

func TestModeratorPutGoesLive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.clock = 10

	res := f.mustPutOrg(t, mod, PutRequest[store.Org]{
		Content:    store.Org{Name: "Cafe Collective"},
		Visibility: store.VisibilityPublic,
	})
	if !res.BecameLive {
		t.Fatal("expected entity to become live")
	}
	if res.Entity == nil || res.Entity.ID == 0 {
		t.Fatal("expected allocated entity id")
	}
	if res.Location != "/org/1" {
		t.Fatalf("location = %q", res.Location)
	}
	live, ok, _ := f.orgs.GetLive(ctx, nil, res.Entity.ID)
	if !ok {
		t.Fatal("live row missing")
	}
	if live.Visibility != store.VisibilityPublic || live.ATime != 10 {
		t.Fatalf("live = %+v", live)
	}
	if len(f.orgs.verList) != 1 || !f.orgs.verList[0].Existence {
		t.Fatalf("versions = %+v", f.orgs.verList)
	}
	if len(f.hook.events) != 1 || f.hook.events[0] != (Event{Kind: "org", ID: res.Entity.ID, Live: true}) {
		t.Fatalf("hook events = %+v", f.hook.events)
	}
}

func TestModeratorPendingVisibilityBecomesPublic(t *testing.T) {
	f := newFixture()
	res := f.mustPutOrg(t, mod, PutRequest[store.Org]{
		Content:    store.Org{Name: "Open Space"},
		Visibility: store.VisibilityPending,
	})
	if res.Entity.Visibility != store.VisibilityPublic {
		t.Fatalf("visibility = %v", res.Entity.Visibility)
	}
}

func TestModeratorIdenticalPutResetsActionTime(t *testing.T) {
	f := newFixture()
	f.clock = 10
	content := store.Org{Name: "Cafe Collective"}
	first := f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: content, Visibility: store.VisibilityPublic})

	f.clock = 20
	again := f.mustPutOrg(t, mod, PutRequest[store.Org]{
		ID: first.Entity.ID, Content: content, Visibility: store.VisibilityPublic,
	})
	if !again.NoOp {
		t.Fatal("expected no-op")
	}
	if len(f.orgs.verList) != 1 {
		t.Fatalf("expected single version, got %d", len(f.orgs.verList))
	}
	if f.orgs.live[first.Entity.ID].ATime != 0 {
		t.Fatalf("atime = %v, want 0", f.orgs.live[first.Entity.ID].ATime)
	}
}

func TestContributorPutIsPendingOnly(t *testing.T) {
	f := newFixture()
	content := store.Org{Name: "Street Kitchen"}

	res := f.mustPutOrg(t, ana, PutRequest[store.Org]{Content: content})
	if res.Entity != nil {
		t.Fatal("contributor put must not touch the live table")
	}
	if res.Version == nil || res.Version.Visibility != store.VisibilityPending {
		t.Fatalf("version = %+v", res.Version)
	}
	if len(f.orgs.live) != 0 {
		t.Fatal("live row created by contributor")
	}

	// Identical resubmission leaves no ledger noise.
	again := f.mustPutOrg(t, ana, PutRequest[store.Org]{ID: res.Version.EntityID, Content: content})
	if !again.NoOp {
		t.Fatal("expected no-op resubmission")
	}
	if len(f.orgs.verList) != 1 {
		t.Fatalf("versions = %d, want 1", len(f.orgs.verList))
	}
}

func TestContributorPutMatchingLiveIsNoOp(t *testing.T) {
	f := newFixture()
	content := store.Org{Name: "Cafe Collective"}
	first := f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: content, Visibility: store.VisibilityPublic})

	res := f.mustPutOrg(t, ana, PutRequest[store.Org]{ID: first.Entity.ID, Content: content})
	if !res.NoOp {
		t.Fatal("expected no-op against identical live content")
	}
	if len(f.orgs.verList) != 1 {
		t.Fatalf("versions = %d, want 1", len(f.orgs.verList))
	}
}

func TestWriteAccessDenied(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := PutRequest[store.Org]{Content: store.Org{Name: "X"}}

	if _, err := f.orgWF.Put(ctx, anon, req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("anonymous put err = %v", err)
	}
	if _, err := f.orgWF.Put(ctx, locked, req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("locked put err = %v", err)
	}
	if err := f.orgWF.Touch(ctx, ana, 1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("contributor touch err = %v", err)
	}
	if err := f.orgWF.Delete(ctx, ana, 1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("contributor delete err = %v", err)
	}
}

func TestLinkAcceptedWhenSecondEndGoesLive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Org live first, address accepted second.
	org := f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: store.Org{Name: "A"}, Visibility: store.VisibilityPublic})
	addr := f.mustPutAddr(t, ana, PutRequest[store.Address]{Content: store.Address{Postal: "1 Main St"}})
	addrID := addr.Version.EntityID
	if _, err := f.core.PutLink(ctx, ana, "org", "address", org.Entity.ID, addrID); err != nil {
		t.Fatalf("suggest link: %v", err)
	}
	if ok, _ := f.orgAddr.LiveExists(ctx, nil, org.Entity.ID, addrID); ok {
		t.Fatal("link live before both ends exist")
	}

	f.mustPutAddr(t, mod, PutRequest[store.Address]{
		ID: addrID, Content: store.Address{Postal: "1 Main St"}, Visibility: store.VisibilityPublic,
	})
	if ok, _ := f.orgAddr.LiveExists(ctx, nil, org.Entity.ID, addrID); !ok {
		t.Fatal("acceptor did not materialize link")
	}
	if len(f.orgAddr.liveSet) != 1 {
		t.Fatalf("live links = %d, want 1", len(f.orgAddr.liveSet))
	}
}

func TestLinkAcceptedWhenParentGoesLive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Address live first, org accepted second: the acceptor runs from
	// the parent side too.
	addr := f.mustPutAddr(t, mod, PutRequest[store.Address]{Content: store.Address{Postal: "2 Side St"}, Visibility: store.VisibilityPublic})
	org := f.mustPutOrg(t, ana, PutRequest[store.Org]{Content: store.Org{Name: "B"}})
	orgID := org.Version.EntityID
	if _, err := f.core.PutLink(ctx, ana, "org", "address", orgID, addr.Entity.ID); err != nil {
		t.Fatalf("suggest link: %v", err)
	}

	f.mustPutOrg(t, mod, PutRequest[store.Org]{
		ID: orgID, Content: store.Org{Name: "B"}, Visibility: store.VisibilityPublic,
	})
	if len(f.orgAddr.liveSet) != 1 {
		t.Fatalf("live links = %d, want 1", len(f.orgAddr.liveSet))
	}
}

func TestPutLinkModeratorMaterializesImmediately(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	org := f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: store.Org{Name: "A"}, Visibility: store.VisibilityPublic})
	addr := f.mustPutAddr(t, mod, PutRequest[store.Address]{Content: store.Address{Postal: "P"}, Visibility: store.VisibilityPublic})

	res, err := f.core.PutLink(ctx, mod, "org", "address", org.Entity.ID, addr.Entity.ID)
	if err != nil || !res.Live || res.NoOp {
		t.Fatalf("put link = %+v, %v", res, err)
	}
	if len(f.orgAddr.liveSet) != 1 || len(f.orgAddr.verList) != 1 {
		t.Fatalf("live = %d versions = %d", len(f.orgAddr.liveSet), len(f.orgAddr.verList))
	}

	// Repeating the assertion changes nothing.
	res, err = f.core.PutLink(ctx, mod, "org", "address", org.Entity.ID, addr.Entity.ID)
	if err != nil || !res.NoOp || !res.Live {
		t.Fatalf("repeat put link = %+v, %v", res, err)
	}
	if len(f.orgAddr.verList) != 1 {
		t.Fatalf("versions = %d, want 1", len(f.orgAddr.verList))
	}

	if err := f.core.DeleteLink(ctx, mod, "org", "address", org.Entity.ID, addr.Entity.ID); err != nil {
		t.Fatalf("delete link: %v", err)
	}
	if len(f.orgAddr.liveSet) != 0 {
		t.Fatal("link still live after delete")
	}
	last := f.orgAddr.verList[len(f.orgAddr.verList)-1]
	if last.Existence {
		t.Fatal("delete did not record a closing ledger entry")
	}
	if err := f.core.DeleteLink(ctx, mod, "org", "address", org.Entity.ID, addr.Entity.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestContributorLinkStaysPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	org := f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: store.Org{Name: "A"}, Visibility: store.VisibilityPublic})
	addr := f.mustPutAddr(t, mod, PutRequest[store.Address]{Content: store.Address{Postal: "P"}, Visibility: store.VisibilityPublic})

	res, err := f.core.PutLink(ctx, ana, "org", "address", org.Entity.ID, addr.Entity.ID)
	if err != nil || res.Live {
		t.Fatalf("contributor link = %+v, %v", res, err)
	}
	queue, err := f.core.ModerationQueue(ctx, mod)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue.Links) != 1 || !queue.Links[0].ALive || !queue.Links[0].BLive {
		t.Fatalf("queue links = %+v", queue.Links)
	}

	// Moderator accepts the suggestion.
	if res, err = f.core.PutLink(ctx, mod, "org", "address", org.Entity.ID, addr.Entity.ID); err != nil || !res.Live {
		t.Fatalf("accept link = %+v, %v", res, err)
	}
	queue, _ = f.core.ModerationQueue(ctx, mod)
	if len(queue.Links) != 0 {
		t.Fatalf("queue links after accept = %+v", queue.Links)
	}
}

func TestDeleteCascadesToLinksAndOrphans(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.clock = 10

	org := f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: store.Org{Name: "Cafe"}, Visibility: store.VisibilityPublic})
	a1 := f.mustPutAddr(t, ana, PutRequest[store.Address]{Content: store.Address{Postal: "1 Main St"}})
	a2 := f.mustPutAddr(t, ana, PutRequest[store.Address]{Content: store.Address{Postal: "2 Side St"}})
	for _, addrID := range []int64{a1.Version.EntityID, a2.Version.EntityID} {
		if _, err := f.core.PutLink(ctx, ana, "org", "address", org.Entity.ID, addrID); err != nil {
			t.Fatalf("suggest link: %v", err)
		}
	}

	f.clock = 20
	if err := f.orgWF.Delete(ctx, mod, org.Entity.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, ok := f.orgs.live[org.Entity.ID]; ok {
		t.Fatal("org still live")
	}
	last := f.orgs.verList[len(f.orgs.verList)-1]
	if last.Existence || last.Content.Name != "Cafe" {
		t.Fatalf("closing version = %+v", last)
	}

	// Both orphaned suggestions were declined.
	for _, addrID := range []int64{a1.Version.EntityID, a2.Version.EntityID} {
		v, ok := f.addresses.latest(addrID)
		if !ok || v.Existence || v.Content.Postal != store.DeclinedMarker {
			t.Fatalf("address %d latest = %+v", addrID, v)
		}
	}

	queue, err := f.core.ModerationQueue(ctx, mod)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	for _, qk := range queue.Entities {
		if len(qk.Items) != 0 {
			t.Fatalf("queue %s not empty: %+v", qk.Kind, qk.Items)
		}
	}
	if len(queue.Links) != 0 {
		t.Fatalf("queue links not empty: %+v", queue.Links)
	}
}

func TestDeleteKeepsLiveOrphans(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	org := f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: store.Org{Name: "Cafe"}, Visibility: store.VisibilityPublic})
	addr := f.mustPutAddr(t, mod, PutRequest[store.Address]{Content: store.Address{Postal: "P"}, Visibility: store.VisibilityPublic})
	if _, err := f.core.PutLink(ctx, mod, "org", "address", org.Entity.ID, addr.Entity.ID); err != nil {
		t.Fatalf("put link: %v", err)
	}

	if err := f.orgWF.Delete(ctx, mod, org.Entity.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.orgAddr.liveSet) != 0 {
		t.Fatal("live link survived parent delete")
	}
	if _, ok := f.addresses.live[addr.Entity.ID]; !ok {
		t.Fatal("live address removed by parent delete")
	}
}

func TestTouch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.clock = 10

	// Live entity: touch resets the action time.
	org := f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: store.Org{Name: "A"}, Visibility: store.VisibilityPublic})
	if err := f.orgWF.Touch(ctx, mod, org.Entity.ID); err != nil {
		t.Fatalf("touch live: %v", err)
	}
	if f.orgs.live[org.Entity.ID].ATime != 0 {
		t.Fatal("touch did not reset action time")
	}

	// Pending-only entity: touch declines it and clears the queue.
	sug := f.mustPutOrg(t, ana, PutRequest[store.Org]{Content: store.Org{Name: "B"}})
	if err := f.orgWF.Touch(ctx, mod, sug.Version.EntityID); err != nil {
		t.Fatalf("touch pending: %v", err)
	}
	v, _ := f.orgs.latest(sug.Version.EntityID)
	if v.Existence || v.Content.Name != store.DeclinedMarker {
		t.Fatalf("decline version = %+v", v)
	}
	items, _ := f.orgs.PendingQueue(ctx, nil, 0)
	if len(items) != 0 {
		t.Fatalf("queue after decline = %+v", items)
	}

	// No trace at all.
	if err := f.orgWF.Touch(ctx, mod, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("touch unknown err = %v", err)
	}
}

func TestModerationQueue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.clock = 10

	if _, err := f.core.ModerationQueue(ctx, ana); !errors.Is(err, ErrForbidden) {
		t.Fatalf("contributor queue err = %v", err)
	}

	sug := f.mustPutOrg(t, ana, PutRequest[store.Org]{Content: store.Org{Name: "Street Kitchen"}})
	queue, err := f.core.ModerationQueue(ctx, mod)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	var orgItems []store.QueueItem
	for _, qk := range queue.Entities {
		if qk.Kind == "org" {
			orgItems = qk.Items
		}
	}
	if len(orgItems) != 1 {
		t.Fatalf("org queue = %+v", orgItems)
	}
	item := orgItems[0]
	if item.Author != "ana" || item.HasLive || item.EntityID != sug.Version.EntityID {
		t.Fatalf("queue item = %+v", item)
	}

	// Accepting the submission clears it.
	f.mustPutOrg(t, mod, PutRequest[store.Org]{
		ID: sug.Version.EntityID, Content: store.Org{Name: "Street Kitchen"}, Visibility: store.VisibilityPublic,
	})
	queue, _ = f.core.ModerationQueue(ctx, mod)
	for _, qk := range queue.Entities {
		if len(qk.Items) != 0 {
			t.Fatalf("queue %s after accept = %+v", qk.Kind, qk.Items)
		}
	}
}

func TestHistoryOrderingAndParents(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.clock = 50
	addr := f.mustPutAddr(t, mod, PutRequest[store.Address]{Content: store.Address{Postal: "1 Main St"}, Visibility: store.VisibilityPublic})

	f.clock = 100
	org1 := f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: store.Org{Name: "First"}, Visibility: store.VisibilityPublic})
	org2 := f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: store.Org{Name: "Second"}, Visibility: store.VisibilityPublic})
	if _, err := f.core.PutLink(ctx, mod, "org", "address", org1.Entity.ID, addr.Entity.ID); err != nil {
		t.Fatalf("put link: %v", err)
	}

	if _, err := f.core.History(ctx, ana, 10, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("contributor history err = %v", err)
	}
	items, err := f.core.History(ctx, mod, 10, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("history length = %d, want 4", len(items))
	}
	// Equal action times: newer version ids first, link events last.
	if items[0].EntityID != org2.Entity.ID || items[1].EntityID != org1.Entity.ID {
		t.Fatalf("version order = %+v", items[:2])
	}
	if items[2].VersionID != -1 || items[2].Kind != "org_address" {
		t.Fatalf("link event = %+v", items[2])
	}
	if items[3].ATime != 50 || items[3].Kind != "address" {
		t.Fatalf("oldest item = %+v", items[3])
	}
	// The address version is annotated with its live parent.
	if items[3].ParentKind != "org" || items[3].ParentID != org1.Entity.ID || items[3].ParentName != "First" {
		t.Fatalf("parent = %+v", items[3])
	}
}

func TestHistoryPagination(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for i, name := range []string{"A", "B", "C"} {
		f.clock = float64(10 * (i + 1))
		f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: store.Org{Name: name}, Visibility: store.VisibilityPublic})
	}
	page, err := f.core.History(ctx, mod, 2, 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page) != 2 || page[0].ATime != 20 || page[1].ATime != 10 {
		t.Fatalf("page = %+v", page)
	}
	empty, err := f.core.History(ctx, mod, 2, 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("past-the-end page = %+v, %v", empty, err)
	}
}

func TestGetLiveVisibility(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	private := f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: store.Org{Name: "Hidden"}, Visibility: store.VisibilityPrivate})
	public := f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: store.Org{Name: "Open"}, Visibility: store.VisibilityPublic})

	if _, err := f.orgWF.GetLive(ctx, anon, public.Entity.ID); err != nil {
		t.Fatalf("anonymous read of public: %v", err)
	}
	if _, err := f.orgWF.GetLive(ctx, anon, private.Entity.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("anonymous read of private err = %v", err)
	}
	if _, err := f.orgWF.GetLive(ctx, ana, private.Entity.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("contributor read of private err = %v", err)
	}
	if _, err := f.orgWF.GetLive(ctx, mod, private.Entity.ID); err != nil {
		t.Fatalf("moderator read of private: %v", err)
	}
	if _, err := f.orgWF.GetLive(ctx, anon, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("absent read err = %v", err)
	}
}

func TestVersionReadAccess(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sug := f.mustPutOrg(t, ana, PutRequest[store.Org]{Content: store.Org{Name: "Mine"}})

	if _, err := f.orgWF.LatestSubmission(ctx, ana, sug.Version.EntityID); err != nil {
		t.Fatalf("own submission: %v", err)
	}
	if _, err := f.orgWF.LatestSubmission(ctx, ben, sug.Version.EntityID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other submission err = %v", err)
	}
	if _, err := f.orgWF.LatestSubmission(ctx, anon, sug.Version.EntityID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("anonymous submission err = %v", err)
	}

	if _, err := f.orgWF.GetVersion(ctx, ana, sug.Version.ID); err != nil {
		t.Fatalf("author version read: %v", err)
	}
	if _, err := f.orgWF.GetVersion(ctx, mod, sug.Version.ID); err != nil {
		t.Fatalf("moderator version read: %v", err)
	}
	if _, err := f.orgWF.GetVersion(ctx, ben, sug.Version.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger version read err = %v", err)
	}
}

func TestHooksFireOnlyAfterSuccess(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.orgs.failInsertVersion = errors.New("disk full")
	if _, err := f.orgWF.Put(ctx, mod, PutRequest[store.Org]{Content: store.Org{Name: "A"}, Visibility: store.VisibilityPublic}); err == nil {
		t.Fatal("expected store error")
	}
	if len(f.hook.events) != 0 {
		t.Fatalf("hook fired on failed action: %+v", f.hook.events)
	}

	f.orgs.failInsertVersion = nil
	f.mustPutOrg(t, mod, PutRequest[store.Org]{Content: store.Org{Name: "B"}, Visibility: store.VisibilityPublic})
	if len(f.hook.events) != 1 {
		t.Fatalf("hook events = %+v", f.hook.events)
	}
}
