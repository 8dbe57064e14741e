package moderation

import (
	"context"
	"fmt"

	"mango/internal/store"
)

// EntityOps is the full store surface a workflow drives for its kind.
// *store.EntityStore[C] satisfies it; tests substitute in-memory fakes.
type EntityOps[C any] interface {
	KindOps
	AllocateID(ctx context.Context, q store.Querier) (int64, error)
	GetLive(ctx context.Context, q store.Querier, id int64) (store.Entity[C], bool, error)
	UpsertLive(ctx context.Context, q store.Querier, e store.Entity[C]) error
	InsertVersion(ctx context.Context, q store.Querier, v store.Version[C]) (store.Version[C], error)
	ResetActionTime(ctx context.Context, q store.Querier, id, userID int64) (bool, error)
	DeleteLive(ctx context.Context, q store.Querier, id int64) (bool, error)
	LatestVersion(ctx context.Context, q store.Querier, id int64) (store.Version[C], bool, error)
	LatestVersionBy(ctx context.Context, q store.Querier, userID, id int64) (store.Version[C], bool, error)
	GetVersion(ctx context.Context, q store.Querier, versionID int64) (store.Version[C], bool, error)
	ListLive(ctx context.Context, q store.Querier, onlyPublic bool) ([]store.Entity[C], error)
}

// Workflow runs the moderation protocol for one entity kind.
type Workflow[C any] struct {
	core  *Core
	desc  store.Kind[C]
	store EntityOps[C]
}

// NewWorkflow builds the workflow for one kind and registers its store
// with the core so cascades and queues can reach it.
func NewWorkflow[C any](core *Core, desc store.Kind[C]) *Workflow[C] {
	w := &Workflow[C]{core: core, desc: desc, store: store.NewEntityStore(desc)}
	core.registerKind(w.store)
	return w
}

func (w *Workflow[C]) KindName() string { return w.desc.Name }

// PutRequest is one submission: new when ID is zero, an edit otherwise.
type PutRequest[C any] struct {
	ID         int64
	Content    C
	Visibility store.Visibility
}

// PutResult reports what a submission produced. NoOp means the
// submission matched existing state and nothing was written.
type PutResult[C any] struct {
	Entity     *store.Entity[C]
	Version    *store.Version[C]
	BecameLive bool
	NoOp       bool
	Location   string
}

func (w *Workflow[C]) liveLocation(id int64) string {
	return fmt.Sprintf("/%s/%d", w.desc.Name, id)
}

func (w *Workflow[C]) versionLocation(id, versionID int64) string {
	return fmt.Sprintf("/%s/%d/revision/%d", w.desc.Name, id, versionID)
}

// Put submits content. A moderator's submission goes live immediately
// and triggers the link acceptor; anyone else's is recorded as a pending
// version for the queue. Resubmitting identical content is a no-op so
// double-posts leave no ledger noise.
func (w *Workflow[C]) Put(ctx context.Context, caller Caller, req PutRequest[C]) (PutResult[C], error) {
	if !caller.CanWrite() {
		return PutResult[C]{}, ErrForbidden
	}
	now := w.core.now()

	var result PutResult[C]
	err := w.core.transact(ctx, func(q store.Querier, ev *eventLog) error {
		id := req.ID
		if id == 0 {
			allocated, err := w.store.AllocateID(ctx, q)
			if err != nil {
				return err
			}
			id = allocated
		}
		live, hasLive, err := w.store.GetLive(ctx, q, id)
		if err != nil {
			return err
		}

		if caller.Moderator {
			vis := req.Visibility
			if vis == store.VisibilityPending {
				vis = store.VisibilityPublic
			}
			if hasLive && w.desc.Equal(live.Content, req.Content) && live.Visibility == vis {
				if _, err := w.store.ResetActionTime(ctx, q, id, caller.UserID); err != nil {
					return err
				}
				live.ATime = 0
				live.ModerationUserID = caller.UserID
				result = PutResult[C]{Entity: &live, NoOp: true, Location: w.liveLocation(id)}
				return nil
			}
			e := store.Entity[C]{
				ID:               id,
				Content:          req.Content,
				ModerationUserID: caller.UserID,
				ATime:            now,
				Visibility:       vis,
			}
			if err := w.store.UpsertLive(ctx, q, e); err != nil {
				return err
			}
			v, err := w.store.InsertVersion(ctx, q, store.Version[C]{
				EntityID:         id,
				Content:          req.Content,
				ModerationUserID: caller.UserID,
				ATime:            now,
				Existence:        true,
				Visibility:       vis,
			})
			if err != nil {
				return err
			}
			result = PutResult[C]{Entity: &e, Version: &v, BecameLive: !hasLive, Location: w.liveLocation(id)}
			ev.add(w.desc.Name, id, true)
			if result.BecameLive {
				return w.core.acceptNew(ctx, q, w.desc.Name, id, now, ev)
			}
			return nil
		}

		// Contributor path: never touches the live row.
		if hasLive && w.desc.Equal(live.Content, req.Content) {
			result = PutResult[C]{Entity: &live, NoOp: true, Location: w.liveLocation(id)}
			return nil
		}
		own, hasOwn, err := w.store.LatestVersionBy(ctx, q, caller.UserID, id)
		if err != nil {
			return err
		}
		if hasOwn && own.Existence && w.desc.Equal(own.Content, req.Content) {
			result = PutResult[C]{Version: &own, NoOp: true, Location: w.versionLocation(id, own.ID)}
			return nil
		}
		v, err := w.store.InsertVersion(ctx, q, store.Version[C]{
			EntityID:         id,
			Content:          req.Content,
			ModerationUserID: caller.UserID,
			ATime:            now,
			Existence:        true,
			Visibility:       store.VisibilityPending,
		})
		if err != nil {
			return err
		}
		result = PutResult[C]{Version: &v, Location: w.versionLocation(id, v.ID)}
		return nil
	})
	if err != nil {
		return PutResult[C]{}, err
	}
	return result, nil
}

// Touch is the moderator's "reviewed, keep as is": a live entity gets
// its action time reset so the queue comparison clears; an entity with
// only pending versions gets a decline entry instead. Touching an
// identity with no trace at all is an error.
func (w *Workflow[C]) Touch(ctx context.Context, caller Caller, id int64) error {
	if !caller.Moderator || caller.Locked {
		return ErrForbidden
	}
	now := w.core.now()
	return w.core.transact(ctx, func(q store.Querier, ev *eventLog) error {
		found, err := w.store.ResetActionTime(ctx, q, id, caller.UserID)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		_, hasVersion, err := w.store.LatestVersionMeta(ctx, q, id)
		if err != nil {
			return err
		}
		if !hasVersion {
			return ErrNotFound
		}
		_, err = w.store.InsertDecline(ctx, q, id, caller.UserID, now)
		return err
	})
}

// Delete removes the live entity, records a closing ledger entry, and
// cascades: live links come down, pending link suggestions are declined,
// and child suggestions orphaned by the removal are declined too.
func (w *Workflow[C]) Delete(ctx context.Context, caller Caller, id int64) error {
	if !caller.Moderator || caller.Locked {
		return ErrForbidden
	}
	now := w.core.now()
	return w.core.transact(ctx, func(q store.Querier, ev *eventLog) error {
		live, hasLive, err := w.store.GetLive(ctx, q, id)
		if err != nil {
			return err
		}
		if !hasLive {
			return ErrNotFound
		}
		if _, err := w.store.InsertVersion(ctx, q, store.Version[C]{
			EntityID:         id,
			Content:          live.Content,
			ModerationUserID: caller.UserID,
			ATime:            now,
			Existence:        false,
			Visibility:       live.Visibility,
		}); err != nil {
			return err
		}
		if _, err := w.store.DeleteLive(ctx, q, id); err != nil {
			return err
		}
		if err := w.core.cascadeDelete(ctx, q, w.desc.Name, id, caller.UserID, now, ev); err != nil {
			return err
		}
		ev.add(w.desc.Name, id, false)
		return nil
	})
}

// GetLive fetches the live entity as the caller may see it. Private
// entities are visible to moderators and to the user who last moderated
// them; everyone else gets not-found, indistinguishable from absence.
func (w *Workflow[C]) GetLive(ctx context.Context, caller Caller, id int64) (store.Entity[C], error) {
	e, ok, err := w.store.GetLive(ctx, w.core.db, id)
	if err != nil {
		return store.Entity[C]{}, err
	}
	if !ok {
		return store.Entity[C]{}, ErrNotFound
	}
	if e.Visibility == store.VisibilityPublic {
		return e, nil
	}
	if caller.Moderator || (!caller.Anonymous() && caller.UserID == e.ModerationUserID) {
		return e, nil
	}
	return store.Entity[C]{}, ErrNotFound
}

// LatestSubmission returns the caller's own most recent version for the
// identity, so a contributor can review an unresolved suggestion.
func (w *Workflow[C]) LatestSubmission(ctx context.Context, caller Caller, id int64) (store.Version[C], error) {
	if caller.Anonymous() {
		return store.Version[C]{}, ErrForbidden
	}
	v, ok, err := w.store.LatestVersionBy(ctx, w.core.db, caller.UserID, id)
	if err != nil {
		return store.Version[C]{}, err
	}
	if !ok {
		return store.Version[C]{}, ErrNotFound
	}
	return v, nil
}

// GetVersion fetches one ledger entry. Only moderators and the entry's
// author may read it.
func (w *Workflow[C]) GetVersion(ctx context.Context, caller Caller, versionID int64) (store.Version[C], error) {
	v, ok, err := w.store.GetVersion(ctx, w.core.db, versionID)
	if err != nil {
		return store.Version[C]{}, err
	}
	if !ok {
		return store.Version[C]{}, ErrNotFound
	}
	if caller.Moderator || (!caller.Anonymous() && caller.UserID == v.ModerationUserID) {
		return v, nil
	}
	return store.Version[C]{}, ErrNotFound
}

// ListLive lists live entities for read-only surfaces. Non-moderators
// see public rows only.
func (w *Workflow[C]) ListLive(ctx context.Context, caller Caller) ([]store.Entity[C], error) {
	return w.store.ListLive(ctx, w.core.db, !caller.Moderator)
}
