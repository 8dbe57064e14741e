package app

import (
	"context"
	"encoding/json"
	"net/http"

	"mango/internal/moderation"
	"mango/internal/store"
)

// PutOutcome reports a submission for the HTTP layer: Live means the
// content is in the live table now, Pending means it went to the queue.
type PutOutcome struct {
	Live     bool
	Pending  bool
	NoOp     bool
	Location string
	Payload  any
}

// entityAPI is the kind-erased surface the service drives for one entity
// kind. entityResource adapts a typed workflow to it.
type entityAPI interface {
	Kind() string
	Put(ctx context.Context, caller moderation.Caller, id int64, body []byte) (PutOutcome, error)
	Touch(ctx context.Context, caller moderation.Caller, id int64) error
	Delete(ctx context.Context, caller moderation.Caller, id int64) error
	Get(ctx context.Context, caller moderation.Caller, id int64) (payload any, public bool, err error)
	List(ctx context.Context, caller moderation.Caller) (any, error)
	Submission(ctx context.Context, caller moderation.Caller, id int64) (any, error)
	Revision(ctx context.Context, caller moderation.Caller, versionID int64) (any, error)
}

type entityResource[C any] struct {
	wf *moderation.Workflow[C]
}

// RegisterEntity wires one kind's workflow into the service.
func RegisterEntity[C any](s *Service, wf *moderation.Workflow[C]) {
	s.registerEntity(&entityResource[C]{wf: wf})
}

func (r *entityResource[C]) Kind() string { return r.wf.KindName() }

func (r *entityResource[C]) Put(ctx context.Context, caller moderation.Caller, id int64, body []byte) (PutOutcome, error) {
	var content C
	if err := json.Unmarshal(body, &content); err != nil {
		return PutOutcome{}, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	// The visibility rides alongside the content fields.
	var envelope struct {
		Visibility string `json:"visibility"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return PutOutcome{}, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	visibility, err := store.ParseVisibility(envelope.Visibility)
	if err != nil {
		return PutOutcome{}, domainError(http.StatusBadRequest, "INVALID_VISIBILITY", err.Error(), nil)
	}

	result, err := r.wf.Put(ctx, caller, moderation.PutRequest[C]{
		ID:         id,
		Content:    content,
		Visibility: visibility,
	})
	if err != nil {
		return PutOutcome{}, err
	}

	outcome := PutOutcome{
		Live:     result.Entity != nil,
		Pending:  result.Entity == nil,
		NoOp:     result.NoOp,
		Location: result.Location,
	}
	if result.Entity != nil {
		outcome.Payload = r.renderEntity(*result.Entity)
	} else if result.Version != nil {
		outcome.Payload = r.renderVersion(*result.Version)
	}
	return outcome, nil
}

func (r *entityResource[C]) Touch(ctx context.Context, caller moderation.Caller, id int64) error {
	return r.wf.Touch(ctx, caller, id)
}

func (r *entityResource[C]) Delete(ctx context.Context, caller moderation.Caller, id int64) error {
	return r.wf.Delete(ctx, caller, id)
}

func (r *entityResource[C]) Get(ctx context.Context, caller moderation.Caller, id int64) (any, bool, error) {
	e, err := r.wf.GetLive(ctx, caller, id)
	if err != nil {
		return nil, false, err
	}
	return r.renderEntity(e), e.Visibility == store.VisibilityPublic, nil
}

func (r *entityResource[C]) List(ctx context.Context, caller moderation.Caller) (any, error) {
	entities, err := r.wf.ListLive(ctx, caller)
	if err != nil {
		return nil, err
	}
	rendered := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		rendered = append(rendered, r.renderEntity(e))
	}
	return rendered, nil
}

func (r *entityResource[C]) Submission(ctx context.Context, caller moderation.Caller, id int64) (any, error) {
	v, err := r.wf.LatestSubmission(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return r.renderVersion(v), nil
}

func (r *entityResource[C]) Revision(ctx context.Context, caller moderation.Caller, versionID int64) (any, error) {
	v, err := r.wf.GetVersion(ctx, caller, versionID)
	if err != nil {
		return nil, err
	}
	return r.renderVersion(v), nil
}

func (r *entityResource[C]) renderEntity(e store.Entity[C]) map[string]any {
	return map[string]any{
		"kind":       r.wf.KindName(),
		"id":         e.ID,
		"content":    e.Content,
		"visibility": e.Visibility.String(),
		"aTime":      e.ATime,
	}
}

func (r *entityResource[C]) renderVersion(v store.Version[C]) map[string]any {
	return map[string]any{
		"kind":       r.wf.KindName(),
		"versionId":  v.ID,
		"entityId":   v.EntityID,
		"content":    v.Content,
		"existence":  v.Existence,
		"visibility": v.Visibility.String(),
		"aTime":      v.ATime,
	}
}
