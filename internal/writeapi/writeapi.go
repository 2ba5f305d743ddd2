// Package writeapi enforces the create/update/delete invariants in front of
// the store: callers may set content and importance, never the
// access_count/rehearsal_count/last_accessed_at bookkeeping fields that only
// retrieval is allowed to touch (spec §3.2).
package writeapi

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	"github.com/tempomem/tempomem/internal/clock"
	"github.com/tempomem/tempomem/internal/config"
	"github.com/tempomem/tempomem/internal/model"
	"github.com/tempomem/tempomem/internal/store"
)

var validate = validator.New()

// API is the write-path entry point used by the CLI and HTTP server.
type API struct {
	store store.Store
	cfg   config.Config
	clock clock.Clock
}

func New(s store.Store, cfg config.Config, c clock.Clock) *API {
	return &API{store: s, cfg: cfg, clock: c}
}

// CreateInput is what a caller supplies; ID, access_count, rehearsal_count,
// and last_accessed_at never come from the caller: Create assigns the ID and
// leaves the counters at zero and last_accessed_at unset.
type CreateInput struct {
	OrganizationID  string `validate:"required"`
	UserID          *string
	ImportanceScore *float64
	Metadata        map[string]any
	Item            model.Item `validate:"required"`
}

// Create assigns an ID and timestamps, defaults importance_score if unset,
// and persists the item. importance_score is clamped to
// [cfg.MinImportance, cfg.MaxImportance] rather than rejected out of range.
func (a *API) Create(ctx context.Context, in CreateInput) (model.Item, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvariantViolation, err)
	}
	now := a.clock.Now()
	importance := 0.5
	if in.ImportanceScore != nil {
		importance = *in.ImportanceScore
	}
	importance = a.clampImportance(importance)

	item, err := stampNew(in.Item, model.Base{
		ID:              ulid.Make().String(),
		OrganizationID:  in.OrganizationID,
		UserID:          in.UserID,
		CreatedAt:       now,
		ImportanceScore: importance,
		Metadata:        in.Metadata,
		LastModified:    model.LastModified{Timestamp: now, Operation: "create"},
	})
	if err != nil {
		return nil, err
	}

	if err := a.store.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateInput carries only the fields a caller may change; the content
// mutation is passed to Update separately as apply, since it's per-kind, and
// runs against the loaded item inside the store's UpdateContent call.
type UpdateInput struct {
	Kind            model.Kind
	ID              string
	OrganizationID  string `validate:"required"`
	UserID          *string
	ImportanceScore *float64
	Metadata        map[string]any
}

// Update loads the item, applies the caller's content mutation via apply,
// and rejects any attempt to set the bookkeeping fields directly: there is
// no parameter for access_count, rehearsal_count, or last_accessed_at in
// UpdateInput, so those fields can only move through ApplyRetrievalEffects.
func (a *API) Update(ctx context.Context, in UpdateInput, apply func(model.Item) error) error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvariantViolation, err)
	}
	tenant := model.Tenant{OrganizationID: in.OrganizationID, UserID: in.UserID}
	now := a.clock.Now()

	importance := in.ImportanceScore
	if importance != nil {
		clamped := a.clampImportance(*importance)
		importance = &clamped
	}

	return a.store.UpdateContent(ctx, in.Kind, in.ID, tenant, func(item model.Item) error {
		if err := apply(item); err != nil {
			return err
		}
		setImportance(item, importance)
		setMetadata(item, in.Metadata)
		return nil
	}, now)
}

func (a *API) Delete(ctx context.Context, kind model.Kind, id string, tenant model.Tenant) error {
	return a.store.Delete(ctx, kind, id, tenant)
}

// clampImportance enforces invariant 1 (importance range) by silently
// clamping to the configured bounds instead of rejecting out-of-range values.
func (a *API) clampImportance(v float64) float64 {
	if v < a.cfg.MinImportance {
		return a.cfg.MinImportance
	}
	if v > a.cfg.MaxImportance {
		return a.cfg.MaxImportance
	}
	return v
}

func stampNew(item model.Item, base model.Base) (model.Item, error) {
	switch v := item.(type) {
	case *model.ChatMessage:
		v.Base = base
		return v, nil
	case *model.EpisodicEvent:
		v.Base = base
		return v, nil
	case *model.SemanticItem:
		v.Base = base
		return v, nil
	case *model.ProceduralItem:
		v.Base = base
		return v, nil
	case *model.ResourceItem:
		v.Base = base
		return v, nil
	case *model.KnowledgeVaultItem:
		v.Base = base
		return v, nil
	default:
		return nil, fmt.Errorf("%w: unsupported item type %T", store.ErrInvalidQuery, item)
	}
}

func setImportance(item model.Item, v *float64) {
	if v == nil {
		return
	}
	switch it := item.(type) {
	case *model.ChatMessage:
		it.ImportanceScore = *v
	case *model.EpisodicEvent:
		it.ImportanceScore = *v
	case *model.SemanticItem:
		it.ImportanceScore = *v
	case *model.ProceduralItem:
		it.ImportanceScore = *v
	case *model.ResourceItem:
		it.ImportanceScore = *v
	case *model.KnowledgeVaultItem:
		it.ImportanceScore = *v
	}
}

func setMetadata(item model.Item, m map[string]any) {
	if m == nil {
		return
	}
	switch it := item.(type) {
	case *model.ChatMessage:
		it.Metadata = m
	case *model.EpisodicEvent:
		it.Metadata = m
	case *model.SemanticItem:
		it.Metadata = m
	case *model.ProceduralItem:
		it.Metadata = m
	case *model.ResourceItem:
		it.Metadata = m
	case *model.KnowledgeVaultItem:
		it.Metadata = m
	}
}
