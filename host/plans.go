package host

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hazyhaar/gaia/observability"
	"github.com/hazyhaar/gaia/planstore"
	"github.com/hazyhaar/gaia/reason"
)

type savePlanParams struct {
	SessionID   string          `json:"session_id"`
	URL         string          `json:"url"`
	ContentHash string          `json:"content_hash"`
	Name        string          `json:"name"`
	Plan        json.RawMessage `json:"plan"`
}

type loadPlanParams struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	ContentHash string `json:"content_hash"`
}

type listPlansParams struct {
	Limit int `json:"limit"`
}

func (s *Service) planStore() (*planstore.Store, error) {
	if s.plans == nil {
		return nil, reason.New(reason.NotActionable, "plan repository not configured")
	}
	return s.plans, nil
}

func (s *Service) doSavePlan(ctx context.Context, params json.RawMessage) (any, error) {
	store, err := s.planStore()
	if err != nil {
		return nil, err
	}
	p, err := decode[savePlanParams](params)
	if err != nil {
		return nil, err
	}
	if p.URL == "" {
		return nil, reason.New(reason.InvalidInput, "save_plan requires url")
	}
	if len(p.Plan) == 0 {
		return nil, reason.New(reason.InvalidInput, "save_plan requires plan")
	}
	saved, err := store.Save(ctx, planstore.Plan{
		URL:         p.URL,
		ContentHash: p.ContentHash,
		Name:        p.Name,
		Payload:     p.Plan,
	})
	if err != nil {
		return nil, err
	}
	s.events.Log(observability.EventPlanSaved, p.SessionID, map[string]any{
		"plan_id": saved.ID, "url": p.URL,
	})
	return map[string]any{"plan_id": saved.ID, "reason_code": string(reason.OK)}, nil
}

func (s *Service) doLoadPlan(ctx context.Context, params json.RawMessage) (any, error) {
	store, err := s.planStore()
	if err != nil {
		return nil, err
	}
	p, err := decode[loadPlanParams](params)
	if err != nil {
		return nil, err
	}
	plans, err := store.Load(ctx, p.ID, p.URL, p.ContentHash)
	if err != nil {
		if errors.Is(err, planstore.ErrNotFound) {
			return nil, reason.Errorf(reason.NotFound, "no plan for the given key")
		}
		return nil, err
	}
	return map[string]any{"plans": plans}, nil
}

func (s *Service) doListPlans(ctx context.Context, params json.RawMessage) (any, error) {
	store, err := s.planStore()
	if err != nil {
		return nil, err
	}
	p, err := decode[listPlansParams](params)
	if err != nil {
		return nil, err
	}
	plans, err := store.List(ctx, p.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"plans": plans, "count": len(plans)}, nil
}
