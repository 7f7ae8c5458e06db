package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cartloop/promorules/internal/logger"
)

// Rule name and salience bounds enforced at create and update time.
const (
	maxNameLength = 150
	minSalience   = 0
	maxSalience   = 999
)

// Evaluator delegates rule evaluation to an engine.
type Evaluator interface {
	Evaluate(ctx context.Context, req *EvaluationRequest) (*EvaluationResult, error)
}

// Service validates rule grammar before persisting and orchestrates
// evaluation delegation.
type Service struct {
	store  RuleStore
	engine Evaluator
}

func NewService(store RuleStore, engine Evaluator) *Service {
	return &Service{store: store, engine: engine}
}

// CreateRuleParams carries a new rule's fields. Active defaults to true
// when nil.
type CreateRuleParams struct {
	Name      string
	Salience  int
	Stackable bool
	Condition Condition
	Action    Action
	Active    *bool
}

// UpdateRuleParams carries a partial update; nil fields keep the stored
// value.
type UpdateRuleParams struct {
	Name      *string
	Salience  *int
	Stackable *bool
	Condition *Condition
	Action    *Action
	Active    *bool
}

// List returns rules matching the filters in salience order.
func (s *Service) List(ctx context.Context, f ListFilters) ([]*Rule, error) {
	return s.store.List(ctx, f)
}

// Get returns a single rule by id.
func (s *Service) Get(ctx context.Context, id string) (*Rule, error) {
	return s.store.Get(ctx, id)
}

// Create validates and stores a new rule. Invalid grammar never reaches
// the store.
func (s *Service) Create(ctx context.Context, p CreateRuleParams) (*Rule, error) {
	if err := validateName(p.Name); err != nil {
		return nil, err
	}
	if err := validateSalience(p.Salience); err != nil {
		return nil, err
	}
	if !p.Condition.Valid() {
		return nil, ErrInvalidCondition
	}
	if !p.Action.Valid() {
		return nil, ErrInvalidAction
	}

	active := true
	if p.Active != nil {
		active = *p.Active
	}
	r := &Rule{
		ID:        uuid.NewString(),
		Name:      p.Name,
		Salience:  p.Salience,
		Stackable: p.Stackable,
		Condition: p.Condition,
		Action:    p.Action,
		Active:    active,
	}
	if err := s.store.Insert(ctx, r); err != nil {
		return nil, err
	}
	logger.Info("rule created", "rule_id", r.ID, "name", r.Name, "salience", r.Salience)
	return r, nil
}

// Update merges the supplied fields onto the stored rule and revalidates.
// When either grammar tree changes, both the merged condition and the
// merged action are checked, so an update cannot leave a rule half valid.
func (s *Service) Update(ctx context.Context, id string, p UpdateRuleParams) (*Rule, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		if err := validateName(*p.Name); err != nil {
			return nil, err
		}
		r.Name = *p.Name
	}
	if p.Salience != nil {
		if err := validateSalience(*p.Salience); err != nil {
			return nil, err
		}
		r.Salience = *p.Salience
	}
	if p.Stackable != nil {
		r.Stackable = *p.Stackable
	}
	if p.Active != nil {
		r.Active = *p.Active
	}
	if p.Condition != nil {
		r.Condition = *p.Condition
	}
	if p.Action != nil {
		r.Action = *p.Action
	}
	if p.Condition != nil || p.Action != nil {
		if !r.Condition.Valid() {
			return nil, ErrInvalidCondition
		}
		if !r.Action.Valid() {
			return nil, ErrInvalidAction
		}
	}

	if err := s.store.Update(ctx, r); err != nil {
		return nil, err
	}
	logger.Info("rule updated", "rule_id", r.ID, "name", r.Name)
	return r, nil
}

// Delete removes a rule.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info("rule deleted", "rule_id", id)
	return nil
}

// Toggle flips a rule's active flag. The stored grammar is not
// revalidated, so a rule persisted under an older grammar can still be
// switched off.
func (s *Service) Toggle(ctx context.Context, id string) (*Rule, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Active = !r.Active
	if err := s.store.Update(ctx, r); err != nil {
		return nil, err
	}
	logger.Info("rule toggled", "rule_id", r.ID, "is_active", r.Active)
	return r, nil
}

// Evaluate collects every active rule and delegates the decision to the
// engine. Options are accepted for forward compatibility but do not
// filter the rule set.
func (s *Service) Evaluate(ctx context.Context, line LineItem, customer Customer, _ EvaluateOptions) (*EvaluationResult, error) {
	active := true
	list, err := s.store.List(ctx, ListFilters{Active: &active})
	if err != nil {
		return nil, fmt.Errorf("loading active rules: %w", err)
	}

	req := &EvaluationRequest{
		Line:     line,
		Customer: customer,
		Rules:    make([]EngineRule, len(list)),
	}
	for i, r := range list {
		req.Rules[i] = EngineRule{
			ID:        r.ID,
			Name:      r.Name,
			Salience:  r.Salience,
			Stackable: r.Stackable,
			Condition: r.Condition,
			Action:    r.Action,
		}
	}

	result, err := s.engine.Evaluate(ctx, req)
	if err != nil {
		logger.Error("evaluation failed", "error", err, "rules", len(list))
		return nil, err
	}
	logger.Debug("evaluation completed", "rules", len(list), "total_discount", result.TotalDiscount)
	return result, nil
}

func validateName(name string) error {
	if name == "" || len(name) > maxNameLength {
		return ErrInvalidName
	}
	return nil
}

func validateSalience(salience int) error {
	if salience < minSalience || salience > maxSalience {
		return ErrInvalidSalience
	}
	return nil
}
