package main

import (
	"time"

	"github.com/cartloop/promorules/rules"
)

// API request and response models.

// envelope is the uniform response wrapper.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateRuleRequest is the body for POST /api/rules.
type CreateRuleRequest struct {
	Name      string          `json:"name"`
	Salience  int             `json:"salience"`
	Stackable bool            `json:"stackable"`
	Condition rules.Condition `json:"condition"`
	Action    rules.Action    `json:"action"`
	IsActive  *bool           `json:"is_active,omitempty"`
}

// UpdateRuleRequest is the body for PUT /api/rules/{id}. Absent fields
// keep the stored value.
type UpdateRuleRequest struct {
	Name      *string          `json:"name,omitempty"`
	Salience  *int             `json:"salience,omitempty"`
	Stackable *bool            `json:"stackable,omitempty"`
	Condition *rules.Condition `json:"condition,omitempty"`
	Action    *rules.Action    `json:"action,omitempty"`
	IsActive  *bool            `json:"is_active,omitempty"`
}

// RuleResponse is a rule in API responses. The formatted fields are only
// populated on the single-rule detail view.
type RuleResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Salience  int             `json:"salience"`
	Stackable bool            `json:"stackable"`
	IsActive  bool            `json:"is_active"`
	Condition rules.Condition `json:"condition"`
	Action    rules.Action    `json:"action"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	PriorityDescription string `json:"priority_description"`
	TypeDescription     string `json:"type_description"`

	FormattedCondition string `json:"formatted_condition,omitempty"`
	FormattedAction    string `json:"formatted_action,omitempty"`
}

func toRuleResponse(r *rules.Rule, detail bool) RuleResponse {
	resp := RuleResponse{
		ID:                  r.ID,
		Name:                r.Name,
		Salience:            r.Salience,
		Stackable:           r.Stackable,
		IsActive:            r.Active,
		Condition:           r.Condition,
		Action:              r.Action,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		PriorityDescription: rules.PriorityDescription(r.Salience),
		TypeDescription:     rules.TypeDescription(r.Stackable),
	}
	if detail {
		resp.FormattedCondition = rules.RenderCondition(&r.Condition)
		resp.FormattedAction = rules.RenderAction(&r.Action)
	}
	return resp
}

// RulesListResponse is the data payload of GET /api/rules.
type RulesListResponse struct {
	Rules   []RuleResponse `json:"rules"`
	Summary rules.Summary  `json:"summary"`
}

// EvaluateRequest is the body for POST /api/evaluate.
type EvaluateRequest struct {
	Line     *rules.LineItem        `json:"line"`
	Customer *rules.Customer        `json:"customer"`
	Options  *rules.EvaluateOptions `json:"options,omitempty"`
}

// EvaluateResponse is the data payload of POST /api/evaluate.
type EvaluateResponse struct {
	EvaluationResult *rules.EvaluationResult `json:"evaluation_result"`
	Meta             EvaluateMeta            `json:"meta"`
}

// EvaluateMeta echoes evaluation context back to the caller.
type EvaluateMeta struct {
	EvaluatedAt       time.Time             `json:"evaluated_at"`
	RulesProcessed    int                   `json:"rules_processed"`
	EvaluationOptions rules.EvaluateOptions `json:"evaluation_options"`
}
