// Package rules implements promotion rule records: their condition and
// action grammars, validation, human-readable rendering, persistence, and
// delegation of evaluation to an external rule engine.
package rules

import "time"

// Rule is a stored promotion rule. Condition and Action hold the rule's
// JSON grammar trees; both tolerate malformed content so that rules
// persisted before a grammar change remain listable.
type Rule struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Salience  int       `json:"salience"`
	Stackable bool      `json:"stackable"`
	Condition Condition `json:"condition"`
	Action    Action    `json:"action"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilters narrows List results. Nil pointer fields mean "no filter".
type ListFilters struct {
	Active       *bool
	Stackable    *bool
	NameContains string
}
