package rules

import "errors"

// Sentinel errors returned by the store, the service, and the engine
// client. Callers match with errors.Is to pick a response code.
var (
	// ErrNotFound is returned when no rule exists with the requested id.
	ErrNotFound = errors.New("rule not found")

	// ErrDuplicateName is returned when a rule name collides with an
	// existing rule.
	ErrDuplicateName = errors.New("rule name already exists")

	// ErrInvalidCondition is returned when a condition tree fails
	// grammar validation.
	ErrInvalidCondition = errors.New("invalid condition format")

	// ErrInvalidAction is returned when an action spec fails grammar
	// validation.
	ErrInvalidAction = errors.New("invalid action format")

	// ErrInvalidName is returned when a rule name is empty or too long.
	ErrInvalidName = errors.New("invalid rule name")

	// ErrInvalidSalience is returned when salience falls outside the
	// accepted range.
	ErrInvalidSalience = errors.New("invalid salience")

	// ErrEngineUnavailable is returned when the evaluation engine cannot
	// be reached or answers with an error status.
	ErrEngineUnavailable = errors.New("rule engine unavailable")

	// ErrEngineResponse is returned when the engine answers successfully
	// but its payload cannot be decoded.
	ErrEngineResponse = errors.New("invalid rule engine response")
)
