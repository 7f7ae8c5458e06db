package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LineItem is the cart line under evaluation.
type LineItem struct {
	ProductID  int64   `json:"productId"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unitPrice"`
	CategoryID *int64  `json:"categoryId,omitempty"`
}

// Customer is the purchasing customer's profile.
type Customer struct {
	Email       string `json:"email"`
	Type        string `json:"type"`
	LoyaltyTier string `json:"loyaltyTier"`
	OrdersCount int    `json:"ordersCount"`
	City        string `json:"city,omitempty"`
}

// EvaluateOptions are caller hints echoed back in evaluation responses.
// They do not change which rules are sent to the engine.
type EvaluateOptions struct {
	IncludeInactive bool `json:"includeInactive"`
	MaxRules        int  `json:"maxRules"`
}

// EngineRule is a rule in the shape the evaluation engine consumes.
type EngineRule struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Salience  int       `json:"salience"`
	Stackable bool      `json:"stackable"`
	Condition Condition `json:"condition"`
	Action    Action    `json:"action"`
}

// EvaluationRequest is the payload posted to the engine.
type EvaluationRequest struct {
	Line     LineItem     `json:"line"`
	Customer Customer     `json:"customer"`
	Rules    []EngineRule `json:"rules"`
}

// EvaluationResult is the engine's verdict for one line item.
type EvaluationResult struct {
	Applied        []any   `json:"applied"`
	TotalDiscount  float64 `json:"totalDiscount"`
	FinalLineTotal float64 `json:"finalLineTotal"`
}

// EngineClient talks to the external rule engine over HTTP.
type EngineClient struct {
	baseURL string
	client  *http.Client
}

var _ Evaluator = (*EngineClient)(nil)

// NewEngineClient builds a client for the engine rooted at baseURL, e.g.
// "http://localhost:5000/api".
func NewEngineClient(baseURL string, timeout time.Duration) *EngineClient {
	return &EngineClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Evaluate posts the request to the engine's evaluate endpoint. Transport
// failures and non-2xx statuses surface as ErrEngineUnavailable; a 2xx
// with an undecodable body surfaces as ErrEngineResponse.
func (c *EngineClient) Evaluate(ctx context.Context, req *EvaluationRequest) (*EvaluationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding evaluation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building evaluation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: engine returned status %d", ErrEngineUnavailable, resp.StatusCode)
	}

	var result EvaluationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineResponse, err)
	}
	return &result, nil
}
