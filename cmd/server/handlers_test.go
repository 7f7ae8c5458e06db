package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cartloop/promorules/rules"
)

type stubEngine struct {
	result *rules.EvaluationResult
	err    error
}

func (e *stubEngine) Evaluate(ctx context.Context, req *rules.EvaluationRequest) (*rules.EvaluationResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func newTestServer(engine rules.Evaluator) *Server {
	if engine == nil {
		engine = &stubEngine{result: &rules.EvaluationResult{}}
	}
	svc := rules.NewService(rules.NewInMemoryRuleStore(), engine)
	return newServerWithService(svc, "http://engine.test/api")
}

func doRequest(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response envelope: %v (body %s)", err, rec.Body.String())
	}
	return rec, env
}

const validRuleBody = `{
	"name": "Bulk Discount",
	"salience": 10,
	"stackable": true,
	"condition": {"field": "line.quantity", "operator": ">=", "value": 5},
	"action": {"type": "applyPercent", "args": [10]}
}`

func createRule(t *testing.T, srv *Server, body string) string {
	t.Helper()
	rec, env := doRequest(t, srv, http.MethodPost, "/api/rules", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	data := env.Data.(map[string]any)
	return data["id"].(string)
}

func TestCreateRule(t *testing.T) {
	srv := newTestServer(nil)

	rec, env := doRequest(t, srv, http.MethodPost, "/api/rules", validRuleBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	if !env.Success || env.Message != "Rule created successfully" {
		t.Errorf("envelope = %+v", env)
	}
	data := env.Data.(map[string]any)
	if data["id"] == "" {
		t.Errorf("no id assigned")
	}
	if data["is_active"] != true {
		t.Errorf("is_active = %v, want default true", data["is_active"])
	}
	if data["priority_description"] != "Very High" {
		t.Errorf("priority_description = %v", data["priority_description"])
	}
}

func TestCreateRule_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "bad condition grammar",
			body:       `{"name": "X", "salience": 1, "condition": {"field": "bogus", "operator": "==", "value": 1}, "action": {"type": "applyPercent", "args": [10]}}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "bad action grammar",
			body:       `{"name": "X", "salience": 1, "condition": {"field": "now", "operator": "==", "value": 1}, "action": {"type": "applyBOGO"}}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "empty name",
			body:       `{"name": "", "salience": 1, "condition": {"field": "now", "operator": "==", "value": 1}, "action": {"type": "applyPercent", "args": [10]}}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "salience out of range",
			body:       `{"name": "X", "salience": 1000, "condition": {"field": "now", "operator": "==", "value": 1}, "action": {"type": "applyPercent", "args": [10]}}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "malformed body",
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(nil)
			rec, env := doRequest(t, srv, http.MethodPost, "/api/rules", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if env.Success {
				t.Errorf("success = true on error response")
			}
		})
	}
}

func TestCreateRule_DuplicateName(t *testing.T) {
	srv := newTestServer(nil)
	createRule(t, srv, validRuleBody)

	rec, _ := doRequest(t, srv, http.MethodPost, "/api/rules", validRuleBody)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestGetRule_DetailView(t *testing.T) {
	srv := newTestServer(nil)
	id := createRule(t, srv, validRuleBody)

	rec, env := doRequest(t, srv, http.MethodGet, "/api/rules/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := env.Data.(map[string]any)
	if data["formatted_condition"] != "Quantity greater than or equal 5" {
		t.Errorf("formatted_condition = %v", data["formatted_condition"])
	}
	if data["formatted_action"] != "Apply 10% discount" {
		t.Errorf("formatted_action = %v", data["formatted_action"])
	}
	if data["type_description"] != "Stackable" {
		t.Errorf("type_description = %v", data["type_description"])
	}
}

func TestGetRule_NotFound(t *testing.T) {
	srv := newTestServer(nil)
	rec, env := doRequest(t, srv, http.MethodGet, "/api/rules/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if env.Message != "Rule not found" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestListRules(t *testing.T) {
	srv := newTestServer(nil)
	createRule(t, srv, validRuleBody)
	createRule(t, srv, strings.Replace(validRuleBody, "Bulk Discount", "Gold Promo", 1))

	rec, env := doRequest(t, srv, http.MethodGet, "/api/rules", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := env.Data.(map[string]any)
	ruleList := data["rules"].([]any)
	if len(ruleList) != 2 {
		t.Fatalf("rules len = %d, want 2", len(ruleList))
	}
	first := ruleList[0].(map[string]any)
	if _, ok := first["formatted_condition"]; ok {
		t.Errorf("list view leaked formatted_condition")
	}
	summary := data["summary"].(map[string]any)
	if summary["total_rules"].(float64) != 2 {
		t.Errorf("summary total_rules = %v", summary["total_rules"])
	}

	rec, env = doRequest(t, srv, http.MethodGet, "/api/rules?search=gold", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("filtered status = %d", rec.Code)
	}
	data = env.Data.(map[string]any)
	if n := len(data["rules"].([]any)); n != 1 {
		t.Errorf("filtered rules len = %d, want 1", n)
	}
}

func TestUpdateRule_PartialMerge(t *testing.T) {
	srv := newTestServer(nil)
	id := createRule(t, srv, validRuleBody)

	rec, env := doRequest(t, srv, http.MethodPut, "/api/rules/"+id, `{"salience": 35}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	data := env.Data.(map[string]any)
	if data["salience"].(float64) != 35 {
		t.Errorf("salience = %v, want 35", data["salience"])
	}
	if data["name"] != "Bulk Discount" {
		t.Errorf("name = %v, untouched field changed", data["name"])
	}
	if data["priority_description"] != "Low" {
		t.Errorf("priority_description = %v, want Low", data["priority_description"])
	}
}

func TestUpdateRule_InvalidGrammar(t *testing.T) {
	srv := newTestServer(nil)
	id := createRule(t, srv, validRuleBody)

	rec, _ := doRequest(t, srv, http.MethodPut, "/api/rules/"+id,
		`{"condition": {"field": "bogus", "operator": "==", "value": 1}}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestDeleteRule(t *testing.T) {
	srv := newTestServer(nil)
	id := createRule(t, srv, validRuleBody)

	rec, _ := doRequest(t, srv, http.MethodDelete, "/api/rules/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec, _ = doRequest(t, srv, http.MethodGet, "/api/rules/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestToggleRule(t *testing.T) {
	srv := newTestServer(nil)
	id := createRule(t, srv, validRuleBody)

	rec, env := doRequest(t, srv, http.MethodPatch, "/api/rules/"+id+"/toggle-status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	data := env.Data.(map[string]any)
	if data["is_active"] != false {
		t.Errorf("is_active = %v, want false after toggle", data["is_active"])
	}
}

const validEvaluateBody = `{
	"line": {"productId": 1, "quantity": 4, "unitPrice": 25},
	"customer": {"email": "buyer@example.com", "type": "retail"}
}`

func TestEvaluate(t *testing.T) {
	engine := &stubEngine{result: &rules.EvaluationResult{
		Applied:        []any{map[string]any{"ruleId": "r1"}},
		TotalDiscount:  10,
		FinalLineTotal: 90,
	}}
	srv := newTestServer(engine)
	createRule(t, srv, validRuleBody)

	rec, env := doRequest(t, srv, http.MethodPost, "/api/evaluate", validEvaluateBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	data := env.Data.(map[string]any)
	result := data["evaluation_result"].(map[string]any)
	if result["totalDiscount"].(float64) != 10 {
		t.Errorf("totalDiscount = %v", result["totalDiscount"])
	}
	meta := data["meta"].(map[string]any)
	if meta["rules_processed"].(float64) != 1 {
		t.Errorf("rules_processed = %v", meta["rules_processed"])
	}
	opts := meta["evaluation_options"].(map[string]any)
	if opts["maxRules"].(float64) != 50 {
		t.Errorf("default maxRules = %v, want 50", opts["maxRules"])
	}
}

func TestEvaluate_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing line",
			body: `{"customer": {"email": "a@b.c", "type": "retail"}}`,
		},
		{
			name: "zero quantity",
			body: `{"line": {"productId": 1, "quantity": 0, "unitPrice": 25}, "customer": {"email": "a@b.c", "type": "retail"}}`,
		},
		{
			name: "quantity over limit",
			body: `{"line": {"productId": 1, "quantity": 10000, "unitPrice": 25}, "customer": {"email": "a@b.c", "type": "retail"}}`,
		},
		{
			name: "zero unit price",
			body: `{"line": {"productId": 1, "quantity": 1, "unitPrice": 0}, "customer": {"email": "a@b.c", "type": "retail"}}`,
		},
		{
			name: "missing email",
			body: `{"line": {"productId": 1, "quantity": 1, "unitPrice": 25}, "customer": {"type": "retail"}}`,
		},
		{
			name: "unknown customer type",
			body: `{"line": {"productId": 1, "quantity": 1, "unitPrice": 25}, "customer": {"email": "a@b.c", "type": "wholesale"}}`,
		},
		{
			name: "unknown loyalty tier",
			body: `{"line": {"productId": 1, "quantity": 1, "unitPrice": 25}, "customer": {"email": "a@b.c", "type": "retail", "loyaltyTier": "platinum"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(nil)
			rec, _ := doRequest(t, srv, http.MethodPost, "/api/evaluate", tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestEvaluate_EngineDown(t *testing.T) {
	srv := newTestServer(&stubEngine{err: rules.ErrEngineUnavailable})

	rec, env := doRequest(t, srv, http.MethodPost, "/api/evaluate", validEvaluateBody)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if env.Message != "Rule evaluation service temporarily unavailable" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestEvaluate_BadEngineResponse(t *testing.T) {
	srv := newTestServer(&stubEngine{err: rules.ErrEngineResponse})

	rec, _ := doRequest(t, srv, http.MethodPost, "/api/evaluate", validEvaluateBody)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(nil)
	createRule(t, srv, validRuleBody)

	rec, env := doRequest(t, srv, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := env.Data.(map[string]any)
	if data["service_status"] != "healthy" {
		t.Errorf("service_status = %v", data["service_status"])
	}
	if data["active_rules_count"].(float64) != 1 {
		t.Errorf("active_rules_count = %v", data["active_rules_count"])
	}
}

func TestInfo(t *testing.T) {
	srv := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var info map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decoding info: %v", err)
	}
	if info["name"] != serviceName || info["version"] != serviceVersion {
		t.Errorf("info = %v", info)
	}
}
