package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// External callers are company-scoped: a customer of company C must see C's
// workflows and never D's, while internal staff see everything.
func TestExternalCallerSeesOnlyOwnCompanyWorkflows(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	seedWorkflow(fs, "wfl_c", "cmp_c", true, false)
	seedWorkflow(fs, "wfl_d", "cmp_d", true)
	registerPerson(t, svc, "cust", "correct horse", "customer", "cmp_c")
	registerPerson(t, svc, "staff", "correct horse", "coordinator")
	server := NewHTTPServer(svc, "*")

	custToken := signIn(t, server, "cust", "correct horse")["token"].(string)
	req := httptest.NewRequest(http.MethodGet, "/api/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+custToken)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var body struct {
		Workflows []map[string]any `json:"workflows"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(body.Workflows) != 1 {
		t.Fatalf("expected 1 workflow for customer, got %d", len(body.Workflows))
	}
	if body.Workflows[0]["workflowID"] != "wfl_c" {
		t.Fatalf("expected wfl_c, got %v", body.Workflows[0]["workflowID"])
	}
	if _, ok := body.Workflows[0]["percentComplete"]; !ok {
		t.Fatalf("expected percentComplete in listing")
	}

	staffToken := signIn(t, server, "staff", "correct horse")["token"].(string)
	req = httptest.NewRequest(http.MethodGet, "/api/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+staffToken)
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(body.Workflows) != 2 {
		t.Fatalf("expected 2 workflows for staff, got %d", len(body.Workflows))
	}
}

func TestExternalCallerCannotReadForeignWorkflow(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	seedWorkflow(fs, "wfl_d", "cmp_d", false)
	registerPerson(t, svc, "cust", "correct horse", "customer", "cmp_c")
	server := NewHTTPServer(svc, "*")

	token := signIn(t, server, "cust", "correct horse")["token"].(string)
	req := httptest.NewRequest(http.MethodGet, "/api/workflows/wfl_d", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestExternalCallerCannotCreateWorkflow(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	seedWorkflow(fs, "wfl_c", "cmp_c", false)
	registerPerson(t, svc, "cust", "correct horse", "customer", "cmp_c")
	server := NewHTTPServer(svc, "*")

	token := signIn(t, server, "cust", "correct horse")["token"].(string)
	payload := bytes.NewBufferString(`{"name":"Sneaky","milestoneID":"mls_cmp_c"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/workflows", payload)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPersonsListingRequiresAdmin(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	registerPerson(t, svc, "cust", "correct horse", "customer", "cmp_c")
	server := NewHTTPServer(svc, "*")

	token := signIn(t, server, "cust", "correct horse")["token"].(string)
	req := httptest.NewRequest(http.MethodGet, "/api/persons", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	registerPerson(t, svc, "cust", "correct horse", "customer")
	server := NewHTTPServer(svc, "*")

	token := signIn(t, server, "cust", "correct horse")["token"].(string)
	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}
