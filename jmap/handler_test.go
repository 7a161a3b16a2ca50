package jmap_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/mailtree/creation"
	"github.com/jacentio/mailtree/jmap"
	"github.com/jacentio/mailtree/store"
)

func apiRequest(principal, body string) events.APIGatewayProxyRequest {
	req := events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Body:       body,
	}
	if principal != "" {
		req.RequestContext.Authorizer = map[string]interface{}{"principalId": principal}
	}
	return req
}

func newHandler(s *scriptedStore) *jmap.Handler {
	return jmap.NewHandler(creation.NewProcessor(s, s.Store, nil, nil), 0, nil)
}

func decodeResponse(t *testing.T, resp events.APIGatewayProxyResponse) jmap.SetMailboxesResponse {
	t.Helper()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	var out jmap.SetMailboxesResponse
	if err := json.Unmarshal([]byte(resp.Body), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHandleSetMailboxes_CreatesTree(t *testing.T) {
	ctx := context.Background()
	s := newScriptedStore()
	h := newHandler(s)

	body := `{"create": {
		"leaf":  {"name": "c", "parentId": "#mid"},
		"mid":   {"name": "b", "parentId": "#root"},
		"root":  {"name": "a"}
	}}`
	resp, err := h.HandleSetMailboxes(ctx, apiRequest("alice", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := resp.Headers["Content-Type"]; ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	out := decodeResponse(t, resp)
	if out.AccountID != "alice" {
		t.Errorf("expected accountId alice, got %q", out.AccountID)
	}
	if len(out.Created) != 3 || out.NotCreated != nil {
		t.Fatalf("expected 3 created and none failed, got %+v", out)
	}

	leaf := out.Created["leaf"]
	id, err := store.ParseMailboxID(leaf.ID)
	if err != nil {
		t.Fatalf("expected persistent id, got %q", leaf.ID)
	}
	mb, err := s.GetMailbox(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mb.Path.Name != "a/b/c" || mb.Path.User != "alice" {
		t.Errorf("expected alice's a/b/c, got %+v", mb.Path)
	}

	subs, _ := s.Subscriptions(ctx, "alice")
	if len(subs) != 3 {
		t.Errorf("expected 3 subscriptions, got %v", subs)
	}
}

func TestHandleSetMailboxes_Cycle(t *testing.T) {
	s := newScriptedStore()
	h := newHandler(s)

	body := `{"create": {"a": {"name": "a", "parentId": "#b"}, "b": {"name": "b", "parentId": "#a"}}}`
	resp, err := h.HandleSetMailboxes(context.Background(), apiRequest("alice", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := decodeResponse(t, resp)
	if out.Created != nil {
		t.Errorf("expected nothing created, got %v", out.Created)
	}
	for _, id := range []string{"a", "b"} {
		got := out.NotCreated[id]
		if got.Type != "invalidArguments" || got.Description != "The created mailboxes introduce a cycle." {
			t.Errorf("%s: unexpected set error %+v", id, got)
		}
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
}

func TestHandleSetMailboxes_ExplicitAccountAndBase64(t *testing.T) {
	h := newHandler(newScriptedStore())

	req := apiRequest("alice", base64.StdEncoding.EncodeToString([]byte(`{"accountId":"acc-1","create":{"x":{"name":"Inbox"}}}`)))
	req.IsBase64Encoded = true

	resp, err := h.HandleSetMailboxes(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := decodeResponse(t, resp)
	if out.AccountID != "acc-1" {
		t.Errorf("expected accountId acc-1, got %q", out.AccountID)
	}
	if _, ok := out.Created["x"]; !ok {
		t.Errorf("expected x created, got %+v", out)
	}
}

func TestHandleSetMailboxes_CustomDelimiter(t *testing.T) {
	s := newScriptedStore()
	h := jmap.NewHandler(creation.NewProcessor(s, nil, nil, nil), '.', nil)

	body := `{"create": {"ok": {"name": "a/b"}, "bad": {"name": "a.b"}}}`
	resp, err := h.HandleSetMailboxes(context.Background(), apiRequest("alice", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := decodeResponse(t, resp)
	if _, ok := out.Created["ok"]; !ok {
		t.Errorf("expected 'a/b' to be valid with '.' delimiter")
	}
	if got := out.NotCreated["bad"].Description; got != "The mailbox 'a.b' contains an illegal character: '.'" {
		t.Errorf("unexpected description %q", got)
	}
}

func TestHandleSetMailboxes_RequestErrors(t *testing.T) {
	h := newHandler(newScriptedStore())

	badBase64 := apiRequest("alice", "%%%")
	badBase64.IsBase64Encoded = true

	get := apiRequest("alice", `{}`)
	get.HTTPMethod = http.MethodGet

	tests := []struct {
		name       string
		req        events.APIGatewayProxyRequest
		wantStatus int
	}{
		{name: "wrong method", req: get, wantStatus: http.StatusMethodNotAllowed},
		{name: "no principal", req: apiRequest("", `{"create":{}}`), wantStatus: http.StatusUnauthorized},
		{name: "malformed json", req: apiRequest("alice", `{"create":`), wantStatus: http.StatusBadRequest},
		{name: "create not an object", req: apiRequest("alice", `{"create":[]}`), wantStatus: http.StatusBadRequest},
		{name: "bad base64", req: badBase64, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := h.HandleSetMailboxes(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			var setErr jmap.SetError
			if err := json.Unmarshal([]byte(resp.Body), &setErr); err != nil || setErr.Type == "" {
				t.Errorf("expected a JSON error body, got %q", resp.Body)
			}
		})
	}
}

func TestHandleSetMailboxes_NoCreates(t *testing.T) {
	h := newHandler(newScriptedStore())

	resp, err := h.HandleSetMailboxes(context.Background(), apiRequest("alice", `{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := decodeResponse(t, resp)
	if out.Created != nil || out.NotCreated != nil {
		t.Errorf("expected empty response, got %+v", out)
	}
}
