package odata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func staticToken() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token", TokenType: "Bearer"})
}

func TestListEntities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data" {
			t.Errorf("Expected path /data, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Expected bearer token header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value":[
			{"name":"CustomersV3","url":"CustomersV3"},
			{"name":"VendorsV2","url":"/data/VendorsV2"},
			{"name":"ReleasedProductsV2","url":"https://myorg.operations.dynamics.com/data/ReleasedProductsV2"},
			{"name":"SalesOrderHeadersV2","url":""}
		]}`)
	}))
	defer srv.Close()

	c := NewClient(context.Background(), srv.URL, staticToken())

	entities, err := c.ListEntities(context.Background())
	if err != nil {
		t.Fatalf("ListEntities failed: %v", err)
	}
	if len(entities) != 4 {
		t.Fatalf("Expected 4 entities, got %d", len(entities))
	}

	// Locators are normalized to service-root relative paths
	wantURLs := []string{
		"/data/CustomersV3",
		"/data/VendorsV2",
		"/data/ReleasedProductsV2",
		"/data/SalesOrderHeadersV2",
	}
	for i, want := range wantURLs {
		if entities[i].URL != want {
			t.Errorf("entity %d: expected locator %s, got %s", i, want, entities[i].URL)
		}
	}
}

func TestQueryRecordsEncodesOptions(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"value":[]}`)
	}))
	defer srv.Close()

	c := NewClient(context.Background(), srv.URL, staticToken())

	_, err := c.QueryRecords(context.Background(), "/data/CustomersV3", QueryOptions{
		Filter:       "CustomerAccount eq 'US-001'",
		Select:       []string{"CustomerAccount", "Name"},
		OrderBy:      "Name desc",
		Top:          10,
		CrossCompany: true,
	})
	if err != nil {
		t.Fatalf("QueryRecords failed: %v", err)
	}

	parsed, err := url.ParseQuery(gotQuery)
	if err != nil {
		t.Fatalf("failed to parse query %q: %v", gotQuery, err)
	}
	checks := map[string]string{
		"$filter":       "CustomerAccount eq 'US-001'",
		"$select":       "CustomerAccount,Name",
		"$orderby":      "Name desc",
		"$top":          "10",
		"cross-company": "true",
	}
	for k, want := range checks {
		if got := parsed.Get(k); got != want {
			t.Errorf("query option %s = %q, want %q", k, got, want)
		}
	}
	if parsed.Has("$expand") {
		t.Error("Did not expect $expand for zero value")
	}
}

func TestGetRecordURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"CustomerAccount":"US-001"}`)
	}))
	defer srv.Close()

	c := NewClient(context.Background(), srv.URL, staticToken())

	body, err := c.GetRecord(context.Background(), "/data/CustomersV3", "dataAreaId='usmf',CustomerAccount='US-001'")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}

	want := "/data/CustomersV3(dataAreaId='usmf',CustomerAccount='US-001')"
	if gotPath != want {
		t.Errorf("Expected path %s, got %s", want, gotPath)
	}

	var record map[string]string
	if err := json.Unmarshal(body, &record); err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	if record["CustomerAccount"] != "US-001" {
		t.Errorf("Expected CustomerAccount US-001, got %s", record["CustomerAccount"])
	}
}

func TestUpdateRecordPatchNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("Expected PATCH, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected application/json content type, got %s", ct)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(context.Background(), srv.URL, staticToken())

	err := c.UpdateRecord(context.Background(), "/data/CustomersV3", "CustomerAccount='US-001'", json.RawMessage(`{"Name":"Updated"}`))
	if err != nil {
		t.Fatalf("UpdateRecord failed: %v", err)
	}
}

func TestCallActionURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		fmt.Fprint(w, `{"value":42}`)
	}))
	defer srv.Close()

	c := NewClient(context.Background(), srv.URL, staticToken())

	result, err := c.CallAction(context.Background(), "/data/CustomersV3", "calculateBalance", json.RawMessage(`{"account":"US-001"}`))
	if err != nil {
		t.Fatalf("CallAction failed: %v", err)
	}

	want := "/data/CustomersV3/Microsoft.Dynamics.DataEntities.calculateBalance"
	if gotPath != want {
		t.Errorf("Expected path %s, got %s", want, gotPath)
	}
	if string(result) != `{"value":42}` {
		t.Errorf("Unexpected action result: %s", result)
	}
}

func TestCallErrorOnFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"insufficient privileges"}}`)
	}))
	defer srv.Close()

	c := NewClient(context.Background(), srv.URL, staticToken())

	_, err := c.QueryRecords(context.Background(), "/data/CustomersV3", QueryOptions{})
	if err == nil {
		t.Fatal("Expected an error for 403 response")
	}

	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("Expected *CallError, got %T", err)
	}
	if callErr.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", callErr.StatusCode)
	}
	if callErr.Body == "" {
		t.Error("Expected error body to be preserved")
	}
}

func TestNormalizeLocator(t *testing.T) {
	tests := []struct {
		locator string
		name    string
		want    string
	}{
		{"", "CustomersV3", "/data/CustomersV3"},
		{"CustomersV3", "CustomersV3", "/data/CustomersV3"},
		{"/data/CustomersV3", "CustomersV3", "/data/CustomersV3"},
		{"https://myorg.operations.dynamics.com/data/CustomersV3", "CustomersV3", "/data/CustomersV3"},
	}

	for _, tt := range tests {
		if got := normalizeLocator(tt.locator, tt.name); got != tt.want {
			t.Errorf("normalizeLocator(%q, %q) = %s, want %s", tt.locator, tt.name, got, tt.want)
		}
	}
}
