package figma

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVariableValueUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(v VariableValue) bool
	}{
		{"float", `16.5`, func(v VariableValue) bool { return v.Float != nil && *v.Float == 16.5 }},
		{"string", `"Inter"`, func(v VariableValue) bool { return v.Str != nil && *v.Str == "Inter" }},
		{"bool", `true`, func(v VariableValue) bool { return v.Bool != nil && *v.Bool }},
		{
			"color", `{"r":1,"g":0.5,"b":0,"a":1}`,
			func(v VariableValue) bool {
				return v.Color != nil && v.Color.R == 1 && v.Color.G == 0.5 && v.Color.A == 1
			},
		},
		{
			"alias", `{"type":"VARIABLE_ALIAS","id":"VariableID:1:2"}`,
			func(v VariableValue) bool { return v.Alias != nil && *v.Alias == "VariableID:1:2" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v VariableValue
			if err := json.Unmarshal([]byte(tt.raw), &v); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if !tt.check(v) {
				t.Errorf("unexpected value shape: %+v", v)
			}
		})
	}
}

func TestVariableValueMarshalRoundTrip(t *testing.T) {
	for _, raw := range []string{`16.5`, `"Inter"`, `true`, `{"type":"VARIABLE_ALIAS","id":"VariableID:1:2"}`} {
		var v VariableValue
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		out, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var again VariableValue
		if err := json.Unmarshal(out, &again); err != nil {
			t.Fatalf("re-unmarshal %s: %v", out, err)
		}
	}
}

func TestVariableCategory(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"color/primary-500", "color"},
		{"spacing/lg", "spacing"},
		{"plain", ""},
		{"a/b/c", "a"},
	}
	for _, tt := range tests {
		v := Variable{Name: tt.name}
		if got := v.Category(); got != tt.want {
			t.Errorf("Category(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestComparisonValue(t *testing.T) {
	f := 4.0
	g := 8.0
	snap := &Snapshot{
		Collections: map[string]Collection{
			"c1": {ID: "c1", DefaultModeID: "m1", Modes: []Mode{{ID: "m1"}, {ID: "m2"}}},
		},
	}
	v := Variable{
		ID:           "v1",
		CollectionID: "c1",
		ValuesByMode: map[string]VariableValue{
			"m1": {Float: &f},
			"m2": {Float: &g},
		},
	}

	got, err := snap.ComparisonValue(v, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Float == nil || *got.Float != 4.0 {
		t.Errorf("expected default mode value 4, got %+v", got)
	}

	got, err = snap.ComparisonValue(v, map[string]string{"c1": "m2"})
	if err != nil {
		t.Fatalf("unexpected error with override: %v", err)
	}
	if got.Float == nil || *got.Float != 8.0 {
		t.Errorf("expected override mode value 8, got %+v", got)
	}

	if _, err := snap.ComparisonValue(Variable{ID: "v2", CollectionID: "nope"}, nil); err == nil {
		t.Error("expected error for unknown collection")
	}
	if _, err := snap.ComparisonValue(v, map[string]string{"c1": "m3"}); err == nil {
		t.Error("expected error for missing mode value")
	}
}

func TestClientFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/files/abc123/variables/local" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Figma-Token"); got != "secret" {
			t.Errorf("unexpected token header: %q", got)
		}
		_, _ = w.Write([]byte(`{
			"error": false,
			"status": 200,
			"meta": {
				"variables": {
					"v1": {"id":"v1","name":"color/primary","variableCollectionId":"c1","resolvedType":"COLOR",
						"valuesByMode":{"m1":{"r":1,"g":0,"b":0,"a":1}}}
				},
				"variableCollections": {
					"c1": {"id":"c1","name":"Brand","defaultModeId":"m1","modes":[{"modeId":"m1","name":"Default"}]}
				}
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient("secret", srv.Client())
	client.SetBaseURL(srv.URL)

	snap, err := client.FetchSnapshot(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if len(snap.Variables) != 1 || len(snap.Collections) != 1 {
		t.Fatalf("unexpected snapshot sizes: %d vars, %d collections", len(snap.Variables), len(snap.Collections))
	}
	v := snap.Variables["v1"]
	if v.Name != "color/primary" || v.ResolvedType != "COLOR" {
		t.Errorf("unexpected variable: %+v", v)
	}
	if v.ValuesByMode["m1"].Color == nil {
		t.Error("expected color value for mode m1")
	}
}

func TestClientFetchSnapshotHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient("bad", srv.Client())
	client.SetBaseURL(srv.URL)

	_, err := client.FetchSnapshot(context.Background(), "abc123")
	var fe *RemoteFetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected RemoteFetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", fe.StatusCode)
	}
}

func TestClientFetchSnapshotAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": true, "status": 403, "message": "Invalid token"}`))
	}))
	defer srv.Close()

	client := NewClient("bad", srv.Client())
	client.SetBaseURL(srv.URL)

	_, err := client.FetchSnapshot(context.Background(), "abc123")
	var fe *RemoteFetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected RemoteFetchError, got %v", err)
	}
}
