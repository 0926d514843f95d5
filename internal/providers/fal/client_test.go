package fal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fixedCredits bool

func (f fixedCredits) CanSubmitReal() bool { return bool(f) }

func TestSubmitRejectsUnknownStyle(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "k", BaseURL: srv.URL})
	_, err := client.Submit(context.Background(), "http://example.com/a.jpg", "spin")
	if err == nil {
		t.Fatal("expected error for unknown style")
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.Code != CodeInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
	if called {
		t.Fatal("unknown style must fail before any network call")
	}
}

func TestSubmitSimulationSkipsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("simulation mode must not call the network")
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "k", BaseURL: srv.URL, Simulation: true})
	res, err := client.Submit(context.Background(), "http://example.com/a.jpg", "zoom")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if res.Ref.Kind != RefSimulatedExplicit {
		t.Fatalf("Ref.Kind = %d, want simulated explicit", res.Ref.Kind)
	}
	if !strings.HasPrefix(res.Ref.String(), "sim-") {
		t.Fatalf("serialized ref %q missing sim- prefix", res.Ref.String())
	}
}

func TestSubmitLimitReachedSkipsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("exhausted credits must not call the network")
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "k", BaseURL: srv.URL, Credits: fixedCredits(false)})
	res, err := client.Submit(context.Background(), "http://example.com/a.jpg", "parallax")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if res.Ref.Kind != RefSimulatedLimit {
		t.Fatalf("Ref.Kind = %d, want simulated limit", res.Ref.Kind)
	}
	if !strings.HasPrefix(res.Ref.String(), "limit-") {
		t.Fatalf("serialized ref %q missing limit- prefix", res.Ref.String())
	}
}

func TestSubmitReal(t *testing.T) {
	var gotAuth string
	var gotPayload submitPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(submitResponse{RequestID: "req-123", Status: "IN_QUEUE"})
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "secret", BaseURL: srv.URL, Model: "fal-ai/svd", Credits: fixedCredits(true)})
	res, err := client.Submit(context.Background(), "http://example.com/a.jpg", "float")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if res.Ref.Kind != RefReal || res.Ref.ID != "req-123" {
		t.Fatalf("unexpected ref %+v", res.Ref)
	}
	if gotAuth != "Key secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotPayload.ImageURL != "http://example.com/a.jpg" {
		t.Fatalf("ImageURL = %q", gotPayload.ImageURL)
	}
	if gotPayload.MotionStrength != 0.7 {
		t.Fatalf("MotionStrength = %v, want 0.7", gotPayload.MotionStrength)
	}
	if gotPayload.Prompt == "" {
		t.Fatal("Prompt must be populated from the style table")
	}
}

func TestCheckStatusSyntheticResolvesImmediately(t *testing.T) {
	client := NewClient(Options{})
	for _, id := range []string{"sim-abc", "limit-def"} {
		res, err := client.CheckStatus(context.Background(), id)
		if err != nil {
			t.Fatalf("CheckStatus(%q) error: %v", id, err)
		}
		if res.Status != StatusCompleted {
			t.Fatalf("CheckStatus(%q).Status = %q, want completed", id, res.Status)
		}
		if res.OutputURL == "" {
			t.Fatalf("CheckStatus(%q) returned empty output", id)
		}
	}
}

func TestCheckStatusMapsProviderVocabulary(t *testing.T) {
	tests := []struct {
		provider string
		want     Status
	}{
		{"IN_QUEUE", StatusProcessing},
		{"IN_PROGRESS", StatusProcessing},
		{"QUEUED", StatusProcessing},
		{"FAILED", StatusFailed},
		{"ERROR", StatusFailed},
		{"CANCELLED", StatusFailed},
		{"SOMETHING_NEW", StatusProcessing},
	}
	for _, tc := range tests {
		t.Run(tc.provider, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"status": tc.provider})
			}))
			defer srv.Close()
			client := NewClient(Options{BaseURL: srv.URL})
			res, err := client.CheckStatus(context.Background(), "req-1")
			if err != nil {
				t.Fatalf("CheckStatus error: %v", err)
			}
			if res.Status != tc.want {
				t.Fatalf("Status = %q, want %q", res.Status, tc.want)
			}
		})
	}
}

func TestCheckStatusCompletedFetchesResponseURL(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/fal-ai/svd/requests/req-9/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":       "COMPLETED",
			"response_url": srv.URL + "/fal-ai/svd/requests/req-9",
		})
	})
	mux.HandleFunc("/fal-ai/svd/requests/req-9", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"video": map[string]any{"url": "https://cdn.fal.media/out.mp4"},
		})
	})

	client := NewClient(Options{BaseURL: srv.URL, Model: "fal-ai/svd"})
	res, err := client.CheckStatus(context.Background(), "req-9")
	if err != nil {
		t.Fatalf("CheckStatus error: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("Status = %q, want completed", res.Status)
	}
	if res.OutputURL != "https://cdn.fal.media/out.mp4" {
		t.Fatalf("OutputURL = %q", res.OutputURL)
	}
}

func TestCheckStatusCompletedFallsBackWhenResponseFetchFails(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/fal-ai/svd/requests/req-8/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":       "COMPLETED",
			"response_url": srv.URL + "/fal-ai/svd/requests/req-8",
			"output":       map[string]any{"video_url": "https://cdn.fal.media/partial.mp4"},
		})
	})
	mux.HandleFunc("/fal-ai/svd/requests/req-8", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := NewClient(Options{BaseURL: srv.URL, Model: "fal-ai/svd"})
	res, err := client.CheckStatus(context.Background(), "req-8")
	if err != nil {
		t.Fatalf("CheckStatus error: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("Status = %q, want completed despite enrichment failure", res.Status)
	}
	if res.OutputURL != "https://cdn.fal.media/partial.mp4" {
		t.Fatalf("OutputURL = %q, want partial output from status payload", res.OutputURL)
	}
}

func TestCheckStatusErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Code
	}{
		{"unauthorized", 401, `{"detail":"invalid key"}`, CodeAuthentication},
		{"payment required", 402, `{"detail":"no credits"}`, CodeQuotaExhausted},
		{"forbidden balance", 403, `{"detail":"balance exhausted"}`, CodeQuotaExhausted},
		{"forbidden other", 403, `{"detail":"key disabled"}`, CodeAuthentication},
		{"not found", 404, `{"detail":"unknown request"}`, CodeNotFound},
		{"rate limited", 429, `{"detail":"slow down"}`, CodeRateLimited},
		{"unprocessable", 422, `{"detail":"bad image"}`, CodeInvalidInput},
		{"server error", 500, `{"detail":"boom"}`, CodeUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			client := NewClient(Options{BaseURL: srv.URL})
			_, err := client.CheckStatus(context.Background(), "req-1")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := CodeOf(err); got != tc.want {
				t.Fatalf("CodeOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCancelNeverRaises(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	if ok := client.Cancel(context.Background(), "req-1"); ok {
		t.Fatal("Cancel should report false on provider failure")
	}
	if ok := client.Cancel(context.Background(), "sim-abc"); !ok {
		t.Fatal("Cancel on a synthetic ref should report true")
	}
}

func TestExtractOutputURLShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"video object", map[string]any{"video": map[string]any{"url": "a"}}, "a"},
		{"flat video_url", map[string]any{"video_url": "b"}, "b"},
		{"nested output video", map[string]any{"output": map[string]any{"video": map[string]any{"url": "c"}}}, "c"},
		{"output video_url", map[string]any{"output": map[string]any{"video_url": "d"}}, "d"},
		{"output url", map[string]any{"output": map[string]any{"url": "e"}}, "e"},
		{"result url", map[string]any{"result": map[string]any{"url": "f"}}, "f"},
		{"bare url", map[string]any{"url": "g"}, "g"},
		{"priority order", map[string]any{"url": "low", "video": map[string]any{"url": "high"}}, "high"},
		{"no match", map[string]any{"status": "COMPLETED"}, ""},
		{"nil payload", nil, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractOutputURL(tc.payload); got != tc.want {
				t.Fatalf("extractOutputURL = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseRequestIDRoundTrip(t *testing.T) {
	tests := []struct {
		serialized string
		kind       RefKind
		id         string
	}{
		{"req-abc", RefReal, "req-abc"},
		{"sim-123", RefSimulatedExplicit, "123"},
		{"limit-456", RefSimulatedLimit, "456"},
	}
	for _, tc := range tests {
		ref := ParseRequestID(tc.serialized)
		if ref.Kind != tc.kind || ref.ID != tc.id {
			t.Fatalf("ParseRequestID(%q) = %+v", tc.serialized, ref)
		}
		if ref.String() != tc.serialized {
			t.Fatalf("round trip %q -> %q", tc.serialized, ref.String())
		}
	}
}
