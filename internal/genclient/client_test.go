package genclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kingrea/role2-builder/internal/exercise"
)

func newTestClient(url string, opts ...Option) *Client {
	opts = append([]Option{WithRetry(3, time.Millisecond)}, opts...)
	return New(url, opts...)
}

func TestGenerateExerciseReturnsArchive(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate-exercise" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write([]byte("PK\x03\x04archive"))
	}))
	defer srv.Close()

	cfg := exercise.New()
	cfg.SetName("Steel Knight")
	data, err := newTestClient(srv.URL).GenerateExercise(context.Background(), cfg)
	if err != nil {
		t.Fatalf("GenerateExercise: %v", err)
	}
	if string(data) != "PK\x03\x04archive" {
		t.Fatalf("unexpected body %q", data)
	}
	if received["exercise_name"] != "Steel Knight" {
		t.Fatalf("snapshot not sent, got %v", received["exercise_name"])
	}
	days, ok := received["days"].([]any)
	if !ok || len(days) != 3 {
		t.Fatalf("expected 3 days in payload, got %v", received["days"])
	}
}

func TestRemoteErrorCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail":"quota exceeded"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateExercise(context.Background(), exercise.New())
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Status != http.StatusTooManyRequests || remote.Detail != "quota exceeded" {
		t.Fatalf("unexpected remote error %+v", remote)
	}
	if msg := ErrorMessage(err); msg != "quota exceeded" {
		t.Fatalf("ErrorMessage = %q", msg)
	}
}

func TestPostIsNeverRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateMSEL(context.Background(), MSELRequest{ExerciseName: "x"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("POST attempted %d times", calls.Load())
	}
	if msg := ErrorMessage(err); msg != GenericFailureMessage {
		t.Fatalf("expected generic message without detail, got %q", msg)
	}
}

func TestOversizedResponseIsRejected(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("0123456789abcdef!"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.maxBody = 16
	if _, err := c.DownloadPackage(context.Background(), 1); !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("oversized GET attempted %d times", calls.Load())
	}
	if _, err := c.GenerateExercise(context.Background(), exercise.New()); !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge for POST, got %v", err)
	}

	c.maxBody = 17
	data, err := c.DownloadPackage(context.Background(), 1)
	if err != nil || len(data) != 17 {
		t.Fatalf("body at the limit should pass: %d bytes, %v", len(data), err)
	}
}

func TestGetRetriesTemporaryFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"exercises":[{"id":7,"name":"Iron Tide","created_at":"2025-02-01T10:00:00.123456","duration":3,"environment":"Jungle","total_cases":24}]}`))
	}))
	defer srv.Close()

	pkgs, err := newTestClient(srv.URL).ListExercises(context.Background())
	if err != nil {
		t.Fatalf("ListExercises: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if len(pkgs) != 1 || pkgs[0].ID != 7 || pkgs[0].TotalCases != 24 {
		t.Fatalf("unexpected packages %+v", pkgs)
	}
	created, ok := pkgs[0].Created()
	if !ok || created.Year() != 2025 {
		t.Fatalf("created_at not parsed: %v %v", created, ok)
	}
}

func TestGetDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/exercises/42/document/annex_q" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Exercise not found"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).DownloadDocument(context.Background(), 42, "annex_q")
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Status != http.StatusNotFound {
		t.Fatalf("expected 404 RemoteError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("404 retried %d times", calls.Load())
	}
}

func TestUnreachableServiceIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url, WithRetry(1, time.Millisecond)).DownloadPackage(context.Background(), 1)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if ErrorMessage(err) != GenericFailureMessage {
		t.Fatalf("unexpected message %q", ErrorMessage(err))
	}
}

func TestGenerateNameAndTracePropagation(t *testing.T) {
	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		var req NameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.AOR != "Jungle" || req.Seed == "" {
			t.Errorf("unexpected name request %+v", req)
		}
		_, _ = w.Write([]byte(`{"name":"  \"Operation Verdant Shield\" "}`))
	}))
	defer srv.Close()

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	client := newTestClient(srv.URL, WithTracerProvider(tp), WithPropagator(propagation.TraceContext{}))
	name, err := client.GenerateName(context.Background(), NameRequest{AOR: "Jungle", UnitType: "Division Assets", Seed: "abc"})
	if err != nil {
		t.Fatalf("GenerateName: %v", err)
	}
	if name != "Operation Verdant Shield" {
		t.Fatalf("name = %q", name)
	}
	if traceparent == "" {
		t.Fatalf("expected traceparent header to be propagated")
	}
}

func TestParseDetailVariants(t *testing.T) {
	cases := map[string]string{
		`{"detail":"quota exceeded"}`:                       "quota exceeded",
		`{"detail":[{"msg":"field required"},{"msg":"x"}]}`: "field required; x",
		`{"error":"other"}`:                                 "",
		`<html>bad gateway</html>`:                          "",
		``:                                                  "",
	}
	for body, want := range cases {
		if got := parseDetail([]byte(body)); got != want {
			t.Fatalf("parseDetail(%q) = %q, want %q", body, got, want)
		}
	}
}
