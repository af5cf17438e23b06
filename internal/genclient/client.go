// Package genclient talks to the remote exercise generation service.
package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kingrea/role2-builder/internal/exercise"
)

const (
	instrumentationName = "github.com/kingrea/role2-builder/internal/genclient"

	// DefaultRequestTimeout bounds the short calls (name suggestion, listing).
	DefaultRequestTimeout = 30 * time.Second
	// DefaultMaxTries is the attempt budget for idempotent GETs.
	DefaultMaxTries = 3

	maxResponseBytes = 256 << 20
)

// Logger is the Printf sink for request lines.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// GeneratedPackage is the summary record of a previously generated exercise.
type GeneratedPackage struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	CreatedAt   *string `json:"created_at"`
	Duration    *int    `json:"duration"`
	Environment *string `json:"environment"`
	TotalCases  int     `json:"total_cases"`
}

// Created parses CreatedAt. The service emits ISO timestamps with or without
// a zone offset.
func (p GeneratedPackage) Created() (time.Time, bool) {
	if p.CreatedAt == nil {
		return time.Time{}, false
	}
	raw := strings.TrimSpace(*p.CreatedAt)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NameRequest is the body of POST /generate-name.
type NameRequest struct {
	AOR         string `json:"aor"`
	UnitType    string `json:"unitType"`
	Region      string `json:"region,omitempty"`
	ThreatLevel string `json:"threatLevel,omitempty"`
	Seed        string `json:"seed"`
}

// WarnoRequest is the body of POST /generate-warno.
type WarnoRequest struct {
	ExerciseName string   `json:"exerciseName"`
	Duration     int      `json:"duration"`
	AOR          string   `json:"aor"`
	MissionTasks []string `json:"selectedMETs"`
	Footprint    []string `json:"selectedSpaces"`
}

// MSELRequest is the body of POST /generate-msel.
type MSELRequest struct {
	ExerciseName string `json:"exerciseName"`
}

// Client calls the generation service over HTTP.
type Client struct {
	baseURL        string
	http           *http.Client
	logger         Logger
	tracer         trace.Tracer
	propagator     propagation.TextMapPropagator
	requestTimeout time.Duration
	maxTries       uint
	initialBackoff time.Duration
	maxBody        int64
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRequestTimeout bounds the short calls.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithRetry sets the GET attempt budget and the first backoff interval.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(c *Client) {
		if maxTries > 0 {
			c.maxTries = maxTries
		}
		if initial > 0 {
			c.initialBackoff = initial
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithPropagator overrides the global text map propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *Client) {
		if p != nil {
			c.propagator = p
		}
	}
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:           &http.Client{},
		logger:         nopLogger{},
		tracer:         otel.Tracer(instrumentationName),
		requestTimeout: DefaultRequestTimeout,
		maxTries:       DefaultMaxTries,
		initialBackoff: 500 * time.Millisecond,
		maxBody:        maxResponseBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.baseURL }

// GenerateName asks the service for an exercise name.
func (c *Client) GenerateName(ctx context.Context, req NameRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	body, err := c.post(ctx, "/generate-name", req)
	if err != nil {
		return "", err
	}
	var resp struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("genclient: decode name: %w", err)
	}
	name := strings.Trim(strings.TrimSpace(resp.Name), `"*`)
	if name == "" {
		return "", fmt.Errorf("genclient: empty name in response")
	}
	return name, nil
}

// GenerateWarno drafts the WARNO narrative.
func (c *Client) GenerateWarno(ctx context.Context, req WarnoRequest) (string, error) {
	body, err := c.post(ctx, "/generate-warno", req)
	if err != nil {
		return "", err
	}
	var resp struct {
		Document string `json:"document"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("genclient: decode warno: %w", err)
	}
	return resp.Document, nil
}

// GenerateMSEL returns the MSEL spreadsheet bytes.
func (c *Client) GenerateMSEL(ctx context.Context, req MSELRequest) ([]byte, error) {
	return c.post(ctx, "/generate-msel", req)
}

// GenerateExercise submits the full configuration and returns the package
// archive. The call is long running; bound it with ctx.
func (c *Client) GenerateExercise(ctx context.Context, cfg exercise.Config) ([]byte, error) {
	return c.post(ctx, "/generate-exercise", cfg)
}

// ListExercises returns the previously generated packages.
func (c *Client) ListExercises(ctx context.Context) ([]GeneratedPackage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	body, err := c.get(ctx, "/exercises")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Exercises []GeneratedPackage `json:"exercises"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("genclient: decode exercises: %w", err)
	}
	if resp.Exercises == nil {
		resp.Exercises = []GeneratedPackage{}
	}
	return resp.Exercises, nil
}

// DownloadPackage fetches the archive of a generated exercise.
func (c *Client) DownloadPackage(ctx context.Context, id int64) ([]byte, error) {
	return c.get(ctx, "/exercises/"+strconv.FormatInt(id, 10)+"/download")
}

// DownloadDocument fetches one document of a generated exercise.
func (c *Client) DownloadDocument(ctx context.Context, id int64, docType string) ([]byte, error) {
	return c.get(ctx, "/exercises/"+strconv.FormatInt(id, 10)+"/document/"+url.PathEscape(docType))
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("genclient: encode %s: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, path, encoded)
}

// get retries transport failures and temporary statuses with exponential
// backoff. Other 4xx responses are returned immediately.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	operation := func() ([]byte, error) {
		data, err := c.do(ctx, http.MethodGet, path, nil)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil || errors.Is(err, ErrResponseTooLarge) {
			return nil, backoff.Permanent(err)
		}
		var remote *RemoteError
		if errors.As(err, &remote) && !remote.Temporary() {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxTries),
	)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, fmt.Errorf("genclient: build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.propagatorOrGlobal().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		c.logger.Printf("genclient: %s %s failed after %s: %v", method, path, time.Since(start).Round(time.Millisecond), err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("genclient: %s %s: %w", method, path, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.logger.Printf("genclient: %s %s -> %d (%d bytes, %s)", method, path, resp.StatusCode, len(data), time.Since(start).Round(time.Millisecond))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("genclient: %s %s: %w", method, path, ctxErr)
		}
		return nil, fmt.Errorf("%w: read %s %s: %v", ErrUnavailable, method, path, err)
	}
	if int64(len(data)) > c.maxBody {
		span.SetStatus(codes.Error, "response too large")
		return nil, fmt.Errorf("%w: %s %s exceeded %d bytes", ErrResponseTooLarge, method, path, c.maxBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remote := &RemoteError{Method: method, Path: path, Status: resp.StatusCode, Detail: parseDetail(data)}
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return nil, remote
	}
	return data, nil
}

func (c *Client) propagatorOrGlobal() propagation.TextMapPropagator {
	if c.propagator != nil {
		return c.propagator
	}
	return otel.GetTextMapPropagator()
}
