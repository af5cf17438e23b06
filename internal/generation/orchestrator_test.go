package generation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/role2-builder/internal/exercise"
	"github.com/kingrea/role2-builder/internal/genclient"
)

type recordingSaver struct {
	mu    sync.Mutex
	names []string
	data  [][]byte
	err   error
}

func (s *recordingSaver) Save(_ context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.names = append(s.names, name)
	s.data = append(s.data, data)
	return "/downloads/" + name, nil
}

func (s *recordingSaver) saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

type fakeRemote struct {
	exercise func(ctx context.Context, cfg exercise.Config) ([]byte, error)
	name     func(ctx context.Context, req genclient.NameRequest) (string, error)
}

func (f *fakeRemote) GenerateName(ctx context.Context, req genclient.NameRequest) (string, error) {
	if f.name == nil {
		return "", errors.New("not configured")
	}
	return f.name(ctx, req)
}

func (f *fakeRemote) GenerateWarno(ctx context.Context, req genclient.WarnoRequest) (string, error) {
	return "WARNO for " + req.ExerciseName, nil
}

func (f *fakeRemote) GenerateMSEL(ctx context.Context, req genclient.MSELRequest) ([]byte, error) {
	return []byte("xlsx"), nil
}

func (f *fakeRemote) GenerateExercise(ctx context.Context, cfg exercise.Config) ([]byte, error) {
	return f.exercise(ctx, cfg)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) observe(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, p.State)
}

func (r *stateRecorder) get() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func validConfig(t *testing.T) exercise.Config {
	t.Helper()
	cfg := exercise.New()
	cfg.SetName("Steel Knight")
	return cfg
}

func waitDone(t *testing.T, o *Orchestrator) Progress {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := o.Wait(ctx)
	if err != nil {
		t.Fatalf("sequence did not finish: %v", err)
	}
	return p
}

func TestSuccessfulGenerationSavesOnePackage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate-exercise" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write([]byte("PK-archive"))
	}))
	defer srv.Close()

	saver := &recordingSaver{}
	rec := &stateRecorder{}
	o := New(genclient.New(srv.URL), saver)
	o.Observe(rec.observe)
	if got := o.Progress().State; got != StateIdle {
		t.Fatalf("initial state = %s", got)
	}
	if err := o.Submit(context.Background(), JobPackage, validConfig(t)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	final := waitDone(t, o)

	want := []State{StatePreparing, StateAwaitingRemote, StateDownloading, StateComplete}
	if got := rec.get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	if names := saver.saved(); len(names) != 1 || names[0] != "Steel Knight_Package.zip" {
		t.Fatalf("saved = %v", names)
	}
	if string(saver.data[0]) != "PK-archive" {
		t.Fatalf("saved bytes = %q", saver.data[0])
	}
	if final.Path != "/downloads/Steel Knight_Package.zip" {
		t.Fatalf("final path = %q", final.Path)
	}
}

func TestRemoteFailureSurfacesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"detail":"quota exceeded"}`))
	}))
	defer srv.Close()

	saver := &recordingSaver{}
	rec := &stateRecorder{}
	o := New(genclient.New(srv.URL), saver)
	o.Observe(rec.observe)
	if err := o.Submit(context.Background(), JobPackage, validConfig(t)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	final := waitDone(t, o)
	if final.State != StateFailed {
		t.Fatalf("final state = %s", final.State)
	}
	if final.Message != "quota exceeded" {
		t.Fatalf("message = %q", final.Message)
	}
	want := []State{StatePreparing, StateAwaitingRemote, StateFailed}
	if got := rec.get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	if len(saver.saved()) != 0 {
		t.Fatalf("nothing may be saved on failure")
	}
}

func TestSubmitWhileBusyIsRejected(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	remote := &fakeRemote{exercise: func(ctx context.Context, cfg exercise.Config) ([]byte, error) {
		close(started)
		<-release
		return []byte("zip"), nil
	}}
	saver := &recordingSaver{}
	o := New(remote, saver)
	if err := o.Submit(context.Background(), JobPackage, validConfig(t)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started
	if err := o.Submit(context.Background(), JobPackage, validConfig(t)); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if got := o.Progress().State; got != StateAwaitingRemote {
		t.Fatalf("busy submit changed state to %s", got)
	}
	close(release)
	waitDone(t, o)
	if len(saver.saved()) != 1 {
		t.Fatalf("expected a single save, got %v", saver.saved())
	}
}

func TestSubmitBlockedByMascalWithoutEtiology(t *testing.T) {
	o := New(&fakeRemote{}, &recordingSaver{})
	cfg := validConfig(t)
	if err := cfg.SetMascal(2, true); err != nil {
		t.Fatal(err)
	}
	if err := o.Submit(context.Background(), JobPackage, cfg); !errors.Is(err, ErrNotSubmittable) {
		t.Fatalf("expected ErrNotSubmittable, got %v", err)
	}
	if got := o.Progress().State; got != StateIdle {
		t.Fatalf("state = %s, want idle", got)
	}
}

func TestPreparingFailsOnInvalidSnapshot(t *testing.T) {
	called := false
	remote := &fakeRemote{exercise: func(context.Context, exercise.Config) ([]byte, error) {
		called = true
		return nil, nil
	}}
	rec := &stateRecorder{}
	o := New(remote, &recordingSaver{})
	o.Observe(rec.observe)
	if err := o.Submit(context.Background(), JobPackage, exercise.New()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	final := waitDone(t, o)
	if final.State != StateFailed || !strings.Contains(final.Message, "exercise name is required") {
		t.Fatalf("unexpected final progress %+v", final)
	}
	if !reflect.DeepEqual(rec.get(), []State{StatePreparing, StateFailed}) {
		t.Fatalf("transitions = %v", rec.get())
	}
	if called {
		t.Fatalf("remote must not be called for an invalid snapshot")
	}
}

func TestCancelEndsInFailed(t *testing.T) {
	started := make(chan struct{})
	remote := &fakeRemote{exercise: func(ctx context.Context, cfg exercise.Config) ([]byte, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	saver := &recordingSaver{}
	o := New(remote, saver)
	if err := o.Submit(context.Background(), JobPackage, validConfig(t)); err != nil {
		t.Fatal(err)
	}
	<-started
	o.Cancel()
	final := waitDone(t, o)
	if final.State != StateFailed || final.Message != "generation cancelled" {
		t.Fatalf("unexpected final progress %+v", final)
	}
	if len(saver.saved()) != 0 {
		t.Fatalf("cancelled sequence saved a file")
	}
}

func TestTimeoutEndsInFailed(t *testing.T) {
	remote := &fakeRemote{exercise: func(ctx context.Context, cfg exercise.Config) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := New(remote, &recordingSaver{}, WithTimeout(20*time.Millisecond))
	if err := o.Submit(context.Background(), JobPackage, validConfig(t)); err != nil {
		t.Fatal(err)
	}
	final := waitDone(t, o)
	if final.State != StateFailed || !strings.Contains(final.Message, "did not answer") {
		t.Fatalf("unexpected final progress %+v", final)
	}
}

func TestRetryResubmitsRetainedSnapshot(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	var names []string
	remote := &fakeRemote{exercise: func(ctx context.Context, cfg exercise.Config) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		names = append(names, cfg.Name)
		if attempts == 1 {
			return nil, genclient.ErrUnavailable
		}
		return []byte("zip"), nil
	}}
	saver := &recordingSaver{}
	o := New(remote, saver)
	if err := o.Retry(context.Background()); !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("expected ErrNothingToRetry before any run, got %v", err)
	}
	if err := o.Submit(context.Background(), JobPackage, validConfig(t)); err != nil {
		t.Fatal(err)
	}
	first := waitDone(t, o)
	if first.State != StateFailed || first.Message != genclient.GenericFailureMessage {
		t.Fatalf("first attempt = %+v", first)
	}
	if err := o.Retry(context.Background()); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	second := waitDone(t, o)
	if second.State != StateComplete {
		t.Fatalf("retry final state = %s", second.State)
	}
	if !reflect.DeepEqual(names, []string{"Steel Knight", "Steel Knight"}) {
		t.Fatalf("snapshot not retained: %v", names)
	}
	if err := o.Reset(); err != nil || o.Progress().State != StateIdle {
		t.Fatalf("Reset: %v, state %s", err, o.Progress().State)
	}
}

func TestSaveFailureEndsInFailed(t *testing.T) {
	remote := &fakeRemote{exercise: func(context.Context, exercise.Config) ([]byte, error) {
		return []byte("zip"), nil
	}}
	rec := &stateRecorder{}
	o := New(remote, &recordingSaver{err: errors.New("disk full")})
	o.Observe(rec.observe)
	if err := o.Submit(context.Background(), JobPackage, validConfig(t)); err != nil {
		t.Fatal(err)
	}
	final := waitDone(t, o)
	if final.State != StateFailed || !strings.Contains(final.Message, "disk full") {
		t.Fatalf("unexpected final progress %+v", final)
	}
	want := []State{StatePreparing, StateAwaitingRemote, StateDownloading, StateFailed}
	if !reflect.DeepEqual(rec.get(), want) {
		t.Fatalf("transitions = %v, want %v", rec.get(), want)
	}
}

func TestWarnoAndMSELJobs(t *testing.T) {
	saver := &recordingSaver{}
	o := New(&fakeRemote{}, saver)
	for _, job := range []Job{JobWarno, JobMSEL} {
		if err := o.Submit(context.Background(), job, validConfig(t)); err != nil {
			t.Fatalf("Submit %s: %v", job, err)
		}
		if p := waitDone(t, o); p.State != StateComplete {
			t.Fatalf("%s ended %+v", job, p)
		}
	}
	want := []string{"Steel Knight_WARNO.txt", "Steel Knight_MSEL.xlsx"}
	if !reflect.DeepEqual(saver.saved(), want) {
		t.Fatalf("saved = %v, want %v", saver.saved(), want)
	}
	if string(saver.data[0]) != "WARNO for Steel Knight" {
		t.Fatalf("warno body = %q", saver.data[0])
	}
}

func TestSuggestNameFallsBackToPlaceholder(t *testing.T) {
	o := New(&fakeRemote{}, &recordingSaver{}, WithSeed(func() string { return "seed-1" }))
	got := o.SuggestName(context.Background(), exercise.New())
	if got != PlaceholderName("seed-1") || got == "" {
		t.Fatalf("fallback name = %q", got)
	}

	var seen genclient.NameRequest
	o = New(&fakeRemote{name: func(_ context.Context, req genclient.NameRequest) (string, error) {
		seen = req
		return "Operation Coral Shield", nil
	}}, &recordingSaver{}, WithSeed(func() string { return "seed-2" }))
	if got := o.SuggestName(context.Background(), exercise.New()); got != "Operation Coral Shield" {
		t.Fatalf("suggested = %q", got)
	}
	if seen.Seed != "seed-2" || seen.AOR != "Urban" {
		t.Fatalf("unexpected name request %+v", seen)
	}
}

func TestParseJob(t *testing.T) {
	for key, want := range map[string]Job{"": JobPackage, "Package": JobPackage, "warno": JobWarno, "MSEL": JobMSEL} {
		got, err := ParseJob(key)
		if err != nil || got != want {
			t.Fatalf("ParseJob(%q) = %v, %v", key, got, err)
		}
	}
	if _, err := ParseJob("annex"); err == nil {
		t.Fatalf("expected error for unknown job")
	}
}
