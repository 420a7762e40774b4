package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aivideopro/aivideopro/internal/metrics"
	"github.com/aivideopro/aivideopro/internal/model"
)

type failure struct {
	httpStatus *int
	exhausted  bool
}

type fakeStore struct {
	mu        sync.Mutex
	pending   []*model.WebhookDelivery
	endpoints map[string]*model.WebhookEndpoint
	successes map[string]int
	failures  map[string]failure
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		endpoints: make(map[string]*model.WebhookEndpoint),
		successes: make(map[string]int),
		failures:  make(map[string]failure),
	}
}

func (s *fakeStore) ClaimPendingDeliveries(_ context.Context, limit int) ([]*model.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(limit, len(s.pending))
	claimed := s.pending[:n]
	s.pending = s.pending[n:]
	return claimed, nil
}

func (s *fakeStore) GetEndpoint(_ context.Context, id string) (*model.WebhookEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, ErrEndpointNotFound
	}
	return ep, nil
}

func (s *fakeStore) UpdateDeliverySuccess(_ context.Context, id string, httpStatus int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes[id] = httpStatus
	return nil
}

func (s *fakeStore) UpdateDeliveryFailure(_ context.Context, id string, httpStatus *int, _ string, _ time.Time, exhausted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = failure{httpStatus: httpStatus, exhausted: exhausted}
	return nil
}

func (s *fakeStore) GetQueueDepth(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.pending)), nil
}

// httptest servers listen on loopback.
var localTargets = WorkerConfig{AllowPrivateTargets: true}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func queuedDelivery(id, endpointID string, attempts int) *model.WebhookDelivery {
	return &model.WebhookDelivery{
		ID:           id,
		EndpointID:   endpointID,
		EventID:      "evt_job1_completed",
		EventType:    model.EventTypeJobCompleted,
		PayloadJSON:  `{"event_type":"job.completed"}`,
		Status:       model.DeliveryStatusPending,
		AttemptCount: attempts,
		MaxAttempts:  DefaultMaxAttempts,
	}
}

func TestWorker_DeliversSignedPayload(t *testing.T) {
	t.Parallel()

	secretHash := HashSecret("whsec_abc")
	verified := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		verified <- NewVerifier(secretHash).Verify(r.Header.Get(HeaderSignature), r.Header.Get(HeaderTimestamp), body)
		if r.Header.Get(HeaderDeliveryID) != "d1" {
			t.Errorf("missing delivery id header")
		}
		if r.Header.Get(HeaderEvent) != string(model.EventTypeJobCompleted) {
			t.Errorf("%s = %q", HeaderEvent, r.Header.Get(HeaderEvent))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := newFakeStore()
	store.endpoints["ep1"] = &model.WebhookEndpoint{ID: "ep1", TargetURL: srv.URL, SecretHash: secretHash, Enabled: true}
	store.pending = []*model.WebhookDelivery{queuedDelivery("d1", "ep1", 0)}

	rec := metrics.NewInMemory()
	w := NewWorker(store, testLogger(), rec, localTargets)
	if err := w.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}

	if err := <-verified; err != nil {
		t.Fatalf("receiver could not verify signature: %v", err)
	}
	if store.successes["d1"] != http.StatusNoContent {
		t.Fatalf("expected success recorded, got %v", store.successes)
	}
	if rec.Snapshot().WebhookDeliveries["success"] != 1 {
		t.Errorf("expected success metric")
	}
}

func TestWorker_Non2xxSchedulesRetry(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := newFakeStore()
	store.endpoints["ep1"] = &model.WebhookEndpoint{ID: "ep1", TargetURL: srv.URL, SecretHash: "k", Enabled: true}
	store.pending = []*model.WebhookDelivery{
		queuedDelivery("first", "ep1", 0),
		queuedDelivery("last", "ep1", DefaultMaxAttempts-1),
	}

	w := NewWorker(store, testLogger(), nil, localTargets)
	if err := w.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}

	first := store.failures["first"]
	if first.exhausted || first.httpStatus == nil || *first.httpStatus != http.StatusBadGateway {
		t.Errorf("first attempt: %+v", first)
	}
	if !store.failures["last"].exhausted {
		t.Error("final attempt should exhaust the delivery")
	}
}

func TestWorker_MissingOrDisabledEndpointExhausts(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.endpoints["off"] = &model.WebhookEndpoint{ID: "off", TargetURL: "https://example.com", Enabled: false}
	store.pending = []*model.WebhookDelivery{
		queuedDelivery("gone", "missing", 0),
		queuedDelivery("disabled", "off", 0),
	}

	w := NewWorker(store, testLogger(), nil, localTargets)
	if err := w.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}

	for _, id := range []string{"gone", "disabled"} {
		if !store.failures[id].exhausted {
			t.Errorf("%s: expected exhausted", id)
		}
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	w := NewWorker(newFakeStore(), testLogger(), nil, WorkerConfig{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	if err := w.Run(context.Background()); err == nil {
		t.Error("second Run should fail")
	}
}

func TestWorker_RefusesLoopbackAtDialTime(t *testing.T) {
	t.Parallel()

	hit := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit <- struct{}{}
	}))
	defer srv.Close()

	store := newFakeStore()
	store.endpoints["ep1"] = &model.WebhookEndpoint{ID: "ep1", TargetURL: srv.URL, SecretHash: "k", Enabled: true}
	store.pending = []*model.WebhookDelivery{queuedDelivery("d1", "ep1", 0)}

	w := NewWorker(store, testLogger(), nil, WorkerConfig{})
	if err := w.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}

	select {
	case <-hit:
		t.Fatal("worker connected to a loopback target")
	default:
	}
	f, ok := store.failures["d1"]
	if !ok || f.exhausted || f.httpStatus != nil {
		t.Errorf("expected a retryable transport failure, got %+v (recorded=%v)", f, ok)
	}
}

func TestWorker_BatchRunsConcurrently(t *testing.T) {
	t.Parallel()

	const n = 4
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		reached := inFlight == n
		mu.Unlock()
		if reached {
			close(release)
		}
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		mu.Lock()
		inFlight--
		mu.Unlock()
	}))
	defer srv.Close()

	store := newFakeStore()
	store.endpoints["ep1"] = &model.WebhookEndpoint{ID: "ep1", TargetURL: srv.URL, SecretHash: "k", Enabled: true}
	for i := range n {
		store.pending = append(store.pending, queuedDelivery("d"+strconv.Itoa(i), "ep1", 0))
	}

	w := NewWorker(store, testLogger(), nil, WorkerConfig{Concurrency: n, AllowPrivateTargets: true})
	if err := w.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if peak != n {
		t.Errorf("peak in-flight = %d, want %d", peak, n)
	}
	if len(store.successes) != n {
		t.Errorf("successes = %d, want %d", len(store.successes), n)
	}
}
