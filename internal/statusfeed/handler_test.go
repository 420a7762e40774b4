package statusfeed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/service"
)

type fakeApplier struct {
	mu      sync.Mutex
	err     error
	failN   int
	calls   int
	updates []model.StatusUpdate
	sources []string
}

func (f *fakeApplier) ApplyStatusUpdate(_ context.Context, source string, update model.StatusUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failN > 0 {
		f.failN--
		return false, errors.New("db unavailable")
	}
	if f.err != nil {
		return false, f.err
	}
	f.updates = append(f.updates, update)
	f.sources = append(f.sources, source)
	return true, nil
}

func (f *fakeApplier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"completed", `{"job_id":"j1","status":"completed","result_url":"https://cdn.example.com/o.mp4"}`, false},
		{"failed", `{"job_id":"j1","status":"failed","error":"boom"}`, false},
		{"missing job id", `{"status":"completed"}`, true},
		{"not json", `status=completed`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			update, err := Decode([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("err = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if update.JobID != "j1" {
				t.Errorf("JobID = %q", update.JobID)
			}
		})
	}
}

func TestHandle(t *testing.T) {
	t.Parallel()

	valid := []byte(`{"job_id":"j1","status":"completed","result_url":"https://cdn.example.com/o.mp4"}`)

	tests := []struct {
		name        string
		payload     []byte
		applierErr  error
		wantSettled bool
		wantErr     bool
		wantMalform bool
	}{
		{name: "applied", payload: valid, wantSettled: true},
		{name: "malformed", payload: []byte(`{}`), wantSettled: true, wantErr: true, wantMalform: true},
		{name: "unknown job", payload: valid, applierErr: service.ErrJobNotFound, wantSettled: true, wantErr: true, wantMalform: true},
		{name: "invalid transition", payload: valid, applierErr: service.ErrInvalidTransition, wantSettled: true, wantErr: true, wantMalform: true},
		{name: "transient", payload: valid, applierErr: errors.New("db unavailable"), wantSettled: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			applier := &fakeApplier{err: tt.applierErr}

			settled, err := Handle(context.Background(), applier, discardLogger(), "kafka", tt.payload)
			if settled != tt.wantSettled {
				t.Errorf("settled = %v, want %v", settled, tt.wantSettled)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if errors.Is(err, ErrMalformed) != tt.wantMalform {
				t.Errorf("malformed = %v, want %v", errors.Is(err, ErrMalformed), tt.wantMalform)
			}
		})
	}
}

func TestHandle_PassesSource(t *testing.T) {
	t.Parallel()

	applier := &fakeApplier{}
	if _, err := Handle(context.Background(), applier, discardLogger(), "stream", []byte(`{"job_id":"j9","status":"processing"}`)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(applier.sources) != 1 || applier.sources[0] != "stream" {
		t.Errorf("sources = %v", applier.sources)
	}
	if applier.updates[0].Status != model.JobStatusProcessing {
		t.Errorf("status = %s", applier.updates[0].Status)
	}
}

func TestNewConsumerID_Unique(t *testing.T) {
	t.Parallel()

	if NewConsumerID() == NewConsumerID() {
		t.Error("consumer IDs should differ")
	}
}
