package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aivideopro/aivideopro/internal/cache"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore mirrors the transactional behaviour of the Postgres repository.
type memStore struct {
	mu      sync.Mutex
	users   map[string]*model.User
	jobs    map[string]*model.Job
	ledger  []*model.CreditEntry
	keys    []*model.APIKey
	failGet error
}

func newMemStore() *memStore {
	return &memStore{
		users: map[string]*model.User{},
		jobs:  map[string]*model.Job{},
	}
}

func (m *memStore) addUser(id string, credits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &model.User{ID: id, Email: id + "@example.com", Credits: credits}
}

func (m *memStore) credits(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].Credits
}

func (m *memStore) ledgerFor(userID string, reason model.CreditReason) []*model.CreditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CreditEntry
	for _, e := range m.ledger {
		if e.UserID == userID && e.Reason == reason {
			out = append(out, e)
		}
	}
	return out
}

func (m *memStore) record(userID string, delta int, reason model.CreditReason, jobID *string, note string) {
	m.ledger = append(m.ledger, &model.CreditEntry{
		ID:        time.Now().String(),
		UserID:    userID,
		Delta:     delta,
		Reason:    reason,
		JobID:     jobID,
		Note:      note,
		CreatedAt: time.Now(),
	})
}

func (m *memStore) CreateJobWithCharge(_ context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[job.UserID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if user.Credits < job.CreditsCharged {
		return repository.ErrInsufficientCredits
	}
	if _, exists := m.jobs[job.ID]; exists {
		return repository.ErrJobExists
	}
	user.Credits -= job.CreditsCharged
	cp := *job
	m.jobs[job.ID] = &cp
	id := job.ID
	m.record(job.UserID, -job.CreditsCharged, model.CreditReasonJobCharge, &id, "")
	return nil
}

func (m *memStore) GetJobByID(_ context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) ListJobsByUser(_ context.Context, userID string, filter model.JobFilter, _ string, limit int) ([]*model.Job, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, job := range m.jobs {
		if job.UserID != userID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = "more"
	}
	return out, next, nil
}

func (m *memStore) ListStaleJobs(_ context.Context, cutoff time.Time, limit int) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, job := range m.jobs {
		if job.Status == model.JobStatusProcessing && job.CreatedAt.Before(cutoff) {
			cp := *job
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) TransitionJob(_ context.Context, id string, update model.StatusUpdate) (*model.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false, repository.ErrJobNotFound
	}
	if job.IsTerminal() {
		cp := *job
		return &cp, false, nil
	}
	now := time.Now().UTC()
	job.UpdatedAt = now
	if update.Status == model.JobStatusProcessing {
		cp := *job
		return &cp, false, nil
	}
	job.Status = update.Status
	job.ResultURL = update.ResultURL
	job.Error = update.Error
	job.CompletedAt = &now
	if job.Status == model.JobStatusFailed && job.CreditsCharged > 0 {
		m.users[job.UserID].Credits += job.CreditsCharged
		jobID := job.ID
		m.record(job.UserID, job.CreditsCharged, model.CreditReasonJobRefund, &jobID, "")
	}
	cp := *job
	return &cp, true, nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (m *memStore) GetOrCreateUser(_ context.Context, user *model.User) (*model.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			cp := *existing
			return &cp, false, nil
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	if user.Credits > 0 {
		m.record(user.ID, user.Credits, model.CreditReasonSignup, nil, "")
	}
	return user, true, nil
}

func (m *memStore) GrantCredits(_ context.Context, userID string, amount int, reason model.CreditReason, note string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	user.Credits += amount
	m.record(userID, amount, reason, nil, note)
	return user.Credits, nil
}

func (m *memStore) ListCreditEntries(_ context.Context, userID string, limit int) ([]*model.CreditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CreditEntry
	for i := len(m.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if m.ledger[i].UserID == userID {
			out = append(out, m.ledger[i])
		}
	}
	return out, nil
}

func (m *memStore) CreateAPIKey(_ context.Context, key *model.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return nil
}

type memCache struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	sets int
}

func newMemCache() *memCache {
	return &memCache{jobs: map[string]*model.Job{}}
}

func (c *memCache) GetJob(_ context.Context, id string) (*model.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	cp := *job
	return &cp, nil
}

func (c *memCache) SetJob(_ context.Context, job *model.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.jobs[job.ID]; ok && cur.IsTerminal() && !job.IsTerminal() {
		return nil
	}
	cp := *job
	c.jobs[job.ID] = &cp
	c.sets++
	return nil
}

func (c *memCache) DeleteJob(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.jobs, id)
	return nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	err  error
	jobs []string
	// onDispatch runs before Dispatch returns, like a backend that answers
	// faster than the enqueue round trip.
	onDispatch func(*model.Job)
}

func (d *fakeDispatcher) Dispatch(_ context.Context, job *model.Job) (string, error) {
	d.mu.Lock()
	if d.err != nil {
		d.mu.Unlock()
		return "", d.err
	}
	d.jobs = append(d.jobs, job.ID)
	hook := d.onDispatch
	d.mu.Unlock()

	if hook != nil {
		cp := *job
		hook(&cp)
	}
	return "1-0", nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.JobStatus
}

func (e *fakeEvents) PublishJobEvent(_ context.Context, job *model.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, job.Status)
	return nil
}

func (e *fakeEvents) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

var errBoom = errors.New("boom")
