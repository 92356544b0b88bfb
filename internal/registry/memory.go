package registry

import (
	"context"
	"sync"
	"time"

	"github.com/storyreel/api/internal/model"
)

// MemoryStore is an in-process Store used in tests and when Redis is not
// configured. Copies in, copies out; callers never share pointers with the
// store.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]model.Job
	segments map[string]model.Segment
	videos   map[string]model.Video
	events   []model.WebhookEvent
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]model.Job),
		segments: make(map[string]model.Segment),
		videos:   make(map[string]model.Video),
	}
}

func (s *MemoryStore) CreateJob(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.UpdatedAt = time.Now()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.UpdatedAt = time.Now()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) ListProcessing(_ context.Context) ([]*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []*model.Job
	for _, job := range s.jobs {
		if job.Status == model.JobStatusProcessing {
			j := job
			jobs = append(jobs, &j)
		}
	}
	return jobs, nil
}

func (s *MemoryStore) ListPendingEntityWrites(_ context.Context) ([]*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []*model.Job
	for _, job := range s.jobs {
		if job.HasPendingEntityWrite() {
			j := job
			jobs = append(jobs, &j)
		}
	}
	return jobs, nil
}

func (s *MemoryStore) GetSegment(_ context.Context, id string) (*model.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &seg, nil
}

func (s *MemoryStore) UpdateSegment(_ context.Context, seg *model.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg.UpdatedAt = time.Now()
	s.segments[seg.ID] = *seg
	return nil
}

func (s *MemoryStore) GetVideo(_ context.Context, id string) (*model.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vid, ok := s.videos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &vid, nil
}

func (s *MemoryStore) UpdateVideo(_ context.Context, vid *model.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vid.UpdatedAt = time.Now()
	s.videos[vid.ID] = *vid
	return nil
}

func (s *MemoryStore) Append(_ context.Context, event *model.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

// Events returns a snapshot of the audit log. Test helper.
func (s *MemoryStore) Events() []model.WebhookEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WebhookEvent, len(s.events))
	copy(out, s.events)
	return out
}
