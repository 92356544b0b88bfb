package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storyreel/api/internal/model"
)

const (
	jobKeyPrefix     = "job:"
	segmentKeyPrefix = "segment:"
	videoKeyPrefix   = "video:"
	processingIndex  = "jobs:processing"
	entityRetryIndex = "jobs:entity_pending"
	auditKey         = "webhook:events"
)

// RedisStore implements Store on a Redis-hosted registry. Jobs, segments and
// videos are JSON blobs addressed by id; a set of job ids in processing
// backs the sweeper's scan.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a registry backed by the given Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// CreateJob persists a new job record.
func (s *RedisStore) CreateJob(ctx context.Context, job *model.Job) error {
	job.UpdatedAt = time.Now()
	if err := s.setJSON(ctx, jobKeyPrefix+job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return s.syncIndexes(ctx, job)
}

// GetJob retrieves a job record by id.
func (s *RedisStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	if err := s.getJSON(ctx, jobKeyPrefix+id, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJob overwrites a job record and keeps the processing index in step.
func (s *RedisStore) UpdateJob(ctx context.Context, job *model.Job) error {
	job.UpdatedAt = time.Now()
	if err := s.setJSON(ctx, jobKeyPrefix+job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return s.syncIndexes(ctx, job)
}

// ListProcessing returns every job currently indexed as processing. Index
// entries whose record has since left processing are pruned as they are
// encountered.
func (s *RedisStore) ListProcessing(ctx context.Context) ([]*model.Job, error) {
	ids, err := s.rdb.SMembers(ctx, processingIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan processing index: %w", err)
	}

	jobs := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err == ErrNotFound {
			s.rdb.SRem(ctx, processingIndex, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if job.Status != model.JobStatusProcessing {
			s.rdb.SRem(ctx, processingIndex, id)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ListPendingEntityWrites returns completed jobs whose entity update is
// still outstanding, pruning index entries that have since resolved.
func (s *RedisStore) ListPendingEntityWrites(ctx context.Context) ([]*model.Job, error) {
	ids, err := s.rdb.SMembers(ctx, entityRetryIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan entity retry index: %w", err)
	}

	jobs := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err == ErrNotFound {
			s.rdb.SRem(ctx, entityRetryIndex, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !job.HasPendingEntityWrite() {
			s.rdb.SRem(ctx, entityRetryIndex, id)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *RedisStore) syncIndexes(ctx context.Context, job *model.Job) error {
	if job.Status == model.JobStatusProcessing {
		if err := s.rdb.SAdd(ctx, processingIndex, job.ID).Err(); err != nil {
			return err
		}
	} else if err := s.rdb.SRem(ctx, processingIndex, job.ID).Err(); err != nil {
		return err
	}

	if job.HasPendingEntityWrite() {
		return s.rdb.SAdd(ctx, entityRetryIndex, job.ID).Err()
	}
	return s.rdb.SRem(ctx, entityRetryIndex, job.ID).Err()
}

// GetSegment retrieves a segment record by id.
func (s *RedisStore) GetSegment(ctx context.Context, id string) (*model.Segment, error) {
	var seg model.Segment
	if err := s.getJSON(ctx, segmentKeyPrefix+id, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

// UpdateSegment overwrites a segment record.
func (s *RedisStore) UpdateSegment(ctx context.Context, seg *model.Segment) error {
	seg.UpdatedAt = time.Now()
	if err := s.setJSON(ctx, segmentKeyPrefix+seg.ID, seg); err != nil {
		return fmt.Errorf("failed to save segment: %w", err)
	}
	return nil
}

// GetVideo retrieves a video record by id.
func (s *RedisStore) GetVideo(ctx context.Context, id string) (*model.Video, error) {
	var vid model.Video
	if err := s.getJSON(ctx, videoKeyPrefix+id, &vid); err != nil {
		return nil, err
	}
	return &vid, nil
}

// UpdateVideo overwrites a video record.
func (s *RedisStore) UpdateVideo(ctx context.Context, vid *model.Video) error {
	vid.UpdatedAt = time.Now()
	if err := s.setJSON(ctx, videoKeyPrefix+vid.ID, vid); err != nil {
		return fmt.Errorf("failed to save video: %w", err)
	}
	return nil
}

// Append pushes a webhook audit record onto the append-only event list.
func (s *RedisStore) Append(ctx context.Context, event *model.WebhookEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}
	return s.rdb.RPush(ctx, auditKey, data).Err()
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, data, 0).Err()
}

func (s *RedisStore) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}
