package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/sagaflow/pkg/api"
)

// RedisResultStore is a ResultStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>result:<id>            => gob-encoded result (see EncodeResult)
//	<prefix>idx:all                => SET of all run IDs
//	<prefix>idx:wf:<workflow>      => SET of run IDs for a given workflow
//	<prefix>idx:status:<status>    => SET of run IDs for a given status
//
// A run that is saved again with a different status is moved between the
// status sets in the same transaction.
type RedisResultStore struct {
	client *redis.Client
	prefix string
}

var _ ResultStore = (*RedisResultStore)(nil)

var indexedStatuses = []api.Status{
	api.StatusRunning,
	api.StatusCompleted,
	api.StatusFailed,
	api.StatusCanceled,
}

// NewRedisResultStore creates a RedisResultStore.
// prefix is optional but recommended (e.g. "sagaflow:").
func NewRedisResultStore(client *redis.Client, prefix string) *RedisResultStore {
	if prefix == "" {
		prefix = "sagaflow:"
	}
	return &RedisResultStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisResultStore) keyResult(id string) string {
	return s.prefix + "result:" + id
}

func (s *RedisResultStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisResultStore) keyWorkflow(name string) string {
	return s.prefix + "idx:wf:" + name
}

func (s *RedisResultStore) keyStatus(status api.Status) string {
	return s.prefix + "idx:status:" + string(status)
}

func (s *RedisResultStore) SaveResult(ctx context.Context, r *api.RunResult) error {
	data, err := EncodeResult(r)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyResult(r.ID), data, 0)
	pipe.SAdd(ctx, s.keyAll(), r.ID)
	pipe.SAdd(ctx, s.keyWorkflow(r.Workflow), r.ID)
	for _, st := range indexedStatuses {
		if st != r.Status {
			pipe.SRem(ctx, s.keyStatus(st), r.ID)
		}
	}
	pipe.SAdd(ctx, s.keyStatus(r.Status), r.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisResultStore) GetResult(ctx context.Context, id string) (*api.RunResult, error) {
	data, err := s.client.Get(ctx, s.keyResult(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	return DecodeResult(data)
}

func (s *RedisResultStore) ListResults(ctx context.Context, filter ResultFilter) ([]*api.RunResult, error) {
	var ids []string
	var err error

	switch {
	case filter.Workflow != "" && filter.Status != "":
		ids, err = s.client.SInter(ctx,
			s.keyWorkflow(filter.Workflow),
			s.keyStatus(filter.Status),
		).Result()
	case filter.Workflow != "":
		ids, err = s.client.SMembers(ctx, s.keyWorkflow(filter.Workflow)).Result()
	case filter.Status != "":
		ids, err = s.client.SMembers(ctx, s.keyStatus(filter.Status)).Result()
	default:
		ids, err = s.client.SMembers(ctx, s.keyAll()).Result()
	}

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyResult(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var results []*api.RunResult
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		r, err := DecodeResult(data)
		if err != nil {
			return nil, err
		}
		// Index sets are not expiring; double-check against the payload.
		if filter.matches(r) {
			results = append(results, r)
		}
	}

	sortResults(results)
	return results, nil
}
