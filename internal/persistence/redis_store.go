package persistence

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/envroute/pkg/api"
)

// RedisStore is a WorkflowStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>wf:<envelopeID>   => gob-encoded snapshot
//	<prefix>idx:all           => SET of all envelope IDs
//	<prefix>idx:scheduled     => ZSET of paused envelope IDs, scored by resume time (unix ms)
//
// Mutations use WATCH/MULTI on the snapshot key and are retried when another
// client wins the race.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxRetries int
}

var _ WorkflowStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "envroute:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "envroute:"
	}
	return &RedisStore{
		client:     client,
		prefix:     prefix,
		maxRetries: DefaultMaxRetries,
	}
}

func (s *RedisStore) keyWorkflow(envelopeID string) string {
	return s.prefix + "wf:" + envelopeID
}

func (s *RedisStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisStore) keyScheduled() string {
	return s.prefix + "idx:scheduled"
}

func (s *RedisStore) Mutate(ctx context.Context, envelopeID string, fn MutateFunc) error {
	key := s.keyWorkflow(envelopeID)

	txf := func(tx *redis.Tx) error {
		var prev *api.Snapshot
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if prev, err = DecodeSnapshot(data); err != nil {
				return err
			}
		}

		next, err := fn(prev.Clone())
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		if err := prepareNext(next, prev); err != nil {
			return err
		}
		enc, err := EncodeSnapshot(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, enc, 0)
			pipe.SAdd(ctx, s.keyAll(), envelopeID)
			if isScheduled(next.Workflow) {
				pipe.ZAdd(ctx, s.keyScheduled(), redis.Z{
					Score:  float64(next.Workflow.ScheduledResumeAt.UnixMilli()),
					Member: envelopeID,
				})
			} else {
				pipe.ZRem(ctx, s.keyScheduled(), envelopeID)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (s *RedisStore) Get(ctx context.Context, envelopeID string) (*api.Snapshot, error) {
	data, err := s.client.Get(ctx, s.keyWorkflow(envelopeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}
	return DecodeSnapshot(data)
}

func (s *RedisStore) List(ctx context.Context, filter WorkflowFilter) ([]*api.Workflow, error) {
	ids, err := s.client.SMembers(ctx, s.keyAll()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*api.Workflow{}, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return []*api.Workflow{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyWorkflow(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	result := make([]*api.Workflow, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			// Index entries may outlive their payload; skip them.
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		snap, err := DecodeSnapshot(data)
		if err != nil {
			return nil, err
		}
		if filter.Status != "" && snap.Workflow.Status != filter.Status {
			continue
		}
		result = append(result, snap.Workflow)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].EnvelopeID < result[j].EnvelopeID
	})
	return result, nil
}

func (s *RedisStore) ListScheduled(ctx context.Context, dueBy time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.keyScheduled(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(dueBy.UnixMilli(), 10),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return ids, nil
}
