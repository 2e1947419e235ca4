package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"mfaguard/internal/entity"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type redisOTPAttemptRepository struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisOTPAttemptRepository keeps the ledger in one sorted set per
// (user, method), scored by attempt time in milliseconds. Retention must cover
// the widest rate limit window in use.
func NewRedisOTPAttemptRepository(client redis.UniversalClient, prefix string, retention time.Duration) OTPAttemptRepository {
	if prefix == "" {
		prefix = "mfa"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &redisOTPAttemptRepository{client: client, prefix: prefix, retention: retention}
}

func (r *redisOTPAttemptRepository) key(userID uuid.UUID, method string, admitted bool) string {
	if admitted {
		return fmt.Sprintf("%s:att:%s:%s", r.prefix, userID, method)
	}
	return fmt.Sprintf("%s:att:%s:%s:rejected", r.prefix, userID, method)
}

func (r *redisOTPAttemptRepository) Record(ctx context.Context, attempt *entity.OTPAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	key := r.key(attempt.UserID, attempt.Method, attempt.Success)
	score := attempt.CreatedAt.UnixMilli()
	cutoff := attempt.CreatedAt.Add(-r.retention).UnixMilli()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: attempt.ID.String()})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
		pipe.PExpire(ctx, key, r.retention)
		return nil
	})
	return err
}

func (r *redisOTPAttemptRepository) Window(ctx context.Context, userID uuid.UUID, method string, since time.Time) (int64, *time.Time, error) {
	key := r.key(userID, method, true)
	floor := "(" + strconv.FormatInt(since.UnixMilli(), 10)

	var countCmd *redis.IntCmd
	var oldestCmd *redis.ZSliceCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		countCmd = pipe.ZCount(ctx, key, floor, "+inf")
		oldestCmd = pipe.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
			Min:   floor,
			Max:   "+inf",
			Count: 1,
		})
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	count := countCmd.Val()
	oldest := oldestCmd.Val()
	if count == 0 || len(oldest) == 0 {
		return count, nil, nil
	}
	at := time.UnixMilli(int64(oldest[0].Score))
	return count, &at, nil
}
