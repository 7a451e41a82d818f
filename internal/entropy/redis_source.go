package entropy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	infrds "lotto-server/internal/infra/redis"

	goredis "github.com/redis/go-redis/v9"
)

// 请求与履约值的保留时间：远大于一个回合的正常时长即可
const entropyKeyTTL = 24 * time.Hour

// RedisSource 基于 Redis 的熵源适配器
// 请求ID通过 INCR 分配，待履约请求登记在 entropy:req:{id}；
// 外部履约方将随机值写入 entropy:val:{id}（十进制字符串）。
// 本进程只读值，不生成值——生成属于履约方。
type RedisSource struct{}

func NewRedisSource() *RedisSource { return &RedisSource{} }

func (s *RedisSource) Request(ctx context.Context, tag string) (string, error) {
	if err := ValidateTag(tag); err != nil {
		return "", err
	}
	r := infrds.Client()
	if r == nil {
		return "", ErrResourceUnavailable
	}
	n, err := r.Incr(ctx, infrds.EntropySeqKey()).Result()
	if err != nil {
		return "", ErrResourceUnavailable
	}
	id := fmt.Sprintf("req-%d", n)
	if err := r.Set(ctx, infrds.EntropyRequestKey(id), tag, entropyKeyTTL).Err(); err != nil {
		return "", ErrResourceUnavailable
	}
	return id, nil
}

func (s *RedisSource) IsFulfilled(ctx context.Context, requestID string) bool {
	r := infrds.Client()
	if r == nil {
		return false
	}
	n, err := r.Exists(ctx, infrds.EntropyValueKey(requestID)).Result()
	// 查询失败按未履约处理，调用方稍后重试
	return err == nil && n > 0
}

func (s *RedisSource) ValueFor(ctx context.Context, requestID string) (uint64, error) {
	r := infrds.Client()
	if r == nil {
		return 0, ErrNotFulfilled
	}
	str, err := r.Get(ctx, infrds.EntropyValueKey(requestID)).Result()
	if err == goredis.Nil {
		return 0, ErrNotFulfilled
	}
	if err != nil {
		return 0, ErrNotFulfilled
	}
	v, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed entropy value for %s: %w", requestID, err)
	}
	return v, nil
}

// PendingRequests 扫描未履约的请求ID（演示模式履约 worker 使用）
func (s *RedisSource) PendingRequests(ctx context.Context, limit int) ([]string, error) {
	r := infrds.Client()
	if r == nil {
		return nil, ErrResourceUnavailable
	}
	var ids []string
	iter := r.Scan(ctx, 0, infrds.EntropyRequestKey("*"), int64(limit)).Iterator()
	prefixLen := len(infrds.EntropyRequestKey(""))
	for iter.Next(ctx) {
		id := iter.Val()[prefixLen:]
		n, err := r.Exists(ctx, infrds.EntropyValueKey(id)).Result()
		if err == nil && n == 0 {
			ids = append(ids, id)
		}
		if len(ids) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// CommitValue 写入请求的随机值（演示模式履约 worker 使用）
func (s *RedisSource) CommitValue(ctx context.Context, requestID string, value uint64) error {
	r := infrds.Client()
	if r == nil {
		return ErrResourceUnavailable
	}
	return r.Set(ctx, infrds.EntropyValueKey(requestID), strconv.FormatUint(value, 10), entropyKeyTTL).Err()
}
