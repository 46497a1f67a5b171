package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	PlanLockPrefix  = "plan:lock:"
	PlanDirtyPrefix = "plan:dirty:"
)

var ErrLockLost = errors.New("plan lock lost")

// 抢锁失败时打上 dirty 标记，持锁者释放时会看到并重跑
var acquireScript = redis.NewScript(`
if redis.call("set", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
  return 1
end
redis.call("set", KEYS[2], "1", "PX", ARGV[2])
return 0`)

// 有 dirty 标记则续期并保留锁（返回 1 需要重跑），否则释放（返回 0）；锁已不属于自己返回 -1
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) ~= ARGV[1] then
  return -1
end
if redis.call("del", KEYS[2]) == 1 then
  redis.call("pexpire", KEYS[1], ARGV[2])
  return 1
end
redis.call("del", KEYS[1])
return 0`)

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// PlanLock 按 subject 合并并发的重新生成请求
type PlanLock struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewPlanLock(rdb *redis.Client, ttl time.Duration) *PlanLock {
	return &PlanLock{RDB: rdb, TTL: ttl}
}

func (l *PlanLock) keys(subjectKey string) []string {
	return []string{PlanLockPrefix + subjectKey, PlanDirtyPrefix + subjectKey}
}

// Acquire 返回 false 表示已有持锁者，本次请求已记为 dirty
func (l *PlanLock) Acquire(ctx context.Context, subjectKey, token string) (bool, error) {
	n, err := acquireScript.Run(ctx, l.RDB, l.keys(subjectKey), token, l.TTL.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release 返回 true 时锁仍由调用方持有，需要再生成一次
func (l *PlanLock) Release(ctx context.Context, subjectKey, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.RDB, l.keys(subjectKey), token, l.TTL.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	switch n {
	case 1:
		return true, nil
	case -1:
		return false, ErrLockLost
	}
	return false, nil
}

// Unlock 直接释放锁，忽略 dirty 标记（重跑次数用尽或 Release 出错时使用）
func (l *PlanLock) Unlock(ctx context.Context, subjectKey, token string) error {
	_, err := unlockScript.Run(ctx, l.RDB, l.keys(subjectKey)[:1], token).Result()
	return err
}
