package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistributedLock 跨实例互斥
// 编排器用它串行化赞助账户和目标地址的链上花费，
// 定时任务和归集用它保证多实例部署时同一批任务只跑一份
type DistributedLock interface {
	// Acquire 尝试获取锁，拿不到返回 (false, nil) 而不是报错
	// ttl 是锁的自动过期时间，持有方崩溃后靠它兜底释放
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release 主动释放锁
	Release(ctx context.Context, key string) error
}

// RedisLock 基于 Redis SETNX 的实现
type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	// SET key value NX EX ttl
	// value 可以是随机字符串或机器ID，用于释放时校验归属 (这里简化暂不校验)
	success, err := l.client.SetNX(ctx, "lock:"+key, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	// 直接删除 Key
	// 生产环境严谨做法: 需要 Lua 脚本检查 Value 是否属于自己再删除
	return l.client.Del(ctx, "lock:"+key).Err()
}
