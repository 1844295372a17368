package wizard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionLocker 会话级互斥
// 同一会话的阶段合并必须串行化（按键深合并在并发写下不安全），
// 不同会话、不同租户之间无互斥要求
type SessionLocker interface {
	// Acquire 获取会话锁，返回释放函数；ctx 取消前未获取到则返回错误
	Acquire(ctx context.Context, sessionID string) (func(), error)
}

// LocalLocker 进程内会话锁（单实例部署 / 测试用）
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLocker 创建进程内会话锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

// Acquire 获取会话锁
func (l *LocalLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	l.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return m.Unlock, nil
	case <-ctx.Done():
		// 后台 goroutine 最终拿到锁后立即归还
		go func() {
			<-acquired
			m.Unlock()
		}()
		return nil, fmt.Errorf("等待会话锁超时: %w", ctx.Err())
	}
}

// RedisLocker 基于 Redis SET NX 的会话锁（多实例部署用）
type RedisLocker struct {
	rdb   redis.UniversalClient
	lease time.Duration
}

// NewRedisLocker 创建 Redis 会话锁
func NewRedisLocker(rdb redis.UniversalClient, lease time.Duration) *RedisLocker {
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	return &RedisLocker{rdb: rdb, lease: lease}
}

// 仅当持有者一致时才删除，避免释放他人的租约
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire 获取会话锁
func (l *RedisLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := l.lockKey(sessionID)
	token := uuid.New().String()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("获取会话锁失败: %w", err)
		}
		if ok {
			release := func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Err()
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("等待会话锁超时: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) lockKey(sessionID string) string {
	return fmt.Sprintf("wizard:session:lock:%s", sessionID)
}
