// Package ratelimit は公開APIに対するIP単位の固定ウィンドウレート制限を提供する。
//
// 公開の予約フォームエンドポイントへの連続投稿を抑制するために使用する。
// カウンタの実体はRedisだが、テストではインメモリ実装に差し替えられる。
package ratelimit

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Counter はウィンドウ内のリクエスト数を数えるカウンタ。
type Counter interface {
	// Incr はキーのカウントを1増やし、増加後の値を返す。
	Incr(ctx context.Context, key string) (int64, error)
	// Expire はキーに有効期限を設定する。
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RedisCounter はRedisのINCR/EXPIREによるCounter実装。
type RedisCounter struct {
	// client はRedisクライアント。
	client *redis.Client
}

// NewRedisCounter は指定アドレスのRedisに接続するカウンタを生成する。
func NewRedisCounter(addr string) *RedisCounter {
	return &RedisCounter{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Incr はRedisのINCRコマンドを実行する。
func (r *RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

// Expire はRedisのEXPIREコマンドを実行する。
func (r *RedisCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

// Middleware はクライアントIP単位のレート制限を行うGinミドルウェアを返す。
// ウィンドウ内のリクエスト数がlimitを超えた場合は429を返す。
// カウンタへのアクセスに失敗した場合はログに記録してリクエストを通す。
// 予約の受付可否がレート制限基盤の障害に左右されないようにするため。
func Middleware(counter Counter, limit int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:" + c.ClientIP()

		count, err := counter.Incr(c.Request.Context(), key)
		if err != nil {
			log.Printf("[RateLimit] カウンタの更新に失敗: %v", err)
			c.Next()
			return
		}

		if count == 1 {
			if err := counter.Expire(c.Request.Context(), key, window); err != nil {
				log.Printf("[RateLimit] 有効期限の設定に失敗: %v", err)
			}
		}

		if count > limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "リクエストが多すぎます。しばらく待ってから再試行してください",
			})
			return
		}

		c.Next()
	}
}
