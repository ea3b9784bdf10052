package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter はクライアントごとに固定ウィンドウ方式でリクエスト数を制限する。
type RateLimiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	max      int
	period   time.Duration
	now      func() time.Time
	stopC    chan struct{}
	stopOnce sync.Once
}

// window はクライアント1件分の計測状態。
type window struct {
	start time.Time
	count int
}

// NewRateLimiter は新しいRateLimiterを生成する。
// periodの間にmax件を超えたリクエストは拒否される。
// 使われなくなったウィンドウを掃除するゴルーチンを起動するため、不要になったらStopを呼ぶこと。
func NewRateLimiter(max int, period time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		max:     max,
		period:  period,
		now:     time.Now,
		stopC:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow はkeyのリクエストを許可するかどうかを返す。
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.period {
		rl.windows[key] = &window{start: now, count: 1}
		return rl.max > 0
	}
	if w.count >= rl.max {
		return false
	}
	w.count++
	return true
}

// Stop は掃除用のゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopC) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.period * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopC:
			return
		}
	}
}

// cleanup はウィンドウが閉じてから十分に時間が経ったクライアントを削除する。
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if now.Sub(w.start) > rl.period*2 {
			delete(rl.windows, key)
		}
	}
}

// RateLimit はクライアントIPごとにリクエスト数を制限するGinミドルウェアを返す。
// 上限を超えたリクエストには429を返し、ルーティングまで到達させない。
func RateLimit(limiter *RateLimiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			logger.WarnContext(c.Request.Context(), "レート制限を超過しました",
				"ip", ip,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, "TOO MANY REQUESTS")
			return
		}
		c.Next()
	}
}
