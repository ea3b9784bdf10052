package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger はリクエストごとにアクセスログを出力するGinミドルウェアを返す。
// 4xxはWarn、5xxはErrorで出力する。Authorizationヘッダーやボディは出力しない。
// skipPathsに含まれるパスはログを出力しない。
func RequestLogger(logger *slog.Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		logger.Log(c.Request.Context(), level, "HTTPリクエスト",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"client_ip", c.ClientIP(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes_written", c.Writer.Size(),
		)
	}
}
