package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BodyLimit はリクエストボディをmaxBytesバイトまでに制限するGinミドルウェアを返す。
// Content-Lengthが上限を超える場合は読み込む前に413を返す。
// 長さが不明なボディは上限を超えて読んだ時点でハンドラ側に*http.MaxBytesErrorが返る。
// maxBytesが0以下なら制限しない。
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, "REQUEST BODY TOO LARGE")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
