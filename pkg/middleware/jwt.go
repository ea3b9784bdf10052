package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/postboard/pkg/token"
)

// contextKeyClaims はGinコンテキストにクレームを格納するキー。
const contextKeyClaims = "claims"

// TokenVerifier はBearerトークンを検証してクレームを返す。
type TokenVerifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// OptionalAuth はBearerトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合だけコンテキストにクレームを設定する。
// ヘッダーが無い、形式が不正、検証に失敗した場合もリクエストは拒否せず、
// 未認証として後続のハンドラに渡す。認証必須かどうかはハンドラが判断する。
func OptionalAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if found {
			if claims, err := verifier.Verify(strings.TrimSpace(tokenString)); err == nil {
				c.Set(contextKeyClaims, claims)
			}
		}
		c.Next()
	}
}

// GetClaims はGinコンテキストから検証済みのクレームを取得する。
// 未認証の場合はnilを返す。
func GetClaims(c *gin.Context) *token.Claims {
	v, ok := c.Get(contextKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*token.Claims)
	return claims
}
