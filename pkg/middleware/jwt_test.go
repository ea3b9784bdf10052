package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/postboard/pkg/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のトークン署名秘密鍵。
const testSecret = "test-secret-key-for-unit-tests"

// newClaimsRouter はOptionalAuthを適用し、取得したクレームをそのまま返すルーターを生成する。
func newClaimsRouter(t *testing.T) (*gin.Engine, *token.Service) {
	t.Helper()

	svc, err := token.NewService(testSecret)
	if err != nil {
		t.Fatalf("token.NewService()でエラーが発生: %v", err)
	}

	router := gin.New()
	router.Use(OptionalAuth(svc))
	router.GET("/test", func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			c.JSON(http.StatusOK, gin.H{"authenticated": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"authenticated": true, "name": claims.Name, "key": claims.Key})
	})
	return router, svc
}

// TestOptionalAuth はOptionalAuthミドルウェアを検証する。
func TestOptionalAuth(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンでクレームが設定されること", func(t *testing.T) {
		t.Parallel()

		router, svc := newClaimsRouter(t)
		tok, err := svc.Issue("alice", "key-1")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["authenticated"] != true {
			t.Fatalf("authenticated = %v, want true", body["authenticated"])
		}
		if body["name"] != "alice" || body["key"] != "key-1" {
			t.Errorf("claims = %v", body)
		}
	})

	tests := []struct {
		name   string
		header string
	}{
		{name: "Authorizationヘッダーが無い場合は未認証で続行すること", header: ""},
		{name: "Bearer接頭辞が無い場合は未認証で続行すること", header: "Token abc"},
		{name: "不正なトークンの場合は未認証で続行すること", header: "Bearer invalid.token.string"},
		{name: "トークンが空の場合は未認証で続行すること", header: "Bearer "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router, _ := newClaimsRouter(t)
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("レスポンスボディのパースに失敗: %v", err)
			}
			if body["authenticated"] != false {
				t.Errorf("authenticated = %v, want false", body["authenticated"])
			}
		})
	}

	t.Run("別の秘密鍵で署名されたトークンは未認証になること", func(t *testing.T) {
		t.Parallel()

		router, _ := newClaimsRouter(t)
		other, err := token.NewService("another-secret")
		if err != nil {
			t.Fatalf("token.NewService()でエラーが発生: %v", err)
		}
		tok, err := other.Issue("mallory", "k")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["authenticated"] != false {
			t.Errorf("authenticated = %v, want false", body["authenticated"])
		}
	})
}

// TestGetClaims はGetClaims関数を検証する。
func TestGetClaims(t *testing.T) {
	t.Parallel()

	t.Run("クレームが設定されていない場合nilを返すこと", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if got := GetClaims(c); got != nil {
			t.Errorf("GetClaims() = %+v, want nil", got)
		}
	})

	t.Run("型が異なる値が設定されている場合nilを返すこと", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(contextKeyClaims, "not-claims")
		if got := GetClaims(c); got != nil {
			t.Errorf("GetClaims() = %+v, want nil", got)
		}
	})
}
