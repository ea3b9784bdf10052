package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 環境変数を書き換えるため、このファイルのテストはt.Parallelを使わない。

func TestLoad(t *testing.T) {
	t.Run("署名鍵だけを指定した場合に既定値で読み込めること", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "s3cret")
		t.Setenv("PORT", "")
		t.Setenv("POSTBOARD_PORT", "")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "sqlite", cfg.DB.Driver)
		assert.Equal(t, "postboard.db", cfg.DB.DSN)
		assert.Equal(t, "s3cret", cfg.JWT.Secret)
		assert.Equal(t, time.Minute, cfg.RateLimit.Window)
		assert.Equal(t, 12000, cfg.RateLimit.Max)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Empty(t, cfg.CORS.AllowedOrigins)
		assert.Empty(t, cfg.HTTP.TrustedProxies)
		assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodyBytes)
	})

	t.Run("署名鍵が無い場合はエラーになること", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		t.Setenv("POSTBOARD_JWT_SECRET", "")

		_, err := Load("")
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("接頭辞付きの環境変数で上書きできること", func(t *testing.T) {
		t.Setenv("POSTBOARD_JWT_SECRET", "from-prefixed")
		t.Setenv("POSTBOARD_DB_DRIVER", "pgx")
		t.Setenv("POSTBOARD_DB_DSN", "postgres://localhost/postboard")
		t.Setenv("POSTBOARD_RATE_LIMIT_WINDOW", "30s")
		t.Setenv("POSTBOARD_RATE_LIMIT_MAX", "5")
		t.Setenv("PORT", "9090")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "from-prefixed", cfg.JWT.Secret)
		assert.Equal(t, "pgx", cfg.DB.Driver)
		assert.Equal(t, "postgres://localhost/postboard", cfg.DB.DSN)
		assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
		assert.Equal(t, 5, cfg.RateLimit.Max)
		assert.Equal(t, "9090", cfg.Port)
	})

	t.Run("YAMLファイルから読み込み環境変数が優先されること", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "postboard.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
jwt:
  secret: from-file
log:
  level: debug
  format: text
cors:
  allowed_origins:
    - http://localhost:3000
http:
  trusted_proxies:
    - 10.0.0.1
    - 172.16.0.0/12
  max_body_bytes: 4096
`), 0o600))
		t.Setenv("JWT_SECRET", "")
		t.Setenv("POSTBOARD_PORT", "7001")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "7001", cfg.Port)
		assert.Equal(t, "from-file", cfg.JWT.Secret)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.HTTP.TrustedProxies)
		assert.Equal(t, int64(4096), cfg.HTTP.MaxBodyBytes)
	})

	t.Run("存在しない設定ファイルはエラーになること", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "s3cret")

		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:      "8080",
			DB:        DB{Driver: "sqlite", DSN: "x.db"},
			JWT:       JWT{Secret: "s"},
			RateLimit: RateLimit{Window: time.Minute, Max: 10},
			Log:       Log{Level: "info", Format: "json"},
			HTTP:      HTTP{TrustedProxies: []string{"10.0.0.1", "10.0.0.0/8"}, MaxBodyBytes: 1024},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "未対応のドライバ", mutate: func(c *Config) { c.DB.Driver = "mysql" }},
		{name: "空のDSN", mutate: func(c *Config) { c.DB.DSN = "" }},
		{name: "0以下のウィンドウ", mutate: func(c *Config) { c.RateLimit.Window = 0 }},
		{name: "負の上限", mutate: func(c *Config) { c.RateLimit.Max = -1 }},
		{name: "不正なログレベル", mutate: func(c *Config) { c.Log.Level = "verbose" }},
		{name: "不正なログ形式", mutate: func(c *Config) { c.Log.Format = "xml" }},
		{name: "IPではない信頼プロキシ", mutate: func(c *Config) { c.HTTP.TrustedProxies = []string{"proxy.local"} }},
		{name: "0以下のボディ上限", mutate: func(c *Config) { c.HTTP.MaxBodyBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name+"はエラーになること", func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}

	t.Run("正しい設定はエラーにならないこと", func(t *testing.T) {
		c := valid()
		assert.NoError(t, c.Validate())
	})
}

func TestLog_NewLogger(t *testing.T) {
	t.Run("text形式でレベル未満のログが出力されないこと", func(t *testing.T) {
		var buf bytes.Buffer
		logger := Log{Level: "warn", Format: "text"}.NewLogger(&buf)
		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "level=WARN")
	})

	t.Run("json形式で出力されること", func(t *testing.T) {
		var buf bytes.Buffer
		Log{Level: "info", Format: "json"}.NewLogger(&buf).Info("hello")
		assert.Contains(t, buf.String(), `"msg":"hello"`)
	})
}
