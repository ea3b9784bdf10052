// Package config はpostboardサーバーの設定を環境変数と任意のYAMLファイルから読み込む。
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config はサーバー全体の設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `mapstructure:"port"`
	// DB はデータベース接続の設定。
	DB DB `mapstructure:"db"`
	// JWT はトークン署名の設定。
	JWT JWT `mapstructure:"jwt"`
	// RateLimit はレート制限の設定。
	RateLimit RateLimit `mapstructure:"rate_limit"`
	// Log はログ出力の設定。
	Log Log `mapstructure:"log"`
	// CORS はクロスオリジンリクエストの設定。
	CORS CORS `mapstructure:"cors"`
	// HTTP はリクエストの受け付けに関する設定。
	HTTP HTTP `mapstructure:"http"`
}

// DB はデータベース接続の設定。
type DB struct {
	// Driver は "sqlite" または "pgx"。
	Driver string `mapstructure:"driver"`
	// DSN は接続文字列。SQLiteの場合はファイルパス。
	DSN string `mapstructure:"dsn"`
}

// JWT はトークン署名の設定。
type JWT struct {
	Secret string `mapstructure:"secret"`
}

// RateLimit はクライアントIPごとのリクエスト数の上限。
type RateLimit struct {
	Window time.Duration `mapstructure:"window"`
	Max    int           `mapstructure:"max"`
}

// Log はログ出力の設定。
type Log struct {
	// Level は debug / info / warn / error のいずれか。
	Level string `mapstructure:"level"`
	// Format は json または text。
	Format string `mapstructure:"format"`
}

// CORS はクロスオリジンリクエストの設定。
type CORS struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// HTTP はリクエストの受け付けに関する設定。
type HTTP struct {
	// TrustedProxies はX-Forwarded-Forを信頼するプロキシのIPまたはCIDR。
	// 空の場合はどのプロキシも信頼せず、接続元アドレスをクライアントIPとする。
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	// MaxBodyBytes はリクエストボディの最大バイト数。
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// ErrInvalid は設定値が不正であることを表す。
var ErrInvalid = errors.New("invalid config")

// Load は設定を読み込む。
// 環境変数は POSTBOARD_ 接頭辞にキーの "." を "_" に置き換えた名前で参照する
// （例: POSTBOARD_DB_DSN）。署名鍵は JWT_SECRET、ポートは PORT でも指定できる。
// fileが空でなければYAMLファイルを読み込み、環境変数はその値を上書きする。
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("POSTBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("jwt.secret", "POSTBOARD_JWT_SECRET", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("環境変数の関連付けに失敗: %w", err)
	}
	if err := v.BindEnv("port", "POSTBOARD_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("環境変数の関連付けに失敗: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の展開に失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "postboard.db")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.max", 12000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("http.trusted_proxies", []string{})
	v.SetDefault("http.max_body_bytes", 1<<20)
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port が空です"))
	}
	if c.DB.Driver != "sqlite" && c.DB.Driver != "pgx" {
		errs = append(errs, fmt.Errorf("db.driver は sqlite か pgx を指定してください: %q", c.DB.Driver))
	}
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("db.dsn が空です"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret（JWT_SECRET）が設定されていません"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window は正の値を指定してください: %s", c.RateLimit.Window))
	}
	if c.RateLimit.Max < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.max は0以上を指定してください: %d", c.RateLimit.Max))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format は json か text を指定してください: %q", c.Log.Format))
	}
	for _, p := range c.HTTP.TrustedProxies {
		if !validProxy(p) {
			errs = append(errs, fmt.Errorf("http.trusted_proxies にIPまたはCIDRではない値があります: %q", p))
		}
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("http.max_body_bytes は正の値を指定してください: %d", c.HTTP.MaxBodyBytes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// NewLogger はログ設定に従ってslog.Loggerを生成する。
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(l.Level)
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func validProxy(s string) bool {
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level が不正です: %q", s)
	}
	return level, nil
}
