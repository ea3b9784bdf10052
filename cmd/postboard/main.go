// postboardサーバーのエントリポイント。
// ユーザー登録、投稿の作成と更新、公開範囲に応じた投稿一覧をHTTPで提供する。
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/postboard/internal/board"
	"github.com/nao1215/postboard/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("POSTBOARD_CONFIG"))
	if err != nil {
		slog.Error("設定の読み込みに失敗", "error", err)
		os.Exit(1)
	}
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("postboardが異常終了しました", "error", err)
		os.Exit(1)
	}
	logger.Info("postboardを停止しました")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := board.NewServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.Error("リソースの解放に失敗", "error", err)
		}
	}()

	logger.Info("postboardを起動します", "port", cfg.Port, "db_driver", cfg.DB.Driver)
	return server.Run(ctx)
}
