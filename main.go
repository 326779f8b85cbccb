package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"cardscan/internal/camera"
	"cardscan/internal/card"
	"cardscan/internal/config"
	"cardscan/internal/llm"
	"cardscan/internal/logging"
	"cardscan/internal/scan"
	"cardscan/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		configPath = flag.String("config", os.Getenv("CARDSCAN_CONFIG"), "設定ファイル (YAML)")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("cardscan - カードスキャンサーバー")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  cardscan [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		log.Fatalf("ロガーの作成に失敗しました: %v", err)
	}
	slog.SetDefault(logger)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("サーバーの起動に失敗しました", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := card.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	var extractor llm.Extractor
	switch cfg.LLM.Provider {
	case "gemini":
		extractor = llm.NewGemini(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, cfg.LLM.Timeout, logger)
	default:
		logger.Warn("モックのLLMを使用します")
		extractor = llm.NewMock()
	}

	repo := card.NewRepository(db)
	deps := server.Deps{
		Scanner: scan.NewService(extractor, repo, cfg.Storage.UploadDir, logger),
		Cards:   repo,
	}

	if cfg.Camera.Enabled {
		session, err := newCameraSession(cfg, logger)
		if err != nil {
			return err
		}
		deps.Camera = session
	}

	srv := server.New(cfg, deps, logger)

	logger.Info("cardscan サーバーを起動します",
		"addr", cfg.ServerAddress(),
		"llm", cfg.LLM.Provider,
		"database", cfg.Database.Driver,
		"camera", cfg.Camera.Enabled,
	)
	return srv.Start(context.Background())
}

func newCameraSession(cfg *config.Config, logger *slog.Logger) (*camera.Session, error) {
	devices, err := camera.NewBackendFactory().Create(camera.Backend(cfg.Camera.Backend), logger)
	if err != nil {
		return nil, err
	}
	facing, err := camera.ParseFacing(cfg.Camera.Facing)
	if err != nil {
		return nil, err
	}
	return camera.NewSession(devices,
		camera.WithFacing(facing),
		camera.WithResolution(cfg.Camera.Width, cfg.Camera.Height),
		camera.WithAcquireTimeout(cfg.Camera.AcquireTimeout),
		camera.WithLogger(logger),
	), nil
}
