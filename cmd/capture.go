// Package main はカメラで1枚撮影してスキャンエンドポイントに送信するコマンドです
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardscan/internal/camera"
	"cardscan/internal/config"
	"cardscan/internal/logging"
	"cardscan/internal/submit"
)

func main() {
	// コマンドラインオプション
	var (
		configPath = flag.String("config", os.Getenv("CARDSCAN_CONFIG"), "設定ファイル (YAML)")
		endpoint   = flag.String("endpoint", "", "送信先 (デフォルト: 設定の submission.endpoint)")
		backend    = flag.String("backend", "", "カメラバックエンド (v4l2 / memory)")
		facing     = flag.String("facing", "", "カメラの向き (user / environment / front / back / rear)")
		device     = flag.String("device", "", "使用するデバイスID (例: /dev/video0)")
		switches   = flag.Int("switch", 0, "撮影前にデバイスを切り替える回数")
		list       = flag.Bool("list", false, "デバイス一覧を表示して終了")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("capture - カードを撮影して送信")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  capture [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	if *endpoint != "" {
		cfg.Submission.Endpoint = *endpoint
	}
	if *backend != "" {
		cfg.Camera.Backend = *backend
	}
	if *facing != "" {
		cfg.Camera.Facing = *facing
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		log.Fatalf("ロガーの作成に失敗しました: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *device, *switches, *list); err != nil {
		var aerr *camera.AcquireError
		if errors.As(err, &aerr) {
			fmt.Fprintln(os.Stderr, aerr.Error())
		} else {
			fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, deviceID string, switches int, list bool) error {
	devices, err := camera.NewBackendFactory().Create(camera.Backend(cfg.Camera.Backend), logger)
	if err != nil {
		return err
	}

	if list {
		descriptors, err := devices.EnumerateDevices(ctx)
		if err != nil {
			return err
		}
		for i, d := range descriptors {
			fmt.Printf("%d\t%s\t%s\n", i, d.ID, d.Label)
		}
		return nil
	}

	facing, err := camera.ParseFacing(cfg.Camera.Facing)
	if err != nil {
		return err
	}

	session := camera.NewSession(devices,
		camera.WithFacing(facing),
		camera.WithResolution(cfg.Camera.Width, cfg.Camera.Height),
		camera.WithAcquireTimeout(cfg.Camera.AcquireTimeout),
		camera.WithLogger(logger),
	)
	defer closeSession(session, logger, 5*time.Second)

	if err := session.Acquire(ctx, deviceID); err != nil {
		return err
	}
	for i := 0; i < switches; i++ {
		if err := session.SwitchDevice(ctx); err != nil {
			return err
		}
	}

	result, err := session.Capture(ctx)
	if err != nil {
		return err
	}
	logger.Info("撮影しました", "width", result.Width, "height", result.Height, "bytes", len(result.Data))

	client := submit.NewClient(cfg.Submission.Endpoint, cfg.Submission.Timeout, logger)
	body, err := client.Submit(ctx, result)
	if err != nil {
		return err
	}
	return submit.Echo(os.Stdout, body)
}

// closeSession はカメラを解放する。失敗はログに残す
func closeSession(session interface{ Close(context.Context) error }, logger *slog.Logger, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := session.Close(ctx); err != nil {
		logger.Warn("カメラの解放に失敗しました", "error", err)
	}
}
