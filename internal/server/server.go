package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"cardscan/internal/camera"
	"cardscan/internal/card"
	"cardscan/internal/config"
	"cardscan/internal/logging"
)

// Deps はサーバーが使うコンポーネント
type Deps struct {
	Scanner Scanner
	Cards   card.Repository
	// Camera はサーバー側カメラを使わない場合nil
	Camera *camera.Session
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
	handler    *Handler
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	engine := gin.New()

	s := &Server{
		config: cfg,
		logger: logger,
		engine: engine,
		handler: &Handler{
			config:  cfg,
			scanner: deps.Scanner,
			cards:   deps.Cards,
			camera:  deps.Camera,
			logger:  logger,
		},
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
	s.setupRoutes()
	return s
}

// Handler はルーティング済みのhttp.Handlerを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(logging.Middleware(s.logger))
	s.engine.Use(corsMiddleware())

	h := s.handler

	// 撮影ページ
	s.engine.GET("/", h.Index)
	s.engine.StaticFS("/static", http.FS(staticFiles))

	// ヘルスチェックエンドポイント
	s.engine.GET("/health", h.HealthCheck)

	api := s.engine.Group("/api")
	{
		api.GET("/status", h.GetStatus)
		api.POST("/scan-card", h.ScanCard)
		api.GET("/cards", h.ListCards)
		api.GET("/cards/:id", h.GetCard)

		cam := api.Group("/camera")
		cam.Use(h.requireCamera)
		cam.GET("", h.GetCamera)
		cam.POST("/acquire", h.AcquireCamera)
		cam.POST("/switch", h.SwitchCamera)
		cam.POST("/capture", h.CaptureCamera)
		cam.POST("/release", h.ReleaseCamera)
	}
}

// corsMiddleware は別オリジンの撮影ページからの送信を許可する
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Origin, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", "addr", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.Info("シグナルを受信しました", "signal", sig.String())
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています...")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	// カメラを解放
	if s.handler.camera != nil {
		if err := s.handler.camera.Close(ctx); err != nil {
			s.logger.Warn("カメラの解放に失敗しました", "error", err)
		}
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}
