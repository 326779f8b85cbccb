package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cardscan/internal/camera"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Camera     CameraConfig     `yaml:"camera"`
	Submission SubmissionConfig `yaml:"submission"`
	LLM        LLMConfig        `yaml:"llm"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト

	// リクエストボディの上限（バイト）
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Enabled bool   `yaml:"enabled"` // サーバー側でカメラを使うか
	Backend string `yaml:"backend"` // v4l2 または memory
	Facing  string `yaml:"facing"`  // 初期の向き (user / environment / front / back / rear)

	Width  int `yaml:"width"`  // 希望する幅
	Height int `yaml:"height"` // 希望する高さ

	// ストリーム取得1回あたりのタイムアウト（0は無制限）
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// SubmissionConfig はキャプチャ画像の送信先
type SubmissionConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LLMConfig はカード情報抽出の設定
type LLMConfig struct {
	Provider string        `yaml:"provider"` // gemini または mock
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DatabaseConfig はデータベースの設定
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3 または postgres
	DSN    string `yaml:"dsn"`
}

// StorageConfig は画像の保存先
type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
}

// LogConfig はログの設定
type LogConfig struct {
	Level  string `yaml:"level"`  // debug / info / warn / error
	Format string `yaml:"format"` // text / json
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second, // LLMの応答待ちを含む
			MaxBodyBytes: 20 << 20,
		},
		Camera: CameraConfig{
			Enabled:        false,
			Backend:        "v4l2",
			Facing:         "environment",
			Width:          1280,
			Height:         720,
			AcquireTimeout: 10 * time.Second,
		},
		Submission: SubmissionConfig{
			Endpoint: "http://localhost:8080/api/scan-card",
			Timeout:  60 * time.Second,
		},
		LLM: LLMConfig{
			Provider: "mock",
			Model:    "gemini-2.0-flash",
			Timeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "cardscan.db",
		},
		Storage: StorageConfig{
			UploadDir: "uploads",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load は設定を読み込む
// CARDSCAN_CONFIG が設定されていればそのYAMLファイルも読む
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CARDSCAN_CONFIG"))
}

// LoadFile はデフォルト値、YAMLファイル、.env、環境変数の順に設定を重ねる
// pathが空の場合はファイルを読まない
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	// .env は既存の環境変数を上書きしない
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".envの読み込みに失敗: %w", err)
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)

	c.Camera.Enabled = getEnvAsBoolOrDefault("CAMERA_ENABLED", c.Camera.Enabled)
	c.Camera.Backend = getEnvOrDefault("CAMERA_BACKEND", c.Camera.Backend)
	c.Camera.Facing = getEnvOrDefault("CAMERA_FACING", c.Camera.Facing)

	c.Submission.Endpoint = getEnvOrDefault("SUBMIT_ENDPOINT", c.Submission.Endpoint)

	c.LLM.Provider = getEnvOrDefault("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.APIKey = getEnvOrDefault("GOOGLE_API_KEY", c.LLM.APIKey)
	c.LLM.Model = getEnvOrDefault("LLM_MODEL", c.LLM.Model)

	c.Database.Driver = getEnvOrDefault("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnvOrDefault("DB_DSN", c.Database.DSN)

	c.Storage.UploadDir = getEnvOrDefault("UPLOAD_DIR", c.Storage.UploadDir)

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// カメラ設定の検証
	switch c.Camera.Backend {
	case "v4l2", "memory":
	default:
		return fmt.Errorf("無効なカメラバックエンド: %s", c.Camera.Backend)
	}
	facing, err := camera.ParseFacing(c.Camera.Facing)
	if err != nil {
		return err
	}
	c.Camera.Facing = string(facing)
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return fmt.Errorf("無効な解像度: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.AcquireTimeout < 0 {
		return fmt.Errorf("無効な取得タイムアウト: %s", c.Camera.AcquireTimeout)
	}

	// LLM設定の検証
	switch c.LLM.Provider {
	case "mock":
	case "gemini":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("geminiを使うにはGOOGLE_API_KEYが必要です")
		}
	default:
		return fmt.Errorf("無効なLLMプロバイダ: %s", c.LLM.Provider)
	}

	// データベース設定の検証
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("無効なデータベースドライバ: %s", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("データベースのDSNが設定されていません")
	}

	if c.Storage.UploadDir == "" {
		return fmt.Errorf("アップロードディレクトリが設定されていません")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("無効なログ形式: %s", c.Log.Format)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault は環境変数を真偽値として取得する
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}
