package camera

import (
	"fmt"
	"log/slog"
	"sort"
)

// Backend はMediaDevices実装の種類
type Backend string

const (
	BackendV4L2   Backend = "v4l2"   // Linuxのカメラデバイス
	BackendMemory Backend = "memory" // 合成フレーム
)

// BackendCreator はMediaDevicesを作成する関数の型
type BackendCreator func(logger *slog.Logger) (MediaDevices, error)

// BackendFactory はバックエンド名からMediaDevicesを作成する
type BackendFactory struct {
	creators map[Backend]BackendCreator
}

// NewBackendFactory は標準のバックエンドを登録したファクトリーを作成する
func NewBackendFactory() *BackendFactory {
	f := &BackendFactory{
		creators: make(map[Backend]BackendCreator),
	}

	f.Register(BackendV4L2, func(logger *slog.Logger) (MediaDevices, error) {
		return NewV4L2Devices(logger), nil
	})
	f.Register(BackendMemory, func(_ *slog.Logger) (MediaDevices, error) {
		return DefaultMemoryDevices(), nil
	})

	return f
}

// Register はバックエンドの作成関数を登録する
func (f *BackendFactory) Register(backend Backend, creator BackendCreator) {
	f.creators[backend] = creator
}

// Create はバックエンドを作成する
func (f *BackendFactory) Create(backend Backend, logger *slog.Logger) (MediaDevices, error) {
	creator, exists := f.creators[backend]
	if !exists {
		return nil, fmt.Errorf("サポートされていないバックエンド: %s", backend)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return creator(logger)
}

// SupportedBackends は登録済みのバックエンドを返す
func (f *BackendFactory) SupportedBackends() []Backend {
	backends := make([]Backend, 0, len(f.creators))
	for b := range f.creators {
		backends = append(backends, b)
	}
	sort.Slice(backends, func(i, j int) bool { return backends[i] < backends[j] })
	return backends
}

// ParseFacing は向きの文字列を変換する
func ParseFacing(s string) (Facing, error) {
	switch s {
	case "user", "front":
		return FacingFront, nil
	case "environment", "back", "rear", "":
		return FacingBack, nil
	}
	return "", fmt.Errorf("無効なカメラの向き: %s", s)
}
