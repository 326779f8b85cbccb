package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Session はライブ映像ストリームのライフサイクルを管理する
//
// デバイス列挙、向きを指定したストリーム取得、制約過多時の向きフォールバック、
// デバイスの切り替え、静止画キャプチャを担う。
// Acquire / SwitchDevice / Capture / Close は単一スロットのキューで直列化され、
// 2つの取得処理がハードウェアの停止・開始を奪い合うことはない。
type Session struct {
	devices MediaDevices
	surface Surface
	logger  *slog.Logger

	acquireTimeout time.Duration
	width          int
	height         int

	// 操作の直列化用（容量1）
	slot chan struct{}

	// 状態はスナップショット読み出しのためmuで保護する
	mu          sync.RWMutex
	facing      Facing
	deviceList  []DeviceDescriptor
	activeIndex int
	stream      Stream
}

// Option はSessionの設定を変更する
type Option func(*Session)

// WithSurface は映像面を指定する。省略時はTrackSurface
func WithSurface(surface Surface) Option {
	return func(s *Session) {
		s.surface = surface
	}
}

// WithFacing は初期の向きを指定する。省略時は背面
func WithFacing(f Facing) Option {
	return func(s *Session) {
		if f.Valid() {
			s.facing = f
		}
	}
}

// WithAcquireTimeout はストリーム取得1回あたりのタイムアウトを指定する。0は無制限
func WithAcquireTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.acquireTimeout = d
	}
}

// WithResolution は希望する解像度を指定する
func WithResolution(width, height int) Option {
	return func(s *Session) {
		s.width = width
		s.height = height
	}
}

// WithLogger はロガーを指定する
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession は新しいSessionを作成する
func NewSession(devices MediaDevices, opts ...Option) *Session {
	s := &Session{
		devices:     devices,
		facing:      FacingBack,
		activeIndex: -1,
		slot:        make(chan struct{}, 1),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.surface == nil {
		s.surface = NewTrackSurface()
	}
	return s
}

// lock はスロットを確保する
func (s *Session) lock(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) unlock() {
	<-s.slot
}

// Acquire はストリームを取得する
//
// deviceIDが空の場合は現在の向きを制約にする。向きでの取得が制約過多で失敗した場合に限り、
// 向きを反転して1回だけ自動で再試行する。
func (s *Session) Acquire(ctx context.Context, deviceID string) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	return s.acquire(ctx, deviceID)
}

// acquire はフォールバックを含む取得処理（スロット確保済み前提）
func (s *Session) acquire(ctx context.Context, deviceID string) error {
	err := s.tryAcquire(ctx, deviceID)
	if err == nil || deviceID != "" || !IsOverConstrained(err) {
		return err
	}

	s.mu.Lock()
	from := s.facing
	s.facing = from.Opposite()
	to := s.facing
	s.mu.Unlock()

	s.logger.Warn("camera: 制約過多のため向きを切り替えて再試行します",
		"from", from,
		"to", to,
		"error", err,
	)

	if err := s.tryAcquire(ctx, ""); err != nil {
		s.logger.Error("camera: 再試行でも取得に失敗しました", "facing", to, "error", err)
		return err
	}
	return nil
}

// tryAcquire は1回分の取得処理
func (s *Session) tryAcquire(ctx context.Context, deviceID string) error {
	// 新しい要求の前に必ず既存のストリームを解放する
	s.release()

	s.mu.RLock()
	c := Constraints{
		Facing:   s.facing,
		DeviceID: deviceID,
		Width:    s.width,
		Height:   s.height,
	}
	s.mu.RUnlock()

	actx := ctx
	if s.acquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.acquireTimeout)
		defer cancel()
	}

	stream, err := s.devices.GetUserMedia(actx, c)
	if err != nil {
		return classifyAcquireError(err, c)
	}
	if err := actx.Err(); err != nil {
		// タイムアウト後に届いたストリームは採用しない
		stopTracks(stream)
		return classifyAcquireError(err, c)
	}

	if err := s.surface.Attach(stream); err != nil {
		stopTracks(stream)
		return &AcquireError{Kind: ErrKindNotReadable, Constraints: c, Err: err}
	}
	if err := s.surface.Play(actx); err != nil {
		s.surface.Detach()
		stopTracks(stream)
		aerr := classifyAcquireError(err, c)
		if aerr.Kind == ErrKindUnknown {
			// フレームが届かないデバイスは読み取り不能として扱う
			aerr.Kind = ErrKindNotReadable
		}
		return aerr
	}

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	s.refreshDevices(ctx, stream)

	settings, _ := primarySettings(stream)
	s.logger.Info("camera: ストリームを取得しました",
		"device", settings.DeviceID,
		"width", settings.Width,
		"height", settings.Height,
		"facing", c.Facing,
		"exact", c.Exact(),
	)
	return nil
}

// refreshDevices はデバイスを列挙し直し、アクティブなインデックスを再計算する
func (s *Session) refreshDevices(ctx context.Context, stream Stream) {
	devices, err := s.devices.EnumerateDevices(ctx)
	if err != nil {
		// ストリームは生きているので、前回の一覧を残して続行する
		s.logger.Warn("camera: デバイスの列挙に失敗しました", "error", err)
		devices = nil
	}

	settings, _ := primarySettings(stream)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.deviceList = devices
	}
	s.activeIndex = indexOfDevice(s.deviceList, settings.DeviceID)
}

// indexOfDevice はIDに一致するデバイスの位置を返す。見つからなければ-1
func indexOfDevice(devices []DeviceDescriptor, id string) int {
	if id == "" {
		return -1
	}
	for i, d := range devices {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// release はライブストリームの全トラックを停止して面から外す
func (s *Session) release() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return
	}
	s.surface.Detach()
	stopTracks(stream)
}

// SwitchDevice は次のデバイスに切り替える
//
// デバイスが1台以下の場合は何もしない。
func (s *Session) SwitchDevice(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	s.mu.Lock()
	if len(s.deviceList) <= 1 {
		s.mu.Unlock()
		return nil
	}
	next := (s.activeIndex + 1) % len(s.deviceList)
	device := s.deviceList[next]
	s.activeIndex = next
	if f, ok := InferFacing(device.Label); ok {
		s.facing = f
	}
	s.mu.Unlock()

	s.logger.Info("camera: デバイスを切り替えます", "index", next, "device", device.ID, "label", device.Label)

	return s.acquire(ctx, device.ID)
}

// Capture は現在のフレームをJPEGとしてキャプチャする
func (s *Session) Capture(ctx context.Context) (*CaptureResult, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	s.mu.RLock()
	stream := s.stream
	s.mu.RUnlock()

	if stream == nil {
		return nil, ErrNoActiveSession
	}

	frame, err := s.surface.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("フレームの取得に失敗: %w", err)
	}

	width, height := 0, 0
	if settings, ok := primarySettings(stream); ok {
		width, height = settings.Width, settings.Height
	}
	if width <= 0 || height <= 0 {
		width, height = s.surface.IntrinsicSize()
	}

	return encodeSnapshot(frame, width, height)
}

// Close はストリームを解放してセッションを終了する
func (s *Session) Close(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	s.release()
	return nil
}

// State は現在の状態のスナップショットを返す
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]DeviceDescriptor, len(s.deviceList))
	copy(devices, s.deviceList)

	return SessionState{
		Facing:      s.facing,
		Devices:     devices,
		ActiveIndex: s.activeIndex,
		Live:        s.stream != nil,
		CanSwitch:   len(s.deviceList) > 1,
	}
}

// Live はライブストリームがあるかを返す
func (s *Session) Live() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream != nil
}

// IsAcquireFailure はエラーがストリーム取得の失敗かを返す
func IsAcquireFailure(err error) bool {
	var aerr *AcquireError
	return errors.As(err, &aerr)
}
