package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(devices MediaDevices, opts ...Option) *Session {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return NewSession(devices, opts...)
}

func unlabeledDevices(ids ...string) *MemoryDevices {
	devices := make([]MemoryDevice, 0, len(ids))
	for _, id := range ids {
		devices = append(devices, MemoryDevice{
			Descriptor: DeviceDescriptor{ID: id, Label: "Camera " + strings.ToUpper(id)},
			Width:      320,
			Height:     240,
		})
	}
	return NewMemoryDevices(devices...)
}

// staticTrack は設定を公開しないトラック
type staticTrack struct {
	img     image.Image
	mu      sync.Mutex
	stopped bool
}

func (t *staticTrack) ID() string                      { return "static" }
func (t *staticTrack) Settings() (TrackSettings, bool) { return TrackSettings{}, false }
func (t *staticTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}
func (t *staticTrack) ReadFrame(_ context.Context) (image.Image, error) { return t.img, nil }

type staticDevices struct {
	track *staticTrack
}

func (d *staticDevices) GetUserMedia(_ context.Context, _ Constraints) (Stream, error) {
	return &memoryStream{tracks: []Track{d.track}}, nil
}

func (d *staticDevices) EnumerateDevices(_ context.Context) ([]DeviceDescriptor, error) {
	return []DeviceDescriptor{{ID: "static", Label: "Static"}}, nil
}

// blockingDevices はコンテキストが終わるまで応答しない
type blockingDevices struct {
	mu    sync.Mutex
	calls int
}

func (d *blockingDevices) GetUserMedia(ctx context.Context, _ Constraints) (Stream, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (d *blockingDevices) EnumerateDevices(_ context.Context) ([]DeviceDescriptor, error) {
	return nil, nil
}

func TestSession_AcquireWithPreferredFacing(t *testing.T) {
	ctx := context.Background()
	devices := DefaultMemoryDevices()
	session := newTestSession(devices)

	if err := session.Acquire(ctx, ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	state := session.State()
	if !state.Live {
		t.Fatal("Expected session to be live")
	}
	if len(state.Devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(state.Devices))
	}
	if !state.CanSwitch {
		t.Error("Expected switching to be enabled with 2 devices")
	}
	// 背面カメラが先頭
	if state.ActiveIndex != 0 {
		t.Errorf("Expected active index 0, got %d", state.ActiveIndex)
	}

	reqs := devices.Requests()
	if len(reqs) != 1 || reqs[0].Facing != FacingBack || reqs[0].Exact() {
		t.Errorf("Unexpected requests: %+v", reqs)
	}
}

func TestSession_AcquireStopsPreviousStream(t *testing.T) {
	ctx := context.Background()
	devices := DefaultMemoryDevices()
	session := newTestSession(devices)

	steps := []func() error{
		func() error { return session.Acquire(ctx, "") },
		func() error { return session.Acquire(ctx, "") },
		func() error { return session.SwitchDevice(ctx) },
		func() error { return session.Acquire(ctx, "memory-back") },
		func() error { return session.SwitchDevice(ctx) },
		func() error { return session.SwitchDevice(ctx) },
	}

	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		if live := devices.LiveTracks(); live > 1 {
			t.Fatalf("step %d: expected at most 1 live track, got %d", i, live)
		}
	}

	// 新しい要求の時点で古いトラックは停止済み
	if got := devices.MaxLiveAtRequest(); got != 0 {
		t.Errorf("Expected no live tracks at request time, got %d", got)
	}
}

func TestSession_OverConstrainedFallsBackOnce(t *testing.T) {
	ctx := context.Background()
	devices := NewMemoryDevices(MemoryDevice{
		Descriptor: DeviceDescriptor{ID: "front-only", Label: "Front Camera"},
		Facing:     FacingFront,
		Width:      640,
		Height:     480,
	})
	session := newTestSession(devices, WithFacing(FacingBack))

	if err := session.Acquire(ctx, ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	reqs := devices.Requests()
	if len(reqs) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].Facing != FacingBack || reqs[1].Facing != FacingFront {
		t.Errorf("Expected back then front, got %s then %s", reqs[0].Facing, reqs[1].Facing)
	}

	state := session.State()
	if state.Facing != FacingFront {
		t.Errorf("Expected facing to flip to front, got %s", state.Facing)
	}
	if !state.Live {
		t.Error("Expected session to be live after fallback")
	}
}

func TestSession_SecondOverConstrainedIsTerminal(t *testing.T) {
	ctx := context.Background()
	devices := DefaultMemoryDevices()
	devices.FailNext(
		&AcquireError{Kind: ErrKindOverConstrained},
		&AcquireError{Kind: ErrKindOverConstrained},
	)
	session := newTestSession(devices)

	err := session.Acquire(ctx, "")
	if err == nil {
		t.Fatal("Expected error after two over-constrained failures")
	}
	if !IsOverConstrained(err) {
		t.Errorf("Expected over-constrained error, got %v", err)
	}

	if reqs := devices.Requests(); len(reqs) != 2 {
		t.Errorf("Expected exactly 2 requests, got %d", len(reqs))
	}
	if session.Live() {
		t.Error("Expected no live stream after terminal failure")
	}
	if devices.LiveTracks() != 0 {
		t.Errorf("Expected no live tracks, got %d", devices.LiveTracks())
	}
	if session.State().Facing != FacingFront {
		t.Errorf("Expected facing to remain flipped, got %s", session.State().Facing)
	}
}

func TestSession_FallbackErrorNamesRetriedFacing(t *testing.T) {
	ctx := context.Background()
	devices := DefaultMemoryDevices()
	shared := &AcquireError{Kind: ErrKindOverConstrained}
	devices.FailNext(shared, shared)
	session := newTestSession(devices)

	err := session.Acquire(ctx, "")

	var aerr *AcquireError
	if !errors.As(err, &aerr) {
		t.Fatalf("Expected AcquireError, got %v", err)
	}
	if aerr.Constraints.Facing != FacingFront {
		t.Errorf("Expected error for facing %s, got %s", FacingFront, aerr.Constraints.Facing)
	}
	if shared.Constraints != (Constraints{}) {
		t.Errorf("Expected backend error to be left untouched, got %+v", shared.Constraints)
	}
}

func TestSession_NoFallbackForExplicitDevice(t *testing.T) {
	ctx := context.Background()
	devices := DefaultMemoryDevices()
	session := newTestSession(devices)

	err := session.Acquire(ctx, "missing-device")
	if !IsOverConstrained(err) {
		t.Fatalf("Expected over-constrained error, got %v", err)
	}

	if reqs := devices.Requests(); len(reqs) != 1 {
		t.Errorf("Expected a single request, got %d", len(reqs))
	}
	if session.State().Facing != FacingBack {
		t.Errorf("Expected facing unchanged, got %s", session.State().Facing)
	}
}

func TestSession_PermissionFailureIsSurfaced(t *testing.T) {
	ctx := context.Background()
	devices := DefaultMemoryDevices()
	devices.FailNext(&AcquireError{Kind: ErrKindPermission, Err: errors.New("permission denied")})
	session := newTestSession(devices)

	err := session.Acquire(ctx, "")
	if err == nil {
		t.Fatal("Expected permission error")
	}

	var aerr *AcquireError
	if !errors.As(err, &aerr) || aerr.Kind != ErrKindPermission {
		t.Fatalf("Expected permission AcquireError, got %v", err)
	}
	if !strings.Contains(err.Error(), "NotAllowedError") {
		t.Errorf("Expected failure name in message, got %q", err.Error())
	}
	if reqs := devices.Requests(); len(reqs) != 1 {
		t.Errorf("Expected no retry for permission failure, got %d requests", len(reqs))
	}
}

func TestSession_FailureAfterLiveStreamReleasesIt(t *testing.T) {
	ctx := context.Background()
	devices := DefaultMemoryDevices()
	session := newTestSession(devices)

	if err := session.Acquire(ctx, ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	devices.FailNext(errors.New("device busy"))
	if err := session.Acquire(ctx, ""); err == nil {
		t.Fatal("Expected second acquire to fail")
	}

	if session.Live() {
		t.Error("Expected no live stream after failed acquire")
	}
	if devices.LiveTracks() != 0 {
		t.Errorf("Expected previous tracks to be stopped, got %d live", devices.LiveTracks())
	}
}

func TestSession_SwitchDeviceNoop(t *testing.T) {
	ctx := context.Background()

	// デバイスなし
	empty := NewMemoryDevices()
	session := newTestSession(empty)
	if err := session.Acquire(ctx, ""); err == nil {
		t.Fatal("Expected acquire to fail without devices")
	}
	if err := session.SwitchDevice(ctx); err != nil {
		t.Fatalf("SwitchDevice failed: %v", err)
	}
	if n := len(empty.Requests()); n != 1 {
		t.Errorf("Expected switch to be a no-op, got %d requests", n)
	}

	// 1台のみ
	single := unlabeledDevices("a")
	session = newTestSession(single)
	if err := session.Acquire(ctx, ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if session.State().CanSwitch {
		t.Error("Expected switching to be disabled with 1 device")
	}
	if err := session.SwitchDevice(ctx); err != nil {
		t.Fatalf("SwitchDevice failed: %v", err)
	}
	if n := len(single.Requests()); n != 1 {
		t.Errorf("Expected switch to be a no-op, got %d requests", n)
	}
	if session.State().ActiveIndex != 0 {
		t.Errorf("Expected index to stay 0, got %d", session.State().ActiveIndex)
	}
}

func TestSession_SwitchDeviceCycles(t *testing.T) {
	ctx := context.Background()
	devices := unlabeledDevices("a", "b", "c")
	session := newTestSession(devices)

	if err := session.Acquire(ctx, ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if idx := session.State().ActiveIndex; idx != 0 {
		t.Fatalf("Expected initial index 0, got %d", idx)
	}

	want := []int{1, 2, 0}
	for i, w := range want {
		if err := session.SwitchDevice(ctx); err != nil {
			t.Fatalf("switch %d failed: %v", i, err)
		}
		if got := session.State().ActiveIndex; got != w {
			t.Errorf("switch %d: expected index %d, got %d", i, w, got)
		}
	}

	// 切り替えは明示的なデバイスIDで要求される
	reqs := devices.Requests()
	if reqs[len(reqs)-1].DeviceID != "a" {
		t.Errorf("Expected last request for device a, got %q", reqs[len(reqs)-1].DeviceID)
	}
}

func TestSession_SwitchDeviceInfersFacing(t *testing.T) {
	ctx := context.Background()
	session := newTestSession(DefaultMemoryDevices())

	if err := session.Acquire(ctx, ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := session.SwitchDevice(ctx); err != nil {
		t.Fatalf("SwitchDevice failed: %v", err)
	}

	state := session.State()
	if state.Facing != FacingFront {
		t.Errorf("Expected facing front from label, got %s", state.Facing)
	}
	if state.ActiveIndex != 1 {
		t.Errorf("Expected index 1, got %d", state.ActiveIndex)
	}
}

func TestSession_HiddenDeviceID(t *testing.T) {
	ctx := context.Background()
	devices := unlabeledDevices("a", "b")
	devices.SetHideDeviceIDs(true)
	session := newTestSession(devices)

	if err := session.Acquire(ctx, ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if idx := session.State().ActiveIndex; idx != -1 {
		t.Errorf("Expected index -1 when negotiated id is hidden, got %d", idx)
	}

	// 不明な状態からの切り替えは先頭へ
	if err := session.SwitchDevice(ctx); err != nil {
		t.Fatalf("SwitchDevice failed: %v", err)
	}
	reqs := devices.Requests()
	if got := reqs[len(reqs)-1].DeviceID; got != "a" {
		t.Errorf("Expected switch to request device a, got %q", got)
	}
}

func TestSession_EnumerateFailureKeepsStream(t *testing.T) {
	ctx := context.Background()
	devices := DefaultMemoryDevices()
	session := newTestSession(devices)

	if err := session.Acquire(ctx, ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	devices.SetEnumerateError(errors.New("enumeration unavailable"))
	if err := session.Acquire(ctx, ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	state := session.State()
	if !state.Live {
		t.Error("Expected stream to stay live")
	}
	if len(state.Devices) != 2 {
		t.Errorf("Expected previous device list to be kept, got %d", len(state.Devices))
	}
}

func TestSession_CaptureWithoutStream(t *testing.T) {
	session := newTestSession(DefaultMemoryDevices())

	result, err := session.Capture(context.Background())
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Expected ErrNoActiveSession, got %v", err)
	}
	if result != nil {
		t.Error("Expected no capture result")
	}
	if session.Live() {
		t.Error("Expected state to be unchanged")
	}
}

func TestSession_Capture(t *testing.T) {
	ctx := context.Background()
	devices := NewMemoryDevices(MemoryDevice{
		Descriptor: DeviceDescriptor{ID: "vga", Label: "VGA Camera"},
		Width:      640,
		Height:     480,
	})
	session := newTestSession(devices)

	if err := session.Acquire(ctx, ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	result, err := session.Capture(ctx)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if result.Width != 640 || result.Height != 480 {
		t.Errorf("Expected 640x480, got %dx%d", result.Width, result.Height)
	}
	if len(result.Data) == 0 {
		t.Fatal("Expected non-empty JPEG buffer")
	}
	if result.MIMEType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", result.MIMEType)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("Captured data is not a JPEG: %v", err)
	}
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("Expected encoded 640x480, got %dx%d", cfg.Width, cfg.Height)
	}

	// キャプチャ後もストリームはそのまま
	if !session.Live() || devices.LiveTracks() != 1 {
		t.Error("Expected stream to stay live after capture")
	}
}

func TestSession_CaptureFallsBackToIntrinsicSize(t *testing.T) {
	ctx := context.Background()
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	img.Set(0, 0, color.White)
	session := newTestSession(&staticDevices{track: &staticTrack{img: img}})

	if err := session.Acquire(ctx, ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if idx := session.State().ActiveIndex; idx != -1 {
		t.Errorf("Expected index -1 without track settings, got %d", idx)
	}

	result, err := session.Capture(ctx)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if result.Width != 200 || result.Height != 100 {
		t.Errorf("Expected 200x100, got %dx%d", result.Width, result.Height)
	}
}

func TestSession_AcquireTimeout(t *testing.T) {
	devices := &blockingDevices{}
	session := newTestSession(devices, WithAcquireTimeout(20*time.Millisecond))

	err := session.Acquire(context.Background(), "")

	var aerr *AcquireError
	if !errors.As(err, &aerr) || aerr.Kind != ErrKindAbort {
		t.Fatalf("Expected AbortError, got %v", err)
	}
	// タイムアウトではフォールバックしない
	if devices.calls != 1 {
		t.Errorf("Expected 1 call, got %d", devices.calls)
	}
}

func TestSession_Close(t *testing.T) {
	ctx := context.Background()
	devices := DefaultMemoryDevices()
	session := newTestSession(devices)

	if err := session.Acquire(ctx, ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := session.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if session.Live() {
		t.Error("Expected no live stream after close")
	}
	if devices.LiveTracks() != 0 {
		t.Errorf("Expected tracks to be stopped, got %d", devices.LiveTracks())
	}
}

func TestSession_ConcurrentOperations(t *testing.T) {
	ctx := context.Background()
	devices := unlabeledDevices("a", "b", "c")
	session := newTestSession(devices)

	if err := session.Acquire(ctx, ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = session.Acquire(ctx, "")
		}()
		go func() {
			defer wg.Done()
			_ = session.SwitchDevice(ctx)
		}()
		go func() {
			defer wg.Done()
			_, _ = session.Capture(ctx)
		}()
	}
	wg.Wait()

	if got := devices.MaxLiveAtRequest(); got != 0 {
		t.Errorf("Expected serialized acquisitions, got %d live tracks at request time", got)
	}
	if live := devices.LiveTracks(); live != 1 {
		t.Errorf("Expected exactly 1 live track, got %d", live)
	}
}

func TestSession_LockHonoursContext(t *testing.T) {
	session := newTestSession(DefaultMemoryDevices())

	// スロットを占有しておく
	session.slot <- struct{}{}
	defer session.unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := session.Acquire(ctx, ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded while waiting for slot, got %v", err)
	}
}

// silentTrack はフレームを返さずに失敗するトラック
type silentTrack struct{}

func (silentTrack) ID() string                      { return "silent" }
func (silentTrack) Settings() (TrackSettings, bool) { return TrackSettings{}, false }
func (silentTrack) Stop()                           {}
func (silentTrack) ReadFrame(_ context.Context) (image.Image, error) {
	return nil, errors.New("device or resource busy")
}

type silentDevices struct{}

func (silentDevices) GetUserMedia(_ context.Context, _ Constraints) (Stream, error) {
	return &memoryStream{tracks: []Track{silentTrack{}}}, nil
}

func (silentDevices) EnumerateDevices(_ context.Context) ([]DeviceDescriptor, error) {
	return nil, nil
}

func TestSession_PlayFailureIsNotReadable(t *testing.T) {
	session := newTestSession(silentDevices{})

	err := session.Acquire(context.Background(), "")

	var aerr *AcquireError
	if !errors.As(err, &aerr) || aerr.Kind != ErrKindNotReadable {
		t.Fatalf("Expected NotReadableError, got %v", err)
	}
	if session.Live() {
		t.Error("Expected no live stream")
	}
}
