package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/google/uuid"
)

// ErrTrackEnded は停止済みトラックからフレームを読もうとした場合のエラー
var ErrTrackEnded = errors.New("トラックは停止しています")

// MemoryDevice はMemoryDevicesが提供する仮想デバイス
type MemoryDevice struct {
	Descriptor DeviceDescriptor
	Facing     Facing // 空の場合は向き不明（どの向きの要求にも応じる）
	Width      int
	Height     int
}

// MemoryDevices は合成フレームを返すインメモリのMediaDevices実装
//
// テストやデモ用。失敗の注入とライブトラック数の計測ができる。
type MemoryDevices struct {
	mu       sync.Mutex
	devices  []MemoryDevice
	failures []error
	enumErr  error
	hideIDs  bool

	live             int
	maxLiveAtRequest int
	requests         []Constraints
}

// NewMemoryDevices は新しいMemoryDevicesを作成する
func NewMemoryDevices(devices ...MemoryDevice) *MemoryDevices {
	return &MemoryDevices{devices: devices}
}

// DefaultMemoryDevices は前面・背面の2台構成のMemoryDevicesを作成する
func DefaultMemoryDevices() *MemoryDevices {
	return NewMemoryDevices(
		MemoryDevice{
			Descriptor: DeviceDescriptor{ID: "memory-back", Label: "Memory Camera (back)"},
			Facing:     FacingBack,
			Width:      1280,
			Height:     720,
		},
		MemoryDevice{
			Descriptor: DeviceDescriptor{ID: "memory-front", Label: "Memory Camera (front)"},
			Facing:     FacingFront,
			Width:      640,
			Height:     480,
		},
	)
}

// FailNext は次回以降のGetUserMediaで順に返すエラーを積む
func (m *MemoryDevices) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// SetEnumerateError はEnumerateDevicesが返すエラーを設定する
func (m *MemoryDevices) SetEnumerateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enumErr = err
}

// SetHideDeviceIDs はトラック設定でデバイスIDを公開しないようにする
func (m *MemoryDevices) SetHideDeviceIDs(hide bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hideIDs = hide
}

// AddDevice はデバイスを追加する
func (m *MemoryDevices) AddDevice(d MemoryDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.devices {
		if existing.Descriptor.ID == d.Descriptor.ID {
			return
		}
	}
	m.devices = append(m.devices, d)
}

// RemoveDevice はデバイスを削除する
func (m *MemoryDevices) RemoveDevice(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.devices {
		if d.Descriptor.ID == id {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			return
		}
	}
}

// LiveTracks は停止されていないトラック数を返す
func (m *MemoryDevices) LiveTracks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// MaxLiveAtRequest はGetUserMedia呼び出し時点のライブトラック数の最大値を返す
func (m *MemoryDevices) MaxLiveAtRequest() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxLiveAtRequest
}

// Requests はこれまでの取得要求を返す
func (m *MemoryDevices) Requests() []Constraints {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Constraints, len(m.requests))
	copy(out, m.requests)
	return out
}

// GetUserMedia は制約に合う仮想デバイスのストリームを返す
func (m *MemoryDevices) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, c)
	if m.live > m.maxLiveAtRequest {
		m.maxLiveAtRequest = m.live
	}

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return nil, err
	}

	device, err := m.selectDevice(c)
	if err != nil {
		return nil, err
	}

	settings := TrackSettings{
		DeviceID: device.Descriptor.ID,
		Width:    device.Width,
		Height:   device.Height,
		Facing:   device.Facing,
	}
	if m.hideIDs {
		settings.DeviceID = ""
	}

	track := &memoryTrack{
		id:       uuid.New().String(),
		settings: settings,
		owner:    m,
	}
	m.live++

	return &memoryStream{tracks: []Track{track}}, nil
}

// selectDevice は制約に合うデバイスを選ぶ（ロック済み前提）
func (m *MemoryDevices) selectDevice(c Constraints) (MemoryDevice, error) {
	if len(m.devices) == 0 {
		return MemoryDevice{}, &AcquireError{Kind: ErrKindNotFound, Constraints: c, Err: errors.New("映像入力デバイスがありません")}
	}

	if c.Exact() {
		for _, d := range m.devices {
			if d.Descriptor.ID == c.DeviceID {
				return d, nil
			}
		}
		return MemoryDevice{}, &AcquireError{Kind: ErrKindOverConstrained, Constraints: c, Err: fmt.Errorf("deviceId %s", c.DeviceID)}
	}

	for _, d := range m.devices {
		if d.Facing == "" || d.Facing == c.Facing {
			return d, nil
		}
	}
	return MemoryDevice{}, &AcquireError{Kind: ErrKindOverConstrained, Constraints: c, Err: fmt.Errorf("facingMode %s", c.Facing)}
}

// EnumerateDevices は仮想デバイスの一覧を返す
func (m *MemoryDevices) EnumerateDevices(ctx context.Context) ([]DeviceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enumErr != nil {
		return nil, m.enumErr
	}

	out := make([]DeviceDescriptor, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d.Descriptor)
	}
	return out, nil
}

func (m *MemoryDevices) trackStopped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live--
}

type memoryStream struct {
	tracks []Track
}

func (s *memoryStream) Tracks() []Track {
	return s.tracks
}

// memoryTrack は合成フレームを返すトラック
type memoryTrack struct {
	id       string
	settings TrackSettings
	owner    *MemoryDevices

	mu      sync.Mutex
	stopped bool
	frames  int
}

func (t *memoryTrack) ID() string {
	return t.id
}

func (t *memoryTrack) Settings() (TrackSettings, bool) {
	return t.settings, true
}

func (t *memoryTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()

	t.owner.trackStopped()
}

// ReadFrame はグラデーションの合成フレームを返す
func (t *memoryTrack) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil, ErrTrackEnded
	}
	t.frames++

	w, h := t.settings.Width, t.settings.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	shade := uint8(t.frames * 16)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: shade,
				A: 0xff,
			})
		}
	}
	return img, nil
}
