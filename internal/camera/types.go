package camera

import (
	"context"
	"image"
)

// Facing はカメラの向きの希望（facingMode）を表す
type Facing string

const (
	FacingFront Facing = "user"        // 前面カメラ
	FacingBack  Facing = "environment" // 背面カメラ
)

// Opposite は反対側の向きを返す
func (f Facing) Opposite() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// Valid は既知の向きかどうかを返す
func (f Facing) Valid() bool {
	return f == FacingFront || f == FacingBack
}

// DeviceDescriptor は1台の映像入力デバイスを表す
type DeviceDescriptor struct {
	ID    string `json:"id"`    // 安定した識別子
	Label string `json:"label"` // 表示名
}

// Constraints はストリーム取得時の制約
//
// DeviceIDが空でない場合はそのデバイスを厳密に要求し、Facingは無視される。
type Constraints struct {
	Facing   Facing
	DeviceID string
	Width    int // 希望する幅（0は指定なし）
	Height   int // 希望する高さ（0は指定なし）
}

// Exact はデバイスIDが明示されているかを返す
func (c Constraints) Exact() bool {
	return c.DeviceID != ""
}

// TrackSettings はトラックのネゴシエーション済み設定
type TrackSettings struct {
	DeviceID string // 空の場合、バックエンドがIDを公開していない
	Width    int
	Height   int
	Facing   Facing
}

// Track はストリームに含まれる1本のライブトラック
type Track interface {
	ID() string

	// Settings はネゴシエーション済みの設定を返す。取得できない場合はfalse
	Settings() (TrackSettings, bool)

	// Stop はトラックを停止し、ハードウェアを解放する。複数回呼んでもよい
	Stop()
}

// FrameReader は現在のフレームを読み出せるトラックが実装する
type FrameReader interface {
	ReadFrame(ctx context.Context) (image.Image, error)
}

// Stream はGetUserMediaで得られるライブストリーム
type Stream interface {
	Tracks() []Track
}

// MediaDevices はデバイス列挙とストリーム取得を提供するバックエンド
type MediaDevices interface {
	// GetUserMedia は制約を満たすストリームを取得する
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)

	// EnumerateDevices は利用可能な映像入力デバイスを列挙する
	EnumerateDevices(ctx context.Context) ([]DeviceDescriptor, error)
}

// Surface はライブ映像を表示する面（video要素に相当）
type Surface interface {
	// Attach はストリームを面に結び付ける
	Attach(s Stream) error

	// Play は再生を開始する
	Play(ctx context.Context) error

	// Detach は結び付けを解除する
	Detach()

	// Frame は現在表示中のフレームを返す
	Frame(ctx context.Context) (image.Image, error)

	// IntrinsicSize は映像本来のサイズを返す。不明な場合は0
	IntrinsicSize() (width, height int)
}

// SessionState はセッション状態のスナップショット
type SessionState struct {
	Facing      Facing             `json:"facing"`
	Devices     []DeviceDescriptor `json:"devices"`
	ActiveIndex int                `json:"active_index"` // -1 は不明
	Live        bool               `json:"live"`
	CanSwitch   bool               `json:"can_switch"`
}

// stopTracks はストリームの全トラックを停止する
func stopTracks(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// primarySettings は最初に設定を返すトラックの設定を返す
func primarySettings(s Stream) (TrackSettings, bool) {
	if s == nil {
		return TrackSettings{}, false
	}
	for _, t := range s.Tracks() {
		if settings, ok := t.Settings(); ok {
			return settings, true
		}
	}
	return TrackSettings{}, false
}
