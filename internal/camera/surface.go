package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
)

// ErrSurfaceDetached は面にストリームが結び付いていない場合のエラー
var ErrSurfaceDetached = errors.New("映像面にストリームが結び付いていません")

// TrackSurface はFrameReaderを実装するトラックからフレームを読み出すSurface実装
type TrackSurface struct {
	mu      sync.RWMutex
	stream  Stream
	reader  FrameReader
	playing bool

	// 最後に描画したフレームのサイズ
	width  int
	height int
}

// NewTrackSurface は新しいTrackSurfaceを作成する
func NewTrackSurface() *TrackSurface {
	return &TrackSurface{}
}

// Attach はストリームを結び付ける
func (s *TrackSurface) Attach(stream Stream) error {
	var reader FrameReader
	for _, t := range stream.Tracks() {
		if r, ok := t.(FrameReader); ok {
			reader = r
			break
		}
	}
	if reader == nil {
		return fmt.Errorf("フレームを読み出せるトラックがありません")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = stream
	s.reader = reader
	s.playing = false
	s.width, s.height = 0, 0
	return nil
}

// Play は最初のフレームが届くまで待ち、再生状態にする
func (s *TrackSurface) Play(ctx context.Context) error {
	s.mu.RLock()
	reader := s.reader
	s.mu.RUnlock()

	if reader == nil {
		return ErrSurfaceDetached
	}

	frame, err := reader.ReadFrame(ctx)
	if err != nil {
		return fmt.Errorf("再生の開始に失敗: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = true
	s.remember(frame)
	return nil
}

// Detach は結び付けを解除する
func (s *TrackSurface) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = nil
	s.reader = nil
	s.playing = false
	s.width, s.height = 0, 0
}

// Frame は現在のフレームを返す
func (s *TrackSurface) Frame(ctx context.Context) (image.Image, error) {
	s.mu.RLock()
	reader, playing := s.reader, s.playing
	s.mu.RUnlock()

	if reader == nil || !playing {
		return nil, ErrSurfaceDetached
	}

	frame, err := reader.ReadFrame(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.remember(frame)
	s.mu.Unlock()
	return frame, nil
}

// IntrinsicSize は直近のフレームのサイズを返す
func (s *TrackSurface) IntrinsicSize() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// remember はフレームサイズを記録する（ロック済み前提）
func (s *TrackSurface) remember(frame image.Image) {
	b := frame.Bounds()
	s.width, s.height = b.Dx(), b.Dy()
}
