package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/google/uuid"
)

var (
	jpegSOI = []byte{0xFF, 0xD8} // JPEGの開始マーカー
	jpegEOI = []byte{0xFF, 0xD9} // JPEGの終了マーカー
)

// maxFrameSize は1フレームの最大サイズ
const maxFrameSize = 16 << 20

// ffmpegStream は1本のffmpegトラックからなるストリーム
type ffmpegStream struct {
	track *ffmpegTrack
}

func (s *ffmpegStream) Tracks() []Track {
	return []Track{s.track}
}

// ffmpegTrack はffmpegのMJPEGパイプから最新フレームを保持するトラック
type ffmpegTrack struct {
	id     string
	device string
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	ready     chan struct{} // 最初のフレーム到着または終了でクローズ
	readyOnce sync.Once

	mu       sync.RWMutex
	settings TrackSettings
	latest   []byte
	err      error
}

// startFFmpegTrack はffmpegを起動してトラックを返す
func startFFmpegTrack(device string, width, height int, facing Facing, logger *slog.Logger) *ffmpegTrack {
	ctx, cancel := context.WithCancel(context.Background())

	t := &ffmpegTrack{
		id:     uuid.New().String(),
		device: device,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
		settings: TrackSettings{
			DeviceID: device,
			Width:    width,
			Height:   height,
			Facing:   facing,
		},
	}

	go t.run(ctx, width, height)
	return t
}

// run はffmpegを実行し、出力をJPEGフレームに分割する
func (t *ffmpegTrack) run(ctx context.Context, width, height int) {
	defer close(t.done)

	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-i", t.device,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.fail(fmt.Errorf("stdoutパイプの作成に失敗: %w", err))
		return
	}

	if err := cmd.Start(); err != nil {
		t.fail(fmt.Errorf("ffmpegの起動に失敗: %w", err))
		return
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1<<20), maxFrameSize)
	scanner.Split(splitJPEG)

	for scanner.Scan() {
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())
		t.setFrame(frame)
	}

	scanErr := scanner.Err()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		t.fail(ErrTrackEnded)
		return
	}
	if scanErr == nil {
		scanErr = waitErr
	}
	t.logger.Error("camera: ffmpegが終了しました", "device", t.device, "error", scanErr, "stderr", stderr.String())
	t.fail(fmt.Errorf("ffmpegが終了しました: %v (stderr: %s)", scanErr, stderr.String()))
}

// setFrame は最新フレームを更新する
func (t *ffmpegTrack) setFrame(frame []byte) {
	t.mu.Lock()
	first := t.latest == nil
	t.latest = frame
	if first {
		// 最初のフレームで実際の解像度を確定する
		if cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame)); err == nil {
			t.settings.Width = cfg.Width
			t.settings.Height = cfg.Height
		}
	}
	t.mu.Unlock()

	if first {
		t.readyOnce.Do(func() { close(t.ready) })
	}
}

// fail はトラックを終了状態にする
func (t *ffmpegTrack) fail(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	t.readyOnce.Do(func() { close(t.ready) })
}

func (t *ffmpegTrack) ID() string {
	return t.id
}

func (t *ffmpegTrack) Settings() (TrackSettings, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.settings, true
}

// Stop はffmpegを停止し、終了を待つ
func (t *ffmpegTrack) Stop() {
	t.cancel()
	<-t.done
}

// ReadFrame は最新フレームをデコードして返す
func (t *ffmpegTrack) ReadFrame(ctx context.Context) (image.Image, error) {
	select {
	case <-t.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	t.mu.RLock()
	frame, err := t.latest, t.err
	t.mu.RUnlock()

	if err != nil {
		return nil, err
	}

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
	}
	return img, nil
}

// splitJPEG はMJPEGのバイト列をJPEGフレームごとに分割するbufio.SplitFunc
func splitJPEG(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// 末尾の0xFFはマーカーの先頭かもしれないので残す
		if len(data) > 1 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// 開始マーカーより前の不要なデータを捨てて続きを待つ
		return start, nil, nil
	}

	end += start + len(jpegSOI) + len(jpegEOI)
	return end, data[start:end], nil
}
