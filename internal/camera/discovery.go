package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	deviceNumberPattern = regexp.MustCompile(`video(\d+)`)
	devicePathPattern   = regexp.MustCompile(`^/dev/video\d+$`)
)

// V4L2Devices はLinuxのV4L2デバイスを使うMediaDevices実装
//
// デバイスの列挙は /dev/video* と v4l2-ctl で行い、ストリームは ffmpeg の
// MJPEGパイプから取得する。
type V4L2Devices struct {
	pattern string // 列挙に使うglobパターン
	logger  *slog.Logger

	// 外部コマンドの実行（テストで差し替える）
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewV4L2Devices は新しいV4L2Devicesを作成する
func NewV4L2Devices(logger *slog.Logger) *V4L2Devices {
	if logger == nil {
		logger = slog.Default()
	}
	return &V4L2Devices{
		pattern: "/dev/video*",
		logger:  logger,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// EnumerateDevices はカラー映像を出力する主デバイスを列挙する
func (d *V4L2Devices) EnumerateDevices(ctx context.Context) ([]DeviceDescriptor, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []DeviceDescriptor
	seen := make(map[string]bool)
	for _, path := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if !d.IsDeviceAvailable(ctx, path) || !d.hasColorFormat(ctx, path) {
			continue
		}

		label := d.deviceName(ctx, path)

		// 同じ物理カメラの複数ノードは最も小さい番号だけを残す
		if seen[label] {
			continue
		}
		seen[label] = true

		devices = append(devices, DeviceDescriptor{ID: path, Label: label})
	}

	return devices, nil
}

// IsDeviceAvailable は指定されたデバイスが開けるかチェックする
func (d *V4L2Devices) IsDeviceAvailable(_ context.Context, device string) bool {
	return openDevice(device) == nil
}

// openDevice はデバイスファイルを開いて閉じる
func openDevice(device string) error {
	if !devicePathPattern.MatchString(device) {
		return fmt.Errorf("V4L2デバイスではありません: %s", device)
	}
	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	return file.Close()
}

// deviceName はv4l2-ctlで実際のカメラ名を取得する
func (d *V4L2Devices) deviceName(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := d.run(ctx, "v4l2-ctl", "--device", device, "--info")
	if err == nil {
		if name := parseCardType(string(output)); name != "" {
			return name
		}
	}

	// フォールバック: デバイス番号から生成
	return fmt.Sprintf("Camera %d", extractDeviceNumber(device))
}

// hasColorFormat はデバイスがカラーフォーマットをサポートしているかを返す
func (d *V4L2Devices) hasColorFormat(ctx context.Context, device string) bool {
	output, err := d.run(ctx, "v4l2-ctl", "--device", device, "--list-formats-ext")
	if err != nil {
		return false
	}
	out := string(output)
	return strings.Contains(out, "YUYV") || strings.Contains(out, "MJPG")
}

// GetUserMedia は制約に合うデバイスでffmpegのストリームを開始する
func (d *V4L2Devices) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	device, err := d.selectDevice(ctx, c)
	if err != nil {
		return nil, err
	}

	if err := openDevice(device.ID); err != nil {
		return nil, deviceOpenError(err, c)
	}

	facing, _ := InferFacing(device.Label)
	width, height := c.Width, c.Height
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}

	track := startFFmpegTrack(device.ID, width, height, facing, d.logger)
	return &ffmpegStream{track: track}, nil
}

// selectDevice は制約に合うデバイスを選ぶ
//
// 向きが不明なデバイスはどの向きの要求にも応じる。全デバイスが反対向きを
// 名乗っている場合のみ制約過多とする。
func (d *V4L2Devices) selectDevice(ctx context.Context, c Constraints) (DeviceDescriptor, error) {
	if c.Exact() {
		if _, err := os.Stat(c.DeviceID); err != nil {
			return DeviceDescriptor{}, &AcquireError{Kind: ErrKindOverConstrained, Constraints: c, Err: err}
		}
		return DeviceDescriptor{ID: c.DeviceID, Label: d.deviceName(ctx, c.DeviceID)}, nil
	}

	devices, err := d.EnumerateDevices(ctx)
	if err != nil {
		return DeviceDescriptor{}, err
	}
	if len(devices) == 0 {
		return DeviceDescriptor{}, &AcquireError{Kind: ErrKindNotFound, Constraints: c, Err: errors.New("映像入力デバイスがありません")}
	}

	var fallback *DeviceDescriptor
	for i, dev := range devices {
		facing, ok := InferFacing(dev.Label)
		if ok && facing == c.Facing {
			return dev, nil
		}
		if !ok && fallback == nil {
			fallback = &devices[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return DeviceDescriptor{}, &AcquireError{Kind: ErrKindOverConstrained, Constraints: c, Err: fmt.Errorf("facingMode %s", c.Facing)}
}

// deviceOpenError はデバイスを開く際のエラーを分類する
func deviceOpenError(err error, c Constraints) *AcquireError {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return &AcquireError{Kind: ErrKindPermission, Constraints: c, Err: err}
	case errors.Is(err, fs.ErrNotExist):
		return &AcquireError{Kind: ErrKindNotFound, Constraints: c, Err: err}
	default:
		return &AcquireError{Kind: ErrKindNotReadable, Constraints: c, Err: err}
	}
}

// parseCardType はv4l2-ctl --info の出力から "Card type" を取り出す
func parseCardType(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Card type") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberPattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return num
}
