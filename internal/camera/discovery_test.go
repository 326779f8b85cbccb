package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestV4L2Devices_EnumerateDevices(t *testing.T) {
	ctx := context.Background()
	devices := NewV4L2Devices(quietLogger())

	list, err := devices.EnumerateDevices(ctx)
	if err != nil {
		t.Fatalf("EnumerateDevices failed: %v", err)
	}

	// デバイスが見つからない場合もあるため、エラーがないことを確認
	t.Logf("Found %d video devices", len(list))
	for _, d := range list {
		t.Logf("Device: %s (%s)", d.ID, d.Label)
	}
}

func TestV4L2Devices_IsDeviceAvailable(t *testing.T) {
	ctx := context.Background()
	devices := NewV4L2Devices(quietLogger())

	// 存在しないデバイスをテスト
	if devices.IsDeviceAvailable(ctx, "/dev/video999") {
		t.Error("Expected non-existent device to be unavailable")
	}

	// 無効なパスをテスト
	if devices.IsDeviceAvailable(ctx, "/invalid/path") {
		t.Error("Expected invalid path to be unavailable")
	}
}

func TestV4L2Devices_GetUserMediaWithoutDevices(t *testing.T) {
	devices := NewV4L2Devices(quietLogger())
	devices.pattern = filepath.Join(t.TempDir(), "video*")

	_, err := devices.GetUserMedia(context.Background(), Constraints{Facing: FacingBack})

	var aerr *AcquireError
	if !errors.As(err, &aerr) || aerr.Kind != ErrKindNotFound {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

func TestV4L2Devices_GetUserMediaUnknownDevice(t *testing.T) {
	devices := NewV4L2Devices(quietLogger())

	_, err := devices.GetUserMedia(context.Background(), Constraints{DeviceID: "/dev/video999"})
	if !IsOverConstrained(err) {
		t.Fatalf("Expected over-constrained error, got %v", err)
	}
}

func TestDeviceOpenError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{fs.ErrPermission, ErrKindPermission},
		{fs.ErrNotExist, ErrKindNotFound},
		{errors.New("device or resource busy"), ErrKindNotReadable},
	}

	for _, tt := range tests {
		got := deviceOpenError(tt.err, Constraints{})
		if got.Kind != tt.want {
			t.Errorf("deviceOpenError(%v) = %s, want %s", tt.err, got.Kind, tt.want)
		}
	}
}

func TestParseCardType(t *testing.T) {
	output := `Driver Info:
	Driver name      : uvcvideo
	Card type        : HD Pro Webcam C920
	Bus info         : usb-0000:00:14.0-1
`
	if got := parseCardType(output); got != "HD Pro Webcam C920" {
		t.Errorf("Expected card type, got %q", got)
	}

	if got := parseCardType("Driver name : uvcvideo"); got != "" {
		t.Errorf("Expected empty name, got %q", got)
	}
}

func TestExtractDeviceNumber(t *testing.T) {
	tests := []struct {
		device string
		want   int
	}{
		{"/dev/video0", 0},
		{"/dev/video12", 12},
		{"/dev/null", 0},
	}

	for _, tt := range tests {
		if got := extractDeviceNumber(tt.device); got != tt.want {
			t.Errorf("extractDeviceNumber(%s) = %d, want %d", tt.device, got, tt.want)
		}
	}
}

func TestSplitJPEG(t *testing.T) {
	frame1 := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	frame2 := []byte{0xFF, 0xD8, 0x03, 0xFF, 0xD9}

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x11}) // 先頭のゴミ
	stream.Write(frame1)
	stream.Write([]byte{0x22})
	stream.Write(frame2)
	stream.Write([]byte{0xFF, 0xD8, 0x04}) // 途中で切れたフレーム

	scanner := bufio.NewScanner(&stream)
	scanner.Split(splitJPEG)

	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], frame1) || !bytes.Equal(frames[1], frame2) {
		t.Errorf("Unexpected frames: %x", frames)
	}
}
