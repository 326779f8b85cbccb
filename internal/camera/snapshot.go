package camera

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// JPEGQuality はキャプチャ画像のJPEG品質（0.9相当）
const JPEGQuality = 90

// CaptureResult は1枚の静止画キャプチャ
type CaptureResult struct {
	Data     []byte // エンコード済み画像
	Width    int
	Height   int
	MIMEType string
}

// DataURI は画像をdata URI文字列として返す
func (r *CaptureResult) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", r.MIMEType, base64.StdEncoding.EncodeToString(r.Data))
}

// renderFrame はフレームを width x height のオフスクリーンビットマップに描画する
// 反転などの変換は行わない
func renderFrame(frame image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	src := frame.Bounds()
	if src.Dx() == width && src.Dy() == height {
		draw.Draw(dst, dst.Bounds(), frame, src.Min, draw.Src)
		return dst
	}
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, src, xdraw.Src, nil)
	return dst
}

// encodeSnapshot はフレームをJPEGにエンコードしてCaptureResultを作る
func encodeSnapshot(frame image.Image, width, height int) (*CaptureResult, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("無効なキャプチャサイズ: %dx%d", width, height)
	}

	bitmap := renderFrame(frame, width, height)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, bitmap, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}

	return &CaptureResult{
		Data:     buf.Bytes(),
		Width:    width,
		Height:   height,
		MIMEType: "image/jpeg",
	}, nil
}
