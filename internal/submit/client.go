// Package submit キャプチャ画像をスキャンエンドポイントへ送信する
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cardscan/internal/camera"
)

// DefaultTimeout はリクエスト全体のタイムアウト
const DefaultTimeout = 60 * time.Second

// unknownDetail はエラー応答に詳細がない場合の文言
const unknownDetail = "unknown error"

// StatusError はエンドポイントが2xx以外を返した場合のエラー
type StatusError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("スキャンに失敗しました: HTTP %d (%s): %s", e.StatusCode, e.Status, e.Detail)
}

// Request は送信するJSON本体
type Request struct {
	Image string `json:"image"`
}

// Client はスキャンエンドポイントのクライアント
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient は新しいClientを作成する
func NewClient(endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     logger,
	}
}

// Submit はキャプチャ画像をdata URIとして送信し、応答のJSONをそのまま返す
//
// 再試行はしない。
func (c *Client) Submit(ctx context.Context, capture *camera.CaptureResult) (json.RawMessage, error) {
	if capture == nil || len(capture.Data) == 0 {
		return nil, errors.New("送信する画像がありません")
	}

	body, err := json.Marshal(Request{Image: capture.DataURI()})
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	c.logger().Info("submit: 画像を送信します", "endpoint", c.Endpoint, "bytes", len(capture.Data))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("応答の読み取りに失敗: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Detail:     errorDetail(respBody),
		}
		c.logger().Warn("submit: エンドポイントがエラーを返しました", "status", resp.StatusCode, "detail", serr.Detail)
		return nil, serr
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("応答がJSONではありません: %q", truncate(respBody, 200))
	}
	return json.RawMessage(respBody), nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// errorDetail はエラー応答の detail フィールドを取り出す
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Detail == "" {
		return unknownDetail
	}
	return payload.Detail
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Echo は応答のJSONを整形して出力する
func Echo(w io.Writer, body json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return fmt.Errorf("JSONの整形に失敗: %w", err)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
