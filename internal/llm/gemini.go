package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultGeminiBaseURL はGemini APIのエンドポイント
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultGeminiModel は既定のモデル
	DefaultGeminiModel = "gemini-2.0-flash"
)

// Gemini はGoogle GeminiのREST APIを使うExtractor
type Gemini struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewGemini は新しいGeminiを作成する
func NewGemini(apiKey, model, baseURL string, timeout time.Duration, logger *slog.Logger) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     logger,
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason        string `json:"blockReason"`
		BlockReasonMessage string `json:"blockReasonMessage"`
	} `json:"promptFeedback"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Extract は画像をGeminiに送り、カード項目のJSONを取り出す
func (g *Gemini) Extract(ctx context.Context, image []byte, mimeType string) (*Extraction, error) {
	if g.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var reqBody geminiRequest
	reqBody.Contents = []geminiContent{{
		Role: "user",
		Parts: []geminiPart{
			{Text: extractionPrompt},
			{InlineData: &geminiInlineData{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(image),
			}},
		},
	}}
	reqBody.GenerationConfig.ResponseMimeType = "application/json"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.BaseURL, url.PathEscape(g.Model), url.QueryEscape(g.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	g.Logger.Info("llm: Geminiにリクエストを送信します", "model", g.Model, "bytes", len(image))

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Gemini APIの呼び出しに失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("応答の読み取りに失敗: %w", err)
	}

	var gr geminiResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, fmt.Errorf("Gemini APIの応答を解析できません (HTTP %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if gr.Error != nil && gr.Error.Message != "" {
			msg = gr.Error.Message
		}
		return nil, fmt.Errorf("Gemini APIがエラーを返しました (HTTP %d): %s", resp.StatusCode, msg)
	}

	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		reason := gr.PromptFeedback.BlockReasonMessage
		if reason == "" {
			reason = gr.PromptFeedback.BlockReason
		}
		g.Logger.Error("llm: コンテンツがブロックされました", "reason", reason)
		return nil, fmt.Errorf("%w: %s", ErrBlocked, reason)
	}

	text := responseText(&gr)
	if text == "" {
		return nil, &MalformedResponseError{Err: fmt.Errorf("応答にテキストがありません")}
	}

	g.Logger.Debug("llm: 応答を受信しました", "raw", truncate(text, 500))

	extraction, err := parseExtraction(text)
	if err != nil {
		g.Logger.Error("llm: 応答のJSON解析に失敗しました", "error", err, "raw", text)
		return nil, err
	}
	return extraction, nil
}

func responseText(gr *geminiResponse) string {
	var b strings.Builder
	for _, c := range gr.Candidates {
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
