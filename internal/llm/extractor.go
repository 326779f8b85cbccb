// Package llm カード画像から項目を抽出するLLMクライアント
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingAPIKey はAPIキーが設定されていない場合のエラー
var ErrMissingAPIKey = errors.New("APIキーが設定されていません")

// ErrBlocked はプロンプトが安全フィルタで拒否された場合のエラー
var ErrBlocked = errors.New("コンテンツがAPIによりブロックされました")

// MalformedResponseError はLLMの応答がJSONとして解釈できない場合のエラー
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("LLMの応答をJSONとして解析できません: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// Extraction は抽出結果
type Extraction struct {
	// JSON はコードフェンスを除いた応答本体
	JSON json.RawMessage
	// Raw はモデルが返したテキストそのもの
	Raw string
}

// Extractor は画像からカード項目を抽出する
type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) (*Extraction, error)
}

// stripCodeFence は ```json ... ``` や ``` ... ``` で囲まれた応答から中身を取り出す
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "```json"):
		text = strings.TrimPrefix(text, "```json")
	case strings.HasPrefix(text, "```"):
		text = strings.TrimPrefix(text, "```")
	default:
		return text
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// parseExtraction は応答テキストを検証してExtractionにする
func parseExtraction(text string) (*Extraction, error) {
	body := stripCodeFence(text)

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return nil, &MalformedResponseError{Raw: text, Err: err}
	}
	return &Extraction{JSON: json.RawMessage(body), Raw: text}, nil
}
