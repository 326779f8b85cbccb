// Package scan カード画像を受け取り、抽出・保存までを行う
package scan

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"cardscan/internal/card"
	"cardscan/internal/llm"
)

var (
	// ErrInvalidImage はリクエストの画像が不正な場合のエラー
	ErrInvalidImage = errors.New("画像データが不正です")
	// ErrExtraction はLLMによる抽出に失敗した場合のエラー
	ErrExtraction = errors.New("カード情報の抽出に失敗しました")
)

// Service はスキャン処理を行う
type Service struct {
	extractor llm.Extractor
	repo      card.Repository
	uploadDir string
	logger    *slog.Logger
}

// NewService は新しいServiceを作成する
func NewService(extractor llm.Extractor, repo card.Repository, uploadDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		extractor: extractor,
		repo:      repo,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// Scan はdata URI形式の画像を処理する
func (s *Service) Scan(ctx context.Context, dataURI string) (*card.View, error) {
	data, format, err := ParseDataURI(dataURI)
	if err != nil {
		return nil, err
	}
	return s.ScanImage(ctx, data, format)
}

// ScanImage は画像を保存し、抽出結果を既定値に重ねて永続化する
func (s *Service) ScanImage(ctx context.Context, data []byte, format string) (*card.View, error) {
	if _, decoded, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	} else if format == "" {
		format = decoded
	}

	filename, err := s.store(data, format)
	if err != nil {
		return nil, err
	}

	extraction, err := s.extractor.Extract(ctx, data, "image/"+format)
	if err != nil {
		s.logger.Error("scan: 抽出に失敗しました", "file", filename, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	fields := card.DefaultFields()
	if err := fields.Merge(extraction.JSON); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	c := card.NewCard(fields, filename, extraction.JSON)
	if err := s.repo.Create(c); err != nil {
		return nil, err
	}

	s.logger.Info("scan: カードを保存しました", "id", c.ID, "card_name", c.CardName, "file", filename)

	view := c.View()
	return &view, nil
}

// store はアップロードディレクトリに画像を書き込み、ファイル名を返す
func (s *Service) store(data []byte, format string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return "", fmt.Errorf("アップロードディレクトリの作成に失敗: %w", err)
	}

	filename := fmt.Sprintf("scan_%s.%s", uuid.New().String(), format)
	path := filepath.Join(s.uploadDir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("画像の保存に失敗: %w", err)
	}

	s.logger.Info("scan: 画像を保存しました", "path", path)
	return filename, nil
}

// ParseDataURI は "data:image/<fmt>;base64,<payload>" を分解する
func ParseDataURI(uri string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: data URIではありません", ErrInvalidImage)
	}

	mediaType, ok := strings.CutPrefix(header, "data:")
	if !ok || !strings.HasSuffix(mediaType, ";base64") {
		return nil, "", fmt.Errorf("%w: base64のdata URIではありません", ErrInvalidImage)
	}
	mediaType = strings.TrimSuffix(mediaType, ";base64")

	format, ok := strings.CutPrefix(mediaType, "image/")
	if !ok || format == "" || strings.ContainsAny(format, `/\.`) {
		return nil, "", fmt.Errorf("%w: 画像のメディアタイプではありません: %s", ErrInvalidImage, mediaType)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: base64のデコードに失敗: %v", ErrInvalidImage, err)
	}
	return data, format, nil
}
