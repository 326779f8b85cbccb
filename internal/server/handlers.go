package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cardscan/internal/camera"
	"cardscan/internal/card"
	"cardscan/internal/config"
	"cardscan/internal/scan"
)

// Scanner はカード画像を処理する
type Scanner interface {
	Scan(ctx context.Context, dataURI string) (*card.View, error)
	ScanImage(ctx context.Context, data []byte, format string) (*card.View, error)
}

// Handler はAPIエンドポイントの実装
type Handler struct {
	config  *config.Config
	scanner Scanner
	cards   card.Repository
	camera  *camera.Session
	logger  *slog.Logger
}

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// ScanRequest はスキャン要求
type ScanRequest struct {
	Image string `json:"image"`
}

// AcquireRequest はカメラ取得要求
type AcquireRequest struct {
	DeviceID string `json:"device_id"`
}

func respondError(c *gin.Context, status int, code string, detail string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Detail: detail})
}

// Index は撮影ページを返す
func (h *Handler) Index(c *gin.Context) {
	data, err := indexHTML()
	if err != nil {
		h.logger.Error("撮影ページの読み込みに失敗しました", "error", err)
		respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *Handler) GetStatus(c *gin.Context) {
	cameraStatus := gin.H{"enabled": h.camera != nil}
	if h.camera != nil {
		cameraStatus["live"] = h.camera.Live()
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "running",
		"server": gin.H{
			"host": h.config.Server.Host,
			"port": h.config.Server.Port,
		},
		"camera":       cameraStatus,
		"llm_provider": h.config.LLM.Provider,
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}

// ScanCard はdata URIで送られた画像を処理する
func (h *Handler) ScanCard(c *gin.Context) {
	if h.config.Server.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.Server.MaxBodyBytes)
	}

	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "too_large",
				"画像データが大きすぎます（上限 "+strconv.FormatInt(tooLarge.Limit, 10)+" バイト）")
			return
		}
		respondError(c, http.StatusBadRequest, "no_image", "画像データがありません")
		return
	}

	view, err := h.scanner.Scan(c.Request.Context(), req.Image)
	if err != nil {
		h.respondScanError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// respondScanError はスキャンのエラーをステータスに対応付ける
func (h *Handler) respondScanError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scan.ErrInvalidImage):
		respondError(c, http.StatusBadRequest, "invalid_image", err.Error())
	case errors.Is(err, scan.ErrExtraction):
		respondError(c, http.StatusBadGateway, "extraction_failed", err.Error())
	default:
		h.logger.Error("スキャンに失敗しました", "error", err)
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// ListCards は保存済みカードの一覧を返す
func (h *Handler) ListCards(c *gin.Context) {
	limit := card.DefaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, "invalid_limit", "limitは正の整数で指定してください")
			return
		}
		limit = n
	}

	cards, err := h.cards.List(limit)
	if err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	views := make([]card.View, 0, len(cards))
	for i := range cards {
		views = append(views, cards[i].View())
	}
	c.JSON(http.StatusOK, gin.H{"cards": views})
}

// GetCard は保存済みカードを1件返す
func (h *Handler) GetCard(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_id", "IDが不正です")
		return
	}

	found, err := h.cards.Find(uint(id))
	if errors.Is(err, card.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	c.JSON(http.StatusOK, found.View())
}

// requireCamera はサーバー側カメラが無効なら404を返す
func (h *Handler) requireCamera(c *gin.Context) {
	if h.camera == nil {
		respondError(c, http.StatusNotFound, "camera_disabled", "サーバー側カメラは無効です")
		return
	}
	c.Next()
}

// GetCamera はカメラセッションの状態を返す
func (h *Handler) GetCamera(c *gin.Context) {
	c.JSON(http.StatusOK, h.camera.State())
}

// AcquireCamera はストリームを取得する
func (h *Handler) AcquireCamera(c *gin.Context) {
	var req AcquireRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	if err := h.camera.Acquire(c.Request.Context(), req.DeviceID); err != nil {
		h.respondCameraError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.camera.State())
}

// SwitchCamera は次のデバイスに切り替える
func (h *Handler) SwitchCamera(c *gin.Context) {
	if err := h.camera.SwitchDevice(c.Request.Context()); err != nil {
		h.respondCameraError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.camera.State())
}

// CaptureCamera は現在のフレームをキャプチャしてスキャンする
func (h *Handler) CaptureCamera(c *gin.Context) {
	result, err := h.camera.Capture(c.Request.Context())
	if err != nil {
		h.respondCameraError(c, err)
		return
	}

	view, err := h.scanner.ScanImage(c.Request.Context(), result.Data, "jpeg")
	if err != nil {
		h.respondScanError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ReleaseCamera はストリームを解放する
func (h *Handler) ReleaseCamera(c *gin.Context) {
	if err := h.camera.Close(c.Request.Context()); err != nil {
		h.respondCameraError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.camera.State())
}

// respondCameraError はカメラのエラーをステータスに対応付ける
func (h *Handler) respondCameraError(c *gin.Context, err error) {
	var aerr *camera.AcquireError
	switch {
	case errors.Is(err, camera.ErrNoActiveSession):
		respondError(c, http.StatusConflict, "no_active_session", err.Error())
	case errors.As(err, &aerr):
		respondError(c, http.StatusServiceUnavailable, aerr.Kind.String(), err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(c, http.StatusServiceUnavailable, "AbortError", err.Error())
	default:
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
