package http

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/apperr"
	"github.com/stephdmurray-sys/nomee-sub001/internal/blob"
	"github.com/stephdmurray-sys/nomee-sub001/internal/moderation"
)

// ReportResponse is the response body for POST /api/v1/reports.
type ReportResponse struct {
	ID string `json:"id"`
}

// VoiceUploadResponse is the response body for POST /api/v1/uploads/voice.
type VoiceUploadResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

func (s *Server) handleReport(c echo.Context) error {
	var req moderation.ReportRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Invalid("", "invalid request body"))
	}
	req.ClientIP = c.RealIP()

	id, err := s.deps.Moderation.Submit(c.Request().Context(), &req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, ReportResponse{ID: id})
}

func (s *Server) handleSignals(c echo.Context) error {
	profile, err := s.deps.Signals.ForProfile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

// isAudio accepts sniffed audio types; browsers record to WebM or Ogg.
func isAudio(contentType string) bool {
	return strings.HasPrefix(contentType, "audio/") ||
		contentType == "video/webm" ||
		contentType == "application/ogg"
}

func (s *Server) handleVoiceUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return s.writeError(c, apperr.Invalid("file", "is required"))
	}
	if fh.Size > s.config.MaxUploadBytes {
		return s.writeError(c, apperr.Invalid("file", "is too large"))
	}
	f, err := fh.Open()
	if err != nil {
		return s.writeError(c, apperr.Invalid("file", "could not be read"))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.config.MaxUploadBytes+1))
	if err != nil {
		return s.writeError(c, err)
	}
	if len(data) == 0 || int64(len(data)) > s.config.MaxUploadBytes {
		return s.writeError(c, apperr.Invalid("file", "must be a non-empty recording within the size limit"))
	}
	contentType := http.DetectContentType(data)
	if !isAudio(contentType) {
		return s.writeError(c, apperr.Invalid("file", "must be an audio recording"))
	}

	key, err := blob.NewKey(blob.KindVoice, s.now().UTC().Format("2006-01-02"), fh.Filename)
	if err != nil {
		return s.writeError(c, apperr.Invalid("file", "invalid filename"))
	}
	obj, err := s.deps.Blobs.Put(c.Request().Context(), key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return s.writeError(c, err)
	}

	s.logger.Info("voice note uploaded", zap.String("key", obj.Key), zap.Int("size", len(data)))
	return c.JSON(http.StatusCreated, VoiceUploadResponse{URL: obj.URL, Key: obj.Key})
}
