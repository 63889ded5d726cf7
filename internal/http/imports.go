package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stephdmurray-sys/nomee-sub001/internal/apperr"
	"github.com/stephdmurray-sys/nomee-sub001/internal/auth"
	"github.com/stephdmurray-sys/nomee-sub001/internal/imports"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
)

// CreateImportRequest is the body for POST /api/v1/me/imports.
type CreateImportRequest struct {
	ImageKey string `json:"imageKey"`
}

// VisibilityRequest is the body for PATCH /api/v1/me/imports/:id/visibility.
type VisibilityRequest struct {
	Visibility string `json:"visibility"`
}

// ImportsResponse lists an owner's imports.
type ImportsResponse struct {
	Imports []imports.View `json:"imports"`
}

func (s *Server) handleImportUpload(c echo.Context) error {
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

	up, err := s.deps.Imports.Upload(c.Request().Context(), auth.OwnerID(c), fh.Filename, f)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, up)
}

func (s *Server) handleCreateImport(c echo.Context) error {
	var req CreateImportRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Invalid("", "invalid request body"))
	}
	rec, err := s.deps.Imports.CreateRecord(c.Request().Context(), auth.OwnerID(c), req.ImageKey)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, imports.NewView(rec))
}

func (s *Server) handleListImports(c echo.Context) error {
	list, err := s.deps.Imports.List(c.Request().Context(), auth.OwnerID(c))
	if err != nil {
		return s.writeError(c, err)
	}
	resp := ImportsResponse{Imports: make([]imports.View, 0, len(list))}
	for i := range list {
		resp.Imports = append(resp.Imports, imports.NewView(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleProcessImport(c echo.Context) error {
	rec, err := s.deps.Imports.Process(c.Request().Context(), auth.OwnerID(c), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, imports.NewView(rec))
}

func (s *Server) handleApproveImport(c echo.Context) error {
	var req imports.ApproveRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Invalid("", "invalid request body"))
	}
	rec, err := s.deps.Imports.Approve(c.Request().Context(), auth.OwnerID(c), c.Param("id"), &req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, imports.NewView(rec))
}

func (s *Server) handleImportVisibility(c echo.Context) error {
	var req VisibilityRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Invalid("", "invalid request body"))
	}
	err := s.deps.Imports.UpdateVisibility(c.Request().Context(), auth.OwnerID(c), c.Param("id"), store.Visibility(req.Visibility))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (s *Server) handleDeleteImport(c echo.Context) error {
	if err := s.deps.Imports.Delete(c.Request().Context(), auth.OwnerID(c), c.Param("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleLimits(c echo.Context) error {
	limits, err := s.deps.Imports.Limits(c.Request().Context(), auth.OwnerID(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, limits)
}
