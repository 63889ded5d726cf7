package http

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/apperr"
	"github.com/stephdmurray-sys/nomee-sub001/internal/auth"
	"github.com/stephdmurray-sys/nomee-sub001/internal/contribution"
)

// CreateContributionResponse is the response body for POST /api/v1/contributions.
type CreateContributionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SuccessResponse acknowledges an operation with no other payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// FeaturedRequest is the body for PATCH /api/v1/me/contributions/:id/featured.
type FeaturedRequest struct {
	Featured *bool `json:"featured"`
}

func (s *Server) handleCreateContribution(c echo.Context) error {
	var req contribution.CreateRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Invalid("", "invalid request body"))
	}
	created, err := s.deps.Contributions.Create(c.Request().Context(), &req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, CreateContributionResponse{ID: created.ID, Status: string(created.Status)})
}

func (s *Server) handleAttachIdentity(c echo.Context) error {
	var req contribution.IdentityRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.WithCode(contribution.CodeMissingFields, apperr.Invalid("", "invalid request body")))
	}
	req.ClientIP = c.RealIP()

	if err := s.deps.Contributions.AttachIdentity(c.Request().Context(), &req); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// handleConfirm always redirects; the link is opened from an email client.
func (s *Server) handleConfirm(c echo.Context) error {
	id := c.QueryParam("id")
	err := s.deps.Contributions.Confirm(c.Request().Context(), id, c.QueryParam("token"))
	if err != nil {
		s.logger.Info("confirmation rejected", zap.String("contribution_id", id), zap.Error(err))
		return c.Redirect(http.StatusFound, s.config.ConfirmErrorURL)
	}

	target := s.config.ConfirmSuccessURL
	if u, perr := url.Parse(target); perr == nil {
		q := u.Query()
		q.Set("id", id)
		u.RawQuery = q.Encode()
		target = u.String()
	}
	return c.Redirect(http.StatusFound, target)
}

// ContributionsResponse lists an owner's contributions.
type ContributionsResponse struct {
	Contributions []contribution.View `json:"contributions"`
}

func (s *Server) handleListContributions(c echo.Context) error {
	list, err := s.deps.Contributions.ListForOwner(c.Request().Context(), auth.OwnerID(c))
	if err != nil {
		return s.writeError(c, err)
	}
	resp := ContributionsResponse{Contributions: make([]contribution.View, 0, len(list))}
	for i := range list {
		resp.Contributions = append(resp.Contributions, contribution.NewView(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSetFeatured(c echo.Context) error {
	var req FeaturedRequest
	if err := c.Bind(&req); err != nil || req.Featured == nil {
		return s.writeError(c, apperr.Invalid("featured", "is required"))
	}
	if err := s.deps.Contributions.SetFeatured(c.Request().Context(), auth.OwnerID(c), c.Param("id"), *req.Featured); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (s *Server) handleDeleteContribution(c echo.Context) error {
	if err := s.deps.Contributions.Delete(c.Request().Context(), auth.OwnerID(c), c.Param("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
