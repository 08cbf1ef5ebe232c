package handler

import (
	"net/http"

	"github.com/clipsyncapp/api-clipsync/internal/middleware"
	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/clipsyncapp/api-clipsync/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRefreshToken carries the opaque refresh token on rotation,
// distinct from Authorization so access-token auth stays unambiguous.
const HeaderRefreshToken = "Refresh-Token"

// AuthHandler handles session endpoints
type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// CreateSession godoc
// @Summary Log in
// @Description Resolves the account by handle or verified primary property and issues an access/refresh token pair. Requires the Installation-Id header. Supplying link_id reuses an existing link; otherwise prior active links for this device are rotated out.
// @Tags Auth
// @Accept json
// @Produce json
// @Param Installation-Id header string true "Installation UUID"
// @Param body body model.CreateSessionRequest true "Credentials"
// @Success 201 {object} model.SessionResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 422 {object} model.ValidationErrorResponse
// @Router /auth_sessions [post]
func (h *AuthHandler) CreateSession(c *gin.Context) {
	var req model.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	installationID := c.MustGet(middleware.CtxInstallationID).(uuid.UUID)
	resp, err := h.authService.CreateSession(installationID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Refresh godoc
// @Summary Rotate a session
// @Description Exchanges the Refresh-Token header for a fresh session. The token must belong to the calling installation (403 otherwise) and is single-use: a replayed token gets 401.
// @Tags Auth
// @Produce json
// @Param Installation-Id header string true "Installation UUID"
// @Param Refresh-Token header string true "Opaque refresh token"
// @Success 201 {object} model.SessionResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /auth_sessions/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	token := c.GetHeader(HeaderRefreshToken)
	if token == "" {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Refresh-Token header required"})
		return
	}

	installationID := c.MustGet(middleware.CtxInstallationID).(uuid.UUID)
	resp, err := h.authService.Refresh(token, installationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
