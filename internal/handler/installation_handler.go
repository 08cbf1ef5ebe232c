package handler

import (
	"net/http"

	"github.com/clipsyncapp/api-clipsync/internal/middleware"
	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/clipsyncapp/api-clipsync/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InstallationHandler handles device registration endpoints
type InstallationHandler struct {
	instRepo *repository.InstallationRepository
}

func NewInstallationHandler(instRepo *repository.InstallationRepository) *InstallationHandler {
	return &InstallationHandler{instRepo: instRepo}
}

// Register godoc
// @Summary Register or update an installation
// @Description Idempotent upsert by device-generated id. Called on every app start, before any authenticated request; requires no auth and no Installation-Id header.
// @Tags Installations
// @Accept json
// @Produce json
// @Param body body model.RegisterInstallationRequest true "Installation"
// @Success 200 {object} model.Installation
// @Failure 400 {object} model.ErrorResponse
// @Router /installations [put]
func (h *InstallationHandler) Register(c *gin.Context) {
	var req model.RegisterInstallationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	inst := &model.Installation{
		ID:            req.ID,
		DisplayName:   req.Name,
		Description:   req.Desc,
		Platform:      req.OS,
		ClientVersion: req.Client,
	}
	if err := h.instRepo.Upsert(inst); err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to register installation"})
		return
	}

	saved, err := h.instRepo.FindByID(req.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to load installation"})
		return
	}
	c.JSON(http.StatusOK, saved)
}

// RegisterPushToken godoc
// @Summary Register the device's FCM push token
// @Tags Installations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.RegisterPushTokenRequest true "Push token"
// @Success 200 {object} model.SuccessResponse
// @Router /installations/push_token [post]
func (h *InstallationHandler) RegisterPushToken(c *gin.Context) {
	var req model.RegisterPushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	installationID := c.MustGet(middleware.CtxInstallationID).(uuid.UUID)
	if err := h.instRepo.SetPushToken(installationID, req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to save push token"})
		return
	}
	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Push token registered"})
}
