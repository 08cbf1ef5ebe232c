package handler

import (
	"net/http"
	"strings"

	"github.com/clipsyncapp/api-clipsync/internal/middleware"
	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/clipsyncapp/api-clipsync/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderChallengeResponse carries "propertyID=code" pairs on signup
const HeaderChallengeResponse = "Challenge-Response"

// AccountHandler handles account and property endpoints
type AccountHandler struct {
	authService *service.AuthService
}

func NewAccountHandler(authService *service.AuthService) *AccountHandler {
	return &AccountHandler{authService: authService}
}

// CreateAccount godoc
// @Summary Sign up
// @Description Creates an account. Requires one or more Challenge-Response headers of the form "propertyID=code" referencing verified properties, which become the account's primary properties.
// @Tags Accounts
// @Accept json
// @Produce json
// @Param Challenge-Response header string true "propertyID=code"
// @Param body body model.CreateAccountRequest true "Account"
// @Success 201 {object} model.Account
// @Failure 409 {object} model.ErrorResponse
// @Failure 422 {object} model.ValidationErrorResponse
// @Router /accounts [post]
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req model.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	challenges, err := parseChallenges(c.Request.Header.Values(HeaderChallengeResponse))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "Malformed Challenge-Response header"})
		return
	}

	acc, err := h.authService.CreateAccount(req, challenges)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acc)
}

// ClaimProperty godoc
// @Summary Claim or verify an identifier (email/phone)
// @Description scope=claim creates the property and sends a verification code; scope=verify checks the code and marks the property verified.
// @Tags Accounts
// @Accept json
// @Produce json
// @Param body body model.ClaimPropertyRequest true "Property claim"
// @Success 200 {object} model.PropertyResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 422 {object} model.ValidationErrorResponse
// @Router /accounts/properties [post]
func (h *AccountHandler) ClaimProperty(c *gin.Context) {
	var req model.ClaimPropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	prop, err := h.authService.ClaimProperty(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

// GetLinks godoc
// @Summary List the account's active device links
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.InstallationLink
// @Router /accounts/links [get]
func (h *AccountHandler) GetLinks(c *gin.Context) {
	accountID := c.MustGet(middleware.CtxAccountID).(uuid.UUID)

	links, err := h.authService.ActiveLinks(accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to list links"})
		return
	}
	c.JSON(http.StatusOK, links)
}

// RenameLink godoc
// @Summary Rename one of the account's device links
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.RenameLinkRequest true "Rename"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /accounts/links [post]
func (h *AccountHandler) RenameLink(c *gin.Context) {
	accountID := c.MustGet(middleware.CtxAccountID).(uuid.UUID)

	var req model.RenameLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.authService.RenameLink(accountID, req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Link renamed"})
}

// ChangeSecret godoc
// @Summary Change the account credential
// @Description Appends a SecretUpdate; sessions issued under the old credential stop refreshing.
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body object true "{\"secret\": \"...\"}"
// @Success 200 {object} model.SuccessResponse
// @Router /accounts/secret [put]
func (h *AccountHandler) ChangeSecret(c *gin.Context) {
	accountID := c.MustGet(middleware.CtxAccountID).(uuid.UUID)

	var req struct {
		Secret string `json:"secret" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.authService.ChangeSecret(accountID, req.Secret); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Secret updated"})
}

// parseChallenges parses repeatable "propertyID=code" header values
func parseChallenges(values []string) (map[uuid.UUID]string, error) {
	challenges := make(map[uuid.UUID]string, len(values))
	for _, v := range values {
		parts := strings.SplitN(strings.TrimSpace(v), "=", 2)
		if len(parts) != 2 {
			return nil, service.NewValidationError("challenge_response", "expected id=code")
		}
		id, err := uuid.Parse(parts[0])
		if err != nil {
			return nil, err
		}
		challenges[id] = parts[1]
	}
	return challenges, nil
}
