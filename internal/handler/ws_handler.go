package handler

import (
	"log"
	"net/http"
	"strings"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/clipsyncapp/api-clipsync/internal/service"
	"github.com/clipsyncapp/api-clipsync/internal/ws"
	"github.com/clipsyncapp/api-clipsync/pkg/auth"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades the per-account real-time channel
type WSHandler struct {
	jwtManager   *auth.JWTManager
	registry     *ws.Registry
	authService  *service.AuthService
	mediaService *service.MediaService
	appEnv       string
}

func NewWSHandler(
	jwtManager *auth.JWTManager,
	registry *ws.Registry,
	authService *service.AuthService,
	mediaService *service.MediaService,
	appEnv string,
) *WSHandler {
	return &WSHandler{
		jwtManager:   jwtManager,
		registry:     registry,
		authService:  authService,
		mediaService: mediaService,
		appEnv:       appEnv,
	}
}

// Connect godoc
// @Summary Open the account's real-time channel
// @Description Upgrades to WebSocket. Auth is the access token, via the token query parameter or a Bearer Authorization header. On connect the server pushes a Devices snapshot; afterwards every frame published for the account reaches this connection.
// @Tags Channel
// @Param token query string false "Access token"
// @Success 101
// @Failure 401 {object} model.ErrorResponse
// @Router /ws [get]
func (h *WSHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Invalid or missing token"})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	bus := h.registry.Acquire(claims.AccountID)
	conn := ws.NewConn(bus, wsConn, claims.AccountID, claims.InstallationID, claims.LinkID)
	go conn.WritePump()

	log.Printf("🔌 Channel connected: account=%s installation=%s", claims.AccountID, claims.InstallationID)

	h.sendDevicesSnapshot(conn)
	if h.appEnv == "development" {
		h.sendSyntheticRequest(conn)
	}

	conn.ReadPump(h.handleFrame, func(reason string) {
		log.Printf("🔌 Channel closed: account=%s reason=%s", claims.AccountID, reason)
	})
	h.registry.Release(bus, conn)
}

// sendDevicesSnapshot pushes the authoritative list of active links to a
// freshly connected device.
func (h *WSHandler) sendDevicesSnapshot(conn *ws.Conn) {
	links, err := h.authService.ActiveLinks(conn.AccountID)
	if err != nil {
		log.Printf("Failed to load links for snapshot: %v", err)
		return
	}
	h.registry.SendToConn(conn, model.DevicesMessage(links))
}

// sendSyntheticRequest issues a MediaRequest against one of the device's
// own unfilled media rows. Development convenience only.
func (h *WSHandler) sendSyntheticRequest(conn *ws.Conn) {
	req, err := h.mediaService.SyntheticRequest(conn.InstallationID)
	if err != nil {
		return
	}
	h.registry.SendToConn(conn, model.MediaRequestMessage(req))
}

// handleFrame republishes a device's inbound frame to every connection of
// the account, including the sender.
func (h *WSHandler) handleFrame(conn *ws.Conn, msg model.Message) {
	switch msg.Type {
	case model.MessageTypeNotice, model.MessageTypeMediaRequest,
		model.MessageTypeDevices, model.MessageTypeDataNotification:
		h.registry.PublishToAccount(conn.AccountID, &msg)
	default:
		log.Printf("Dropping frame with unknown type %q from %s", msg.Type, conn.InstallationID)
	}
}
