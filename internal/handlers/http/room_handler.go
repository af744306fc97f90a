package http

import (
	"context"
	"net/http"
	"strings"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
	"roomcast/internal/infrastructure/middleware"
	"roomcast/internal/infrastructure/monitoring"
	"roomcast/internal/infrastructure/transport"
	apperrors "roomcast/pkg/errors"
	"roomcast/pkg/utils"
	"roomcast/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy belongs on the balancer in front of us
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Announcer originates a site-wide announcement: the redis publisher in a
// multi-node deployment, the client manager when running standalone.
type Announcer interface {
	PublishAnnouncement(ctx context.Context, text string) error
}

// RoomHandler exposes the REST boundary and the viewer websocket endpoint.
type RoomHandler struct {
	rooms     ports.RoomManager
	clients   *transport.ClientManager
	health    *monitoring.HealthChecker
	announcer Announcer
	apiKey    string
	baseURL   string
	log       *zap.SugaredLogger
}

func NewRoomHandler(
	rooms ports.RoomManager,
	clients *transport.ClientManager,
	health *monitoring.HealthChecker,
	announcer Announcer,
	apiKey string,
	baseURL string,
	log *zap.SugaredLogger,
) *RoomHandler {
	return &RoomHandler{
		rooms:     rooms,
		clients:   clients,
		health:    health,
		announcer: announcer,
		apiKey:    apiKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		log:       log.With("component", "room_handler"),
	}
}

func (h *RoomHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group(h.baseURL + "/api")
	{
		api.POST("/room/create", h.CreateRoom)
		api.GET("/room/generate", h.GenerateRoomName)
		api.GET("/rooms", h.ListRooms)
		api.POST("/announce", h.Announce)
		// room name is the first path segment; anything after it is ignored
		api.GET("/room/:name", h.ConnectRoom)
		api.GET("/room/:name/*rest", h.ConnectRoom)
	}
	router.GET("/health", h.Health)
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Visibility  string `json:"visibility"`
		IsTemporary bool   `json:"isTemporary"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateRoomName(req.Name); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	visibility := domain.Visibility(req.Visibility)
	if req.Visibility == "" {
		visibility = domain.VisibilityPublic
	}
	if err := validation.ValidateVisibility(string(visibility)); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	opts := ports.CreateRoomOptions{
		Name:        domain.RoomName(req.Name),
		Title:       utils.SanitizeString(req.Title),
		Description: utils.SanitizeString(req.Description),
		Visibility:  visibility,
		IsTemporary: req.IsTemporary,
	}
	if session := middleware.SessionFromContext(c); session != nil && session.IsLoggedIn {
		opts.OwnerUserID = session.UserID
	}

	if err := h.rooms.CreateRoom(c.Request.Context(), opts); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

// GenerateRoomName creates a temporary room under a random name, the "quick
// room" flow.
func (h *RoomHandler) GenerateRoomName(c *gin.Context) {
	name := utils.GenerateRoomName()
	err := h.rooms.CreateRoom(c.Request.Context(), ports.CreateRoomOptions{
		Name:        domain.RoomName(name),
		IsTemporary: true,
	})
	if err != nil {
		h.log.Errorw("temporary room create failed", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name})
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.rooms.ListLoaded()})
}

// ConnectRoom upgrades the request to a websocket and hands the socket to
// the client manager. Blocks for the lifetime of the connection.
func (h *RoomHandler) ConnectRoom(c *gin.Context) {
	name := domain.RoomName(c.Param("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room name required"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "room", name, "error", err)
		return
	}
	h.clients.AcceptDirect(c.Request.Context(), conn, name)
}

// Announce pushes a site-wide announcement to every connected client on
// every monolith. Guarded by the operator api key, not a user session.
func (h *RoomHandler) Announce(c *gin.Context) {
	if h.apiKey == "" || c.GetHeader("x-api-key") != h.apiKey {
		c.Error(apperrors.NewUnauthorizedError("missing or invalid api key"))
		return
	}
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateChatText(req.Text); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := h.announcer.PublishAnnouncement(c.Request.Context(), req.Text); err != nil {
		h.log.Errorw("announcement publish failed", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *RoomHandler) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
