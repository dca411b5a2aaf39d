package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/turmas-api/internal/models"
	appErrors "github.com/noah-isme/turmas-api/pkg/errors"
	"github.com/noah-isme/turmas-api/pkg/response"
)

type notificationSettingsService interface {
	Load(ctx context.Context) (models.NotificationSettings, error)
	Invalidate(ctx context.Context)
}

// NotificationSettingsHandler shows the notification settings the dispatcher uses.
type NotificationSettingsHandler struct {
	settings notificationSettingsService
}

// NewNotificationSettingsHandler constructs the handler.
func NewNotificationSettingsHandler(settings notificationSettingsService) *NotificationSettingsHandler {
	return &NotificationSettingsHandler{settings: settings}
}

// Get godoc
// @Summary Show the effective notification settings
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/settings [get]
func (h *NotificationSettingsHandler) Get(c *gin.Context) {
	settings, err := h.settings.Load(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification settings"))
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// Refresh godoc
// @Summary Drop cached notification settings and reload them
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/settings/refresh [post]
func (h *NotificationSettingsHandler) Refresh(c *gin.Context) {
	h.settings.Invalidate(c.Request.Context())
	h.Get(c)
}
