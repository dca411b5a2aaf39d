package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/turmas-api/internal/dto"
	"github.com/noah-isme/turmas-api/internal/models"
	"github.com/noah-isme/turmas-api/internal/service"
	appErrors "github.com/noah-isme/turmas-api/pkg/errors"
	"github.com/noah-isme/turmas-api/pkg/response"
)

type classConcluder interface {
	Conclude(ctx context.Context, classID string, req service.ConcludeRequest) (*service.ConclusionResult, error)
	Evaluations(ctx context.Context, classID string) ([]models.EvaluationRecord, error)
}

type resultNotifier interface {
	NotifyClassResults(ctx context.Context, classID string, recipients service.RecipientSelection) (*service.SendResultsResult, error)
	ListLogs(ctx context.Context, classID string) ([]models.NotificationLogEntry, error)
}

// ConclusionHandler exposes the conclude and result notification endpoints of a class.
type ConclusionHandler struct {
	conclusions classConcluder
	notifier    resultNotifier
	validator   *validator.Validate
}

// NewConclusionHandler constructs the handler.
func NewConclusionHandler(conclusions classConcluder, notifier resultNotifier, validate *validator.Validate) *ConclusionHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &ConclusionHandler{conclusions: conclusions, notifier: notifier, validator: validate}
}

// Conclude godoc
// @Summary Conclude a class with its evaluations
// @Description Marks the class as Concluída, stores evaluations and creates one enrollment per approved student.
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.ConcludeClassRequest true "Confirmed window and evaluations"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/conclude [post]
func (h *ConclusionHandler) Conclude(c *gin.Context) {
	var req dto.ConcludeClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid conclusion payload"))
		return
	}
	window, err := req.Window()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "confirmed_date must be YYYY-MM-DD"))
		return
	}

	result, err := h.conclusions.Conclude(c.Request.Context(), c.Param("id"), service.ConcludeRequest{
		Evaluations:     req.Drafts(),
		ConfirmedWindow: window,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Evaluations godoc
// @Summary List the evaluation records stored for a class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id}/evaluations [get]
func (h *ConclusionHandler) Evaluations(c *gin.Context) {
	records, err := h.conclusions.Evaluations(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// NotifyResults godoc
// @Summary Email the results of a concluded class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.NotifyResultsRequest true "Selected recipients"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /classes/{id}/results/notify [post]
func (h *ConclusionHandler) NotifyResults(c *gin.Context) {
	var req dto.NotifyResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid notification payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid recipient email"))
		return
	}

	result, err := h.notifier.NotifyClassResults(c.Request.Context(), c.Param("id"), service.RecipientSelection{
		StudentEmails: req.StudentEmails,
		CompanyEmails: req.CompanyEmails,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// NotificationLogs godoc
// @Summary List result notification attempts of a class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/notifications [get]
func (h *ConclusionHandler) NotificationLogs(c *gin.Context) {
	logs, err := h.notifier.ListLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
