// Package web provides the HTTP handlers for the pipeline API, including the
// callback ingestion endpoint the generation service pushes results to.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/services"
)

type APIHandlers struct {
	submissionService *services.Submission
	ingestor          *services.Ingestor
	validator         *validator.Validate
}

func NewAPIHandlers(
	submissionService *services.Submission,
	ingestor *services.Ingestor,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		submissionService: submissionService,
		ingestor:          ingestor,
		validator:         validator,
	}
}

// Register attaches the API routes to the app.
func (h *APIHandlers) Register(app *fiber.App) {
	submissions := app.Group("/submissions")
	submissions.Post("/", h.CreateSubmission)
	submissions.Get("/:id", h.GetSubmission)
	submissions.Post("/:id/retry", h.RetrySubmission)
	submissions.Post("/:id/regenerate", h.RegenerateComponent)

	app.Post("/callbacks/generation", h.IngestCallback)
	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) CreateSubmission(c fiber.Ctx) error {
	var req CreateSubmissionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	submission, err := h.submissionService.Create(c.Context(), models.Inputs{
		Market:              req.Market,
		Product:             req.Product,
		AudienceHint:        req.AudienceHint,
		Extra:               req.Extra,
		GenerateLandingPage: req.GenerateLandingPage,
		EventName:           req.EventName,
		EventDate:           req.EventDate,
		EventLocation:       req.EventLocation,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(submission)
}

func (h *APIHandlers) GetSubmission(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Submission ID is required")
	}

	submission, err := h.submissionService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(submission)
}

// RetrySubmission resets failed steps to pending and resumes the chain in the
// background; the response returns immediately.
func (h *APIHandlers) RetrySubmission(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Submission ID is required")
	}

	result, err := h.submissionService.Retry(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(RetryResponse{
		Success: true,
		StartAt: result.StartAt,
		Reset:   result.Reset,
		Skipped: result.Skipped,
	})
}

func (h *APIHandlers) RegenerateComponent(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Submission ID is required")
	}

	var req RegenerateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	submission, err := h.submissionService.Regenerate(c.Context(), id, req.Component)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(RegenerateResponse{
		Success:   true,
		Status:    string(submission.Status),
		Component: req.Component,
	})
}

// IngestCallback accepts an out-of-band step result pushed by the generation
// service. Replaying the same callback is safe: the merge overwrites by key.
func (h *APIHandlers) IngestCallback(c fiber.Ctx) error {
	var req CallbackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.ingestor.Ingest(c.Context(), services.IngestRequest{
		SubmissionID: req.SubmissionID,
		Step:         req.Step,
		Payload:      req.Payload,
		Status:       req.Status,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(CallbackResponse{
		OK:              true,
		SubmissionID:    result.SubmissionID,
		Step:            result.Step,
		ComponentStatus: string(result.ComponentStatus),
		OverallStatus:   string(result.OverallStatus),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.submissionService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Genflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Genflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
