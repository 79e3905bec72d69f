package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spacesedan/sentiscope/internal/clients/kafka_client"
	"github.com/spacesedan/sentiscope/internal/models"
	"github.com/spacesedan/sentiscope/internal/pipeline"
)

type submitJobResponse struct {
	JobID string `json:"job_id"`
}

func (s *Server) healthHandler(c echo.Context) error {
	if s.healthy.Load() {
		return c.JSON(http.StatusOK, models.HealthResponse{Status: "ok", Inference: true})
	}
	return c.JSON(http.StatusServiceUnavailable, models.HealthResponse{Status: "degraded", Inference: false})
}

func (s *Server) analyzeHandler(c echo.Context) error {
	req, status, errBody := s.bindRequest(c)
	if errBody != nil {
		return c.JSON(status, errBody)
	}

	results, err := s.analyzer.AnalyzeBatch(c.Request().Context(), req.Data)
	if err != nil {
		return analysisError(c, err)
	}

	return c.JSON(http.StatusOK, models.AnalyzeResponse(results))
}

func (s *Server) submitJobHandler(c echo.Context) error {
	req, status, errBody := s.bindRequest(c)
	if errBody != nil {
		return c.JSON(status, errBody)
	}

	job := models.AnalyzeJob{
		JobID:       gonanoid.Must(),
		SubmittedAt: time.Now().UTC(),
		Items:       req.Data,
	}
	if err := s.jobs.Publish(c.Request().Context(), kafka_client.KAFKA_TOPIC_ANALYZE_REQUESTS, job.JobID, job); err != nil {
		slog.Error("[Server] Failed to queue job",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()))
		return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Message: "Could not queue analysis job"})
	}

	return c.JSON(http.StatusAccepted, submitJobResponse{JobID: job.JobID})
}

// bindRequest decodes and checks the body. A non-nil ErrorResponse is to
// be sent with the returned status.
func (s *Server) bindRequest(c echo.Context) (*models.AnalyzeRequest, int, *models.ErrorResponse) {
	req := new(models.AnalyzeRequest)
	if err := c.Bind(req); err != nil {
		return nil, http.StatusBadRequest, &models.ErrorResponse{Message: "Invalid request body"}
	}
	if err := c.Validate(req); err != nil {
		return nil, http.StatusUnprocessableEntity, &models.ErrorResponse{
			Message: fmt.Sprintf("Invalid request: %v", err),
		}
	}
	if s.maxBatchItems > 0 && len(req.Data) > s.maxBatchItems {
		return nil, http.StatusRequestEntityTooLarge, &models.ErrorResponse{
			Message: fmt.Sprintf("Batch has %d items, limit is %d", len(req.Data), s.maxBatchItems),
		}
	}
	return req, http.StatusOK, nil
}

func analysisError(c echo.Context, err error) error {
	var inferenceErr *pipeline.InferenceError
	if errors.As(err, &inferenceErr) {
		status := http.StatusBadGateway
		if inferenceErr.Timeout() {
			status = http.StatusGatewayTimeout
		}
		return c.JSON(status, models.ErrorResponse{
			Message: inferenceErr.Error(),
			ItemID:  inferenceErr.ItemID,
		})
	}
	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: err.Error()})
}
