package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/nmwangi/dukatrans/internal/jobs"
)

type startRequest struct {
	ChunkSize int `json:"chunk_size"`
}

// webhookPayload is the inbound catalog event. Only the ID is trusted; the
// item itself is re-fetched from the catalog before processing.
type webhookPayload struct {
	ID int64 `json:"id"`
}

type acceptedResponse struct {
	Status string `json:"status"`
	ItemID int64  `json:"item_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStartFullScan(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if err := s.controller.StartFullScan(req.ChunkSize); err != nil {
		if errors.Is(err, jobs.ErrBusy) {
			return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
		}
		return err
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

func (s *Server) handleRetryFailed(c echo.Context) error {
	if err := s.controller.RetryFailed(); err != nil {
		if errors.Is(err, jobs.ErrBusy) {
			return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
		}
		return err
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

func (s *Server) handleSingleItem(c echo.Context) error {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || itemID <= 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid item id"})
	}
	s.controller.StartSingleItem(itemID)
	return c.JSON(http.StatusAccepted, acceptedResponse{Status: "accepted", ItemID: itemID})
}

func (s *Server) handleProductWebhook(c echo.Context) error {
	var payload webhookPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid webhook payload"})
	}
	if payload.ID <= 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing product id"})
	}
	s.controller.StartSingleItem(payload.ID)
	return c.JSON(http.StatusAccepted, acceptedResponse{Status: "accepted", ItemID: payload.ID})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.controller.Status().Snapshot())
}

func (s *Server) handleFailures(c echo.Context) error {
	failures := s.controller.Status().Failures()
	return c.JSON(http.StatusOK, map[string]any{
		"count":    len(failures),
		"failures": failures,
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
