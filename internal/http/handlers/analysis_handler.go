// Analysis HTTP handlers.
//
// This file exposes the second half of the product flow: given the received
// messages from the extraction step, return a short psychological read of the
// sender and a suggested reply.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/subtextlabs/go-subtext-backend/internal/services"
)

// AnalyzeRequest is the JSON payload for the analysis endpoint.
type AnalyzeRequest struct {
	// Messages are the received messages in conversation order.
	Messages []string `json:"messages" binding:"required" example:"hey are you free tonight?,let me know"`
}

// AnalyzeResponse wraps the model's analysis text verbatim.
type AnalyzeResponse struct {
	Analysis string `json:"analysis" example:"The sender sounds relaxed but slightly impatient…"`
}

// Analyze godoc
// @ID          analyzeMessages
// @Summary     Analyze received messages
// @Description Produces a psychological profile of the sender and a suggested reply.
// @Description Message order is preserved; the model output is returned unparsed.
// @Tags        Analysis
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.AnalyzeRequest  true  "Ordered received messages"
//
// @Success     200  {object}  handlers.AnalyzeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid body or no analyzable messages"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     500  {object}  handlers.ErrorResponse  "Empty model response"
// @Failure     502  {object}  handlers.ErrorResponse  "AI provider unavailable"
// @Router      /analyze [post]
func (h *Handlers) Analyze(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	out, err := h.analysisSvc.Analyze(c.Request.Context(), req.Messages)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidInput):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no analyzable messages provided")
		case errors.Is(err, services.ErrUpstreamUnavailable):
			fail(c, http.StatusBadGateway, ErrCodeUpstream, "AI provider is unavailable")
		case errors.Is(err, services.ErrEmptyResult):
			fail(c, http.StatusInternalServerError, ErrCodeEmptyResult, "the model returned no analysis")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "analysis failed")
		}
		return
	}

	ok(c, http.StatusOK, AnalyzeResponse{Analysis: out})
}
