// generate_handler.go implements POST /api/images/generate, the entry point
// of the generation pipeline.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"imageforge/admission"
	"imageforge/core"
	"imageforge/db"
	"imageforge/pipeline"

	"go.uber.org/zap"
)

// generateRequest is the JSON body of a generation request.
type generateRequest struct {
	Prompt    string   `json:"prompt"`
	Original  string   `json:"original"`
	PromptID  string   `json:"promptId"`
	Providers []string `json:"providers"`
	Guidance  int      `json:"guidance"`
	UserID    string   `json:"userId"`
}

// generateResponse is the success payload.
type generateResponse struct {
	Success   bool                      `json:"success"`
	RequestID string                    `json:"requestId"`
	Results   []pipeline.ProviderResult `json:"results"`
	Duration  int64                     `json:"duration"`
}

// validationResponse is the 400 payload carrying every violation found.
type validationResponse struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// rateLimitResponse is the 429 payload. RetryAfter is in seconds, matching
// the Retry-After header.
type rateLimitResponse struct {
	Error      string `json:"error"`
	RetryAfter int64  `json:"retryAfter"`
	Limit      int    `json:"limit"`
	WindowMs   int64  `json:"windowMs"`
}

// handleGenerate runs the full request flow: decode, validate, admit,
// enqueue, and wait for the outcome.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, validationResponse{
			Success: false,
			Errors:  []string{"Request body must be valid JSON"},
		})
		return
	}

	req := &pipeline.GenerationRequest{
		Prompt:    body.Prompt,
		Original:  body.Original,
		PromptID:  body.PromptID,
		Providers: body.Providers,
		Guidance:  body.Guidance,
		UserID:    body.UserID,
	}

	// Validation reports the complete violation list in one response
	if err := s.validator.Validate(req); err != nil {
		verr, _ := core.IsValidationError(err)
		s.metrics.IncValidationFailed()
		s.logger.Debug("request failed validation",
			zap.Strings("violations", verr.Violations))
		s.writeJSON(w, http.StatusBadRequest, validationResponse{
			Success: false,
			Errors:  verr.Violations,
		})
		return
	}
	s.validator.ApplyDefaults(req)

	identity := admission.Identity{
		UserID:   firstNonEmpty(body.UserID, r.Header.Get("X-User-ID")),
		IP:       getClientIP(r),
		AdminKey: r.Header.Get("X-Admin-Key"),
	}
	req.UserID = identity.UserID

	decision, err := s.limiter.Admit(r.Context(), identity)
	if err != nil {
		if _, ok := core.IsAdmissionError(err); ok {
			s.writeRateLimited(w, decision)
			return
		}
		s.logger.Error("admission check failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.setRateLimitHeaders(w, decision)

	outcome, err := s.submit(req)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrQueueFull):
			s.writeError(w, http.StatusServiceUnavailable, "Server is at capacity, try again later")
		case errors.Is(err, pipeline.ErrQueueClosed):
			s.writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		default:
			s.logger.Error("failed to submit request", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	if outcome.State != pipeline.StateSucceeded {
		s.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success":   false,
			"requestId": outcome.RequestID,
			"results":   outcome.Results,
			"duration":  outcome.Duration.Milliseconds(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, generateResponse{
		Success:   true,
		RequestID: outcome.RequestID,
		Results:   outcome.Results,
		Duration:  outcome.Duration.Milliseconds(),
	})
}

// submit enqueues the request and blocks until its outcome arrives or the
// client gives up.
func (s *Server) submit(req *pipeline.GenerationRequest) (pipeline.Outcome, error) {
	result, err := s.pipeline.Submit(req)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	return <-result, nil
}

// handleGetImage implements GET /api/images/{id}.
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := s.repo.GetImage(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrImageNotFound) {
			s.writeError(w, http.StatusNotFound, "Image not found")
			return
		}
		s.logger.Error("failed to load image", zap.String("image_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        record.ID,
		"userId":    record.UserID,
		"prompt":    record.Prompt,
		"imageUrl":  record.ImageURL,
		"provider":  record.Provider,
		"model":     record.Model,
		"guidance":  record.Guidance,
		"rating":    record.Rating,
		"tags":      record.Tags,
		"taggedAt":  record.TaggedAt,
		"createdAt": record.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// setRateLimitHeaders attaches the standard rate limit headers to every
// admitted response so clients can pace themselves.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, decision admission.Decision) {
	w.Header().Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	w.Header().Set("RateLimit-Reset", strconv.FormatInt(int64(decision.RetryAfter.Seconds()+0.5), 10))
}

// writeRateLimited sends the 429 response with retry timing in both the body
// and the Retry-After header, rounded up to whole seconds.
func (s *Server) writeRateLimited(w http.ResponseWriter, decision admission.Decision) {
	retryAfterSec := int64(decision.RetryAfter.Seconds() + 0.5)
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	s.setRateLimitHeaders(w, decision)
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSec, 10))
	s.writeJSON(w, http.StatusTooManyRequests, rateLimitResponse{
		Error:      fmt.Sprintf("Rate limit exceeded: %d requests per %s", decision.Limit, decision.Window),
		RetryAfter: retryAfterSec,
		Limit:      decision.Limit,
		WindowMs:   decision.Window.Milliseconds(),
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
