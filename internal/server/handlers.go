package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-github/v57/github"

	"dokpub/internal/history"
	"dokpub/internal/project"
	"dokpub/internal/trigger"
)

const (
	MaxPayloadBytes    = 1_000_000 // 1 MB
	RecentTriggerLimit = 10        // records returned by the status endpoint
)

// HandleWebhook handles GitHub push webhooks and relays them as Dokploy
// deploy triggers.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	projectName := chi.URLParam(r, "projectName")

	if err := project.ValidateProjectName(projectName); err != nil {
		s.Logger.Warn("Invalid project name in webhook request", "project", projectName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid project name: %v", err)})
		return
	}

	proj, err := s.Registry.Get(projectName)
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown project"})
		return
	}

	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}

	// ValidatePayload checks the HMAC-SHA256 signature header against the
	// project secret in constant time.
	payload, err := github.ValidatePayload(r, []byte(proj.Secret))
	if err != nil {
		s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid signature"})
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		s.Logger.Error("Failed to parse webhook payload", "error", err, "project", projectName)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
		return
	}

	push, ok := event.(*github.PushEvent)
	if !ok {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Ignoring non-push event"})
		return
	}

	if !proj.MatchesRef(push.GetRef()) {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Not target branch, skipping"})
		return
	}

	if !s.Locks.TryLock(projectName) {
		s.Logger.Warn("Trigger already in flight, rejecting", "project", projectName)

		if s.History != nil {
			if _, err := s.History.Insert(r.Context(), &history.Record{
				Project:      projectName,
				Transport:    proj.Transport.String(),
				Ref:          push.GetRef(),
				Status:       history.StatusBusy,
				ErrorMessage: stringPtr("Trigger already in flight"),
			}); err != nil {
				s.Logger.Error("Failed to record busy rejection", "error", err, "project", projectName)
			}
		}

		s.respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Trigger already in flight"})
		return
	}

	// Acknowledge before triggering: GitHub webhooks time out after 10
	// seconds, and the trigger call has its own timeout.
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"message": "Trigger accepted",
		"project": projectName,
	})

	s.triggerWg.Add(1)
	go func() {
		defer s.triggerWg.Done()
		defer s.Locks.Unlock(projectName)
		s.executeTrigger(context.Background(), proj, push)
	}()
}

// executeTrigger performs the deploy trigger call and records the outcome.
func (s *Server) executeTrigger(ctx context.Context, proj *project.Project, push *github.PushEvent) {
	start := time.Now()

	result := s.Trigger.Trigger(ctx, proj.PublishConfig())
	duration := time.Since(start).Seconds()

	var status string
	var errorMsg *string
	switch result.Outcome {
	case trigger.Success:
		status = history.StatusSuccess
	case trigger.Rejected:
		status = history.StatusRejected
		errorMsg = stringPtr(result.Reason())
	default:
		status = history.StatusTransportFailure
		errorMsg = stringPtr(result.Reason())
	}

	if s.History != nil {
		_, err := s.History.Insert(ctx, &history.Record{
			Project:         proj.Name,
			Transport:       proj.Transport.String(),
			Ref:             push.GetRef(),
			Status:          status,
			DurationSeconds: &duration,
			CommitHash:      stringPtrOrNil(push.GetAfter()),
			ErrorMessage:    errorMsg,
		})
		if err != nil {
			s.Logger.Error("Failed to record trigger history", "error", err, "project", proj.Name)
		}
	}

	if result.OK() {
		s.Logger.Info("trigger completed", "project", proj.Name, "status", status)
	} else {
		s.Logger.Error("trigger failed", "project", proj.Name, "status", status, "reason", result.Reason())
	}
}

// HandleHealth handles health check requests.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":        "ok",
		"projects":      s.Registry.List(),
		"project_count": s.Registry.Count(),
	}
	s.respondJSON(w, http.StatusOK, response)
}

// HandleStatus handles trigger status requests.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	projectName := chi.URLParam(r, "projectName")

	if err := project.ValidateProjectName(projectName); err != nil {
		s.Logger.Warn("Invalid project name in status request", "project", projectName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid project name: %v", err)})
		return
	}

	if _, err := s.Registry.Get(projectName); err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown project"})
		return
	}

	if s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "History not available"})
		return
	}

	latest, err := s.History.Latest(r.Context(), projectName)
	if err != nil {
		s.Logger.Error("Failed to get latest trigger", "error", err, "project", projectName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch trigger status"})
		return
	}

	recent, err := s.History.ForProject(r.Context(), projectName, RecentTriggerLimit)
	if err != nil {
		s.Logger.Error("Failed to get trigger history", "error", err, "project", projectName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch trigger status"})
		return
	}

	response := map[string]interface{}{
		"project":         projectName,
		"latest_trigger":  latest,
		"recent_triggers": recent,
	}
	s.respondJSON(w, http.StatusOK, response)
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

func stringPtr(s string) *string {
	return &s
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
