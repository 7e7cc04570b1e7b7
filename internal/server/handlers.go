package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Ghostified/webhook-tracker-kati/internal/tracker"
)

var errNoPayload = errors.New("no JSON payload")

type webhookResponse struct {
	Received   bool           `json:"received"`
	TicketID   string         `json:"ticket_id"`
	HasChanges bool           `json:"has_changes"`
	Changes    map[string]any `json:"changes"`
}

func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		userID = DefaultUser
	}

	// Cap body size
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	payload, err := decodePayload(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.tickets.Receive(r.Context(), userID, payload)
	if errors.Is(err, tracker.ErrMissingID) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Printf("failed to store ticket for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to store ticket")
		return
	}

	s.logChanges(userID, res)
	writeJSON(w, http.StatusOK, webhookResponse{
		Received:   true,
		TicketID:   res.TicketID,
		HasChanges: res.HasChanges(),
		Changes:    res.Changes,
	})
}

// decodePayload accepts a non-empty JSON object.
func decodePayload(body []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNoPayload
	}
	var payload map[string]any
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON: %v", err)
	}
	if len(payload) == 0 {
		return nil, errNoPayload
	}
	return payload, nil
}

func (s *Server) logChanges(userID string, res tracker.Result) {
	if !res.HasChanges() {
		s.logger.Printf("Ticket %s (%s) updated (no changes)", res.TicketID, userID)
		return
	}
	if res.FirstReceived {
		s.logger.Printf("Ticket %s (%s) received for the first time", res.TicketID, userID)
		return
	}
	for field, change := range res.Changes {
		if c, ok := change.(tracker.Change); ok {
			s.logger.Printf("Ticket %s (%s) %s: '%v' -> '%v'", res.TicketID, userID, field, c.Old, c.New)
		}
	}
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	tickets, err := s.tickets.All(r.Context(), userID)
	if err != nil {
		s.logger.Printf("failed to list tickets for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load tickets")
		return
	}

	if step := r.URL.Query().Get("step"); step != "" {
		for id, t := range tickets {
			if v, _ := t["step"].(string); v != step {
				delete(tickets, id)
			}
		}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) getTicket(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ticketID := chi.URLParam(r, "ticketID")

	t, err := s.tickets.Get(r.Context(), userID, ticketID)
	if errors.Is(err, tracker.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Ticket not found")
		return
	}
	if err != nil {
		s.logger.Printf("failed to load ticket %s for %s: %v", ticketID, userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load ticket")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) clearTickets(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	n, err := s.tickets.Clear(r.Context(), userID)
	if err != nil {
		s.logger.Printf("failed to clear tickets for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to clear tickets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true, "removed": n})
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	count, err := s.tickets.Count(r.Context(), "")
	if err != nil {
		s.logger.Printf("failed to count tickets: %v", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<h1>Ticket Webhook Tracker</h1><p>Total tickets: %d</p><a href='/tickets/%s'>View All Tickets</a>",
		count, html.EscapeString(DefaultUser))
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]any{"status": "ok"}
	if stats, err := s.bus.GetStats(ctx); err == nil {
		resp["bus"] = stats
	}
	if err := s.bus.HealthCheck(ctx); err != nil {
		resp["status"] = "degraded"
		resp["bus_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(message)})
}
