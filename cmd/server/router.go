package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Yaswanth9347/ai-dispute-sub002/internal/apperr"
	"github.com/Yaswanth9347/ai-dispute-sub002/internal/idempotency"
	"github.com/Yaswanth9347/ai-dispute-sub002/internal/negotiation"
	"github.com/Yaswanth9347/ai-dispute-sub002/internal/tally"
	"github.com/Yaswanth9347/ai-dispute-sub002/pkg/httpx"
)

type app struct {
	svc   *negotiation.Service
	votes *tally.Engine
	auth  authenticator
	idem  idempotency.Store
	log   *zap.Logger
}

func newRouter(a *app) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/negotiation/v1", func(api chi.Router) {
		api.Use(a.requireUser)

		api.Post("/sessions", a.handleCreateSession)
		api.Get("/sessions", a.handleListSessions)
		api.Get("/sessions/{session_id}", a.handleGetSession)
		api.Post("/sessions/{session_id}/responses", a.handleSubmitResponse)
		api.Post("/sessions/{session_id}/suggest", a.handleSuggest)
		api.Get("/sessions/{session_id}/suggestions", a.handleListSuggestions)
		api.Post("/sessions/{session_id}/extend", a.handleExtendDeadline)
		api.Post("/sessions/{session_id}/cancel", a.handleCancel)
		api.Get("/sessions/{session_id}/events", a.handleListEvents)

		api.Post("/cases/{case_id}/analyses/{analysis_id}/votes", a.handleCastVote)
		api.Get("/cases/{case_id}/analyses/{analysis_id}/tally", a.handleGetTally)

		api.Get("/analytics", a.handleAnalytics)
	})
	return r
}

func (a *app) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := a.auth.authenticate(r)
		if err != nil {
			if errors.Is(err, errUnauthorized) {
				httpx.WriteError(w, 401, "UNAUTHORIZED", "missing or unknown bearer token", nil)
				return
			}
			a.log.Error("authentication lookup failed", zap.Error(err))
			httpx.WriteError(w, 500, "INTERNAL", "authentication unavailable", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, uid)))
	})
}

func (a *app) writeErr(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", zap.Error(err))
		httpx.WriteError(w, status, "INTERNAL", "internal error", nil)
		return
	}
	httpx.WriteError(w, status, apperr.CodeOf(err), err.Error(), nil)
}

// replayOrRun wraps a mutating handler body with Idempotency-Key replay.
func (a *app) replayOrRun(w http.ResponseWriter, r *http.Request, endpoint string, run func() (int, map[string]any, error)) {
	uid := userID(r.Context())
	key := r.Header.Get("Idempotency-Key")

	status, body, found, err := idempotency.Replay(r.Context(), a.idem, uid, key, endpoint)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	if found {
		httpx.WriteJSON(w, status, body)
		return
	}

	status, body, err = run()
	if err != nil {
		a.writeErr(w, err)
		return
	}
	if err := idempotency.Save(r.Context(), a.idem, uid, key, endpoint, status, body); err != nil {
		a.log.Warn("idempotency record not saved", zap.String("endpoint", endpoint), zap.Error(err))
	}
	httpx.WriteJSON(w, status, body)
}

func (a *app) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaseID             string              `json:"case_id"`
		Parties            []negotiation.Party `json:"parties"`
		InitialOffer       negotiation.Offer   `json:"initial_offer"`
		MaxRounds          int                 `json:"max_rounds"`
		Deadline           time.Time           `json:"deadline"`
		AllowCounterOffers bool                `json:"allow_counter_offers"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	a.replayOrRun(w, r, "POST /sessions", func() (int, map[string]any, error) {
		s, err := a.svc.CreateSession(r.Context(), negotiation.CreateParams{
			CaseID:             req.CaseID,
			InitiatorID:        userID(r.Context()),
			Parties:            req.Parties,
			InitialOffer:       req.InitialOffer,
			MaxRounds:          req.MaxRounds,
			Deadline:           req.Deadline,
			AllowCounterOffers: req.AllowCounterOffers,
		})
		if err != nil {
			return 0, nil, err
		}
		return 201, map[string]any{"request_id": httpx.NewRequestID(), "session": s}, nil
	})
}

func (a *app) handleListSessions(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("case_id")
	if caseID == "" {
		httpx.WriteError(w, 400, "CASE_ID_REQUIRED", "case_id query parameter is required", nil)
		return
	}
	status := negotiation.Status(r.URL.Query().Get("status"))
	sessions, err := a.svc.ListSessions(r.Context(), caseID, userID(r.Context()), status)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "sessions": sessions})
}

func (a *app) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.GetSession(r.Context(), chi.URLParam(r, "session_id"), userID(r.Context()))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "session": view})
}

func (a *app) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	var req struct {
		Type    string             `json:"type"`
		Offer   *negotiation.Offer `json:"offer,omitempty"`
		Message string             `json:"message,omitempty"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	a.replayOrRun(w, r, "POST /sessions/"+sessionID+"/responses", func() (int, map[string]any, error) {
		s, resp, err := a.svc.SubmitResponse(r.Context(), negotiation.SubmitParams{
			SessionID: sessionID,
			PartyID:   userID(r.Context()),
			Type:      negotiation.ResponseType(req.Type),
			Offer:     req.Offer,
			Message:   req.Message,
		})
		if err != nil {
			return 0, nil, err
		}
		return 200, map[string]any{
			"request_id": httpx.NewRequestID(),
			"response":   resp,
			"session":    s,
		}, nil
	})
}

func (a *app) handleSuggest(w http.ResponseWriter, r *http.Request) {
	sug, advisorErr, err := a.svc.Suggest(r.Context(), chi.URLParam(r, "session_id"), userID(r.Context()))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	body := map[string]any{"request_id": httpx.NewRequestID(), "suggestion": sug}
	if advisorErr != "" {
		// degraded, not an error: the negotiation continues without advice
		body["advisor_error"] = advisorErr
	}
	httpx.WriteJSON(w, 200, body)
}

func (a *app) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	sugs, err := a.svc.ListSuggestions(r.Context(), chi.URLParam(r, "session_id"), userID(r.Context()))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "suggestions": sugs})
}

func (a *app) handleExtendDeadline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewDeadline time.Time `json:"new_deadline"`
		Reason      string    `json:"reason,omitempty"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	s, err := a.svc.ExtendDeadline(r.Context(), chi.URLParam(r, "session_id"), userID(r.Context()), req.NewDeadline, req.Reason)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "session": s})
}

func (a *app) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason,omitempty"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	s, err := a.svc.Cancel(r.Context(), chi.URLParam(r, "session_id"), userID(r.Context()), req.Reason)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "session": s})
}

func (a *app) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.svc.ListEvents(r.Context(), chi.URLParam(r, "session_id"), userID(r.Context()))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "events": events})
}

func (a *app) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OptionID string `json:"option_id"`
		Decision string `json:"decision"`
		Note     string `json:"note,omitempty"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	v, err := a.votes.CastVote(r.Context(), tally.CastParams{
		CaseID:     chi.URLParam(r, "case_id"),
		AnalysisID: chi.URLParam(r, "analysis_id"),
		OptionID:   req.OptionID,
		PartyID:    userID(r.Context()),
		Decision:   tally.Decision(req.Decision),
		Note:       req.Note,
	})
	if err != nil {
		a.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "vote": v})
}

func (a *app) handleGetTally(w http.ResponseWriter, r *http.Request) {
	result, err := a.votes.Tally(r.Context(), chi.URLParam(r, "case_id"), chi.URLParam(r, "analysis_id"))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "tally": result})
}

func (a *app) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Stats(r.Context())
	if err != nil {
		a.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "stats": stats})
}
