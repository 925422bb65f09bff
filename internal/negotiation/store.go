package negotiation

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("negotiation session not found")

	// ErrVersionConflict is returned by Store.UpdateSession when the stored
	// version no longer matches the expected one, meaning another writer
	// transitioned the session first.
	ErrVersionConflict = errors.New("session version conflict")
)

// Store is the persistence collaborator for sessions, responses,
// suggestions, and audit events. UpdateSession must be an atomic
// compare-and-swap on Session.Version.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, sessionID string) (Session, error)
	ListSessions(ctx context.Context, caseID string, status Status) ([]Session, error)
	// UpdateSession persists s (with s.Version already incremented by the
	// caller) iff the stored version equals expectedVersion.
	UpdateSession(ctx context.Context, s Session, expectedVersion int64) error
	// ListExpiredActive returns active sessions whose deadline is at or
	// before now, oldest deadline first.
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]Session, error)

	UpsertResponse(ctx context.Context, r Response) error
	ListResponses(ctx context.Context, sessionID string, round int) ([]Response, error)
	ListAllResponses(ctx context.Context, sessionID string) ([]Response, error)

	SaveSuggestion(ctx context.Context, s Suggestion) error
	ListSuggestions(ctx context.Context, sessionID string) ([]Suggestion, error)

	AddEvent(ctx context.Context, e Event) error
	ListEvents(ctx context.Context, sessionID string) ([]Event, error)

	SessionStats(ctx context.Context) (Stats, error)
}

// Stats backs the analytics endpoint.
type Stats struct {
	ByStatus         map[Status]int `json:"by_status"`
	Total            int            `json:"total"`
	SettledCount     int            `json:"settled_count"`
	AvgRoundsSettled float64        `json:"avg_rounds_to_settlement"`
}

// PartyDirectory is the case/party membership collaborator.
type PartyDirectory interface {
	ListParties(ctx context.Context, caseID string) ([]Party, error)
}

// Advisor is the compromise-suggestion collaborator. Failures degrade to "no
// suggestion available" and never affect session state.
type Advisor interface {
	Suggest(ctx context.Context, req AdvisorRequest) (AdvisorResult, error)
}

type AdvisorRequest struct {
	SessionID    string     `json:"session_id"`
	CaseID       string     `json:"case_id"`
	Round        int        `json:"round"`
	CurrentOffer Offer      `json:"current_offer"`
	History      []Response `json:"history"`
}

type AdvisorResult struct {
	ProposedOffer Offer   `json:"proposed_offer"`
	Reasoning     string  `json:"reasoning"`
	Confidence    float64 `json:"confidence"`
}

// Notifier delivers fire-and-forget party notifications. Implementations
// must swallow delivery failures; a lost notification never rolls back a
// negotiation state change.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type Notification struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id"`
	CaseID    string  `json:"case_id"`
	Parties   []Party `json:"parties"`
	Detail    string  `json:"detail,omitempty"`
}

// DocumentGenerator renders the settlement document for an accepted session.
type DocumentGenerator interface {
	Generate(ctx context.Context, req DocumentRequest) (documentID string, err error)
}

type DocumentRequest struct {
	SessionID  string  `json:"session_id"`
	CaseID     string  `json:"case_id"`
	FinalOffer Offer   `json:"final_offer"`
	OfferHash  string  `json:"offer_hash"`
	Parties    []Party `json:"parties"`
}
