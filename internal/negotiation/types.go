// Package negotiation implements the settlement negotiation engine: the
// round-bounded offer/counter-offer state machine, its consensus rules, and
// the session lifecycle around them.
package negotiation

import "time"

type Status string

const (
	StatusActive             Status = "active"
	StatusCompletedAccepted  Status = "completed_accepted"
	StatusCompletedFailed    Status = "completed_failed"
	StatusCompletedMaxRounds Status = "completed_max_rounds"
	StatusCancelled          Status = "cancelled"
	StatusExpired            Status = "expired"
)

// Terminal reports whether no further state transition can occur. Every
// status other than active is absorbing.
func (s Status) Terminal() bool { return s != StatusActive }

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompletedAccepted, StatusCompletedFailed,
		StatusCompletedMaxRounds, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

type ResponseType string

const (
	ResponseAccept  ResponseType = "accept"
	ResponseReject  ResponseType = "reject"
	ResponseCounter ResponseType = "counter"
)

func (t ResponseType) Valid() bool {
	switch t {
	case ResponseAccept, ResponseReject, ResponseCounter:
		return true
	}
	return false
}

// Offer is the structured settlement payload exchanged between parties. The
// engine treats it as opaque apart from carrying it between rounds.
type Offer struct {
	Amount   float64           `json:"amount"`
	Currency string            `json:"currency,omitempty"`
	Terms    map[string]string `json:"terms,omitempty"`
}

type Party struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
}

type Session struct {
	SessionID          string    `json:"session_id"`
	CaseID             string    `json:"case_id"`
	Parties            []Party   `json:"parties"`
	CurrentRound       int       `json:"current_round"`
	MaxRounds          int       `json:"max_rounds"`
	Status             Status    `json:"status"`
	Deadline           time.Time `json:"deadline"`
	AllowCounterOffers bool      `json:"allow_counter_offers"`
	CurrentOffer       Offer     `json:"current_offer"`
	InitiatorID        string    `json:"initiator_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	// Version guards concurrent transitions: every session update is a
	// compare-and-swap on this field at the storage layer.
	Version int64 `json:"version"`
}

func (s *Session) IsParty(userID string) bool {
	for _, p := range s.Parties {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Response is one party's answer to the current offer in one round. At most
// one exists per (session, party, round); resubmission before the round
// closes overwrites it.
type Response struct {
	ResponseID  string       `json:"response_id"`
	SessionID   string       `json:"session_id"`
	PartyID     string       `json:"party_id"`
	Round       int          `json:"round"`
	Type        ResponseType `json:"type"`
	Offer       *Offer       `json:"offer,omitempty"` // set iff Type == counter
	Message     string       `json:"message,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
}

// Suggestion is an advisory compromise produced by the advisor collaborator.
// It is never applied to a session by the engine; a party may submit it as
// their own counter.
type Suggestion struct {
	SuggestionID string    `json:"suggestion_id"`
	SessionID    string    `json:"session_id"`
	Round        int       `json:"round"`
	Offer        Offer     `json:"offer"`
	Reasoning    string    `json:"reasoning"`
	Confidence   float64   `json:"confidence"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Event is an audit record; terminal sessions still accept event appends.
type Event struct {
	EventID    string         `json:"event_id"`
	SessionID  string         `json:"session_id"`
	Type       string         `json:"type"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Audit event types.
const (
	EventCreated            = "SESSION_CREATED"
	EventResponseRecorded   = "RESPONSE_RECORDED"
	EventRoundAdvanced      = "ROUND_ADVANCED"
	EventSettled            = "SETTLED"
	EventFailed             = "FAILED"
	EventMaxRoundsReached   = "MAX_ROUNDS_REACHED"
	EventExpired            = "EXPIRED"
	EventCancelled          = "CANCELLED"
	EventDeadlineExtended   = "DEADLINE_EXTENDED"
	EventSuggestionRecorded = "SUGGESTION_RECORDED"
	EventDocumentRequested  = "DOCUMENT_REQUESTED"
	EventDocumentFailed     = "DOCUMENT_FAILED"
)

// MaxMessageLen bounds the free-text message attached to a response.
const MaxMessageLen = 2000
