package negotiation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Yaswanth9347/ai-dispute-sub002/internal/apperr"
	"github.com/Yaswanth9347/ai-dispute-sub002/pkg/offerhash"
)

// sweepConcurrency bounds how many sessions one sweep expires in parallel.
const sweepConcurrency = 8

// Service is the session lifecycle manager. All session mutations funnel
// through it; round closure runs under a per-session lock plus the store's
// version CAS, so concurrent final responses and the deadline sweep cannot
// double-advance a round or double-trigger settlement.
type Service struct {
	store    Store
	dir      PartyDirectory
	advisor  Advisor
	notifier Notifier
	docs     DocumentGenerator
	log      *zap.Logger

	locks        *lockTable
	maxExtension time.Duration
	now          func() time.Time
}

type Deps struct {
	Store     Store
	Directory PartyDirectory
	Advisor   Advisor
	Notifier  Notifier
	Documents DocumentGenerator
	Logger    *zap.Logger

	// MaxDeadlineExtension bounds extendDeadline; zero means 30 days.
	MaxDeadlineExtension time.Duration

	// Now overrides the clock; nil means time.Now. Tests use this to pin
	// deadlines.
	Now func() time.Time
}

func NewService(d Deps) *Service {
	maxExt := d.MaxDeadlineExtension
	if maxExt <= 0 {
		maxExt = 30 * 24 * time.Hour
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:        d.Store,
		dir:          d.Directory,
		advisor:      d.Advisor,
		notifier:     d.Notifier,
		docs:         d.Documents,
		log:          log,
		locks:        newLockTable(),
		maxExtension: maxExt,
		now:          now,
	}
}

type CreateParams struct {
	CaseID             string
	InitiatorID        string
	Parties            []Party
	InitialOffer       Offer
	MaxRounds          int
	Deadline           time.Time
	AllowCounterOffers bool
}

func (svc *Service) CreateSession(ctx context.Context, p CreateParams) (Session, error) {
	now := svc.now()
	if len(p.Parties) < 2 {
		return Session{}, apperr.Validation("PARTIES_REQUIRED", "a negotiation needs at least two parties, got %d", len(p.Parties))
	}
	if p.MaxRounds < 1 {
		return Session{}, apperr.Validation("MAX_ROUNDS_INVALID", "max_rounds must be at least 1, got %d", p.MaxRounds)
	}
	if !p.Deadline.After(now) {
		return Session{}, apperr.Validation("DEADLINE_PAST", "deadline must be in the future")
	}
	seen := make(map[string]struct{}, len(p.Parties))
	for _, party := range p.Parties {
		if party.UserID == "" {
			return Session{}, apperr.Validation("PARTY_INVALID", "party user_id is required")
		}
		if _, dup := seen[party.UserID]; dup {
			return Session{}, apperr.Validation("PARTY_DUPLICATE", "duplicate party %s", party.UserID)
		}
		seen[party.UserID] = struct{}{}
	}
	if _, ok := seen[p.InitiatorID]; !ok {
		return Session{}, apperr.Forbidden("NOT_A_PARTY", "initiator %s is not a listed party", p.InitiatorID)
	}

	// Every listed party, the initiator included, must be a recognized
	// member of the case.
	members, err := svc.dir.ListParties(ctx, p.CaseID)
	if err != nil {
		return Session{}, fmt.Errorf("resolve case parties: %w", err)
	}
	memberSet := make(map[string]struct{}, len(members))
	for _, m := range members {
		memberSet[m.UserID] = struct{}{}
	}
	for _, party := range p.Parties {
		if _, ok := memberSet[party.UserID]; !ok {
			return Session{}, apperr.Validation("UNKNOWN_PARTY", "%s is not a party of case %s", party.UserID, p.CaseID)
		}
	}

	s := Session{
		SessionID:          "ses_" + uuid.NewString(),
		CaseID:             p.CaseID,
		Parties:            p.Parties,
		CurrentRound:       1,
		MaxRounds:          p.MaxRounds,
		Status:             StatusActive,
		Deadline:           p.Deadline.UTC(),
		AllowCounterOffers: p.AllowCounterOffers,
		CurrentOffer:       p.InitialOffer,
		InitiatorID:        p.InitiatorID,
		CreatedAt:          now.UTC(),
		UpdatedAt:          now.UTC(),
		Version:            1,
	}
	if err := svc.store.CreateSession(ctx, s); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	svc.addEvent(ctx, s.SessionID, EventCreated, p.InitiatorID, map[string]any{
		"case_id": s.CaseID, "max_rounds": s.MaxRounds, "deadline": s.Deadline,
	})
	svc.notify(ctx, s, "session_created", "")
	return s, nil
}

// PartyView decorates a party with its derived per-round state.
type PartyView struct {
	Party
	HasRespondedThisRound bool `json:"has_responded_this_round"`
}

type SessionView struct {
	Session
	PartyViews []PartyView `json:"party_views"`
}

func (svc *Service) GetSession(ctx context.Context, sessionID, callerID string) (SessionView, error) {
	s, err := svc.getSession(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if !s.IsParty(callerID) {
		return SessionView{}, apperr.Forbidden("NOT_A_PARTY", "%s is not a party of session %s", callerID, sessionID)
	}
	responses, err := svc.store.ListResponses(ctx, sessionID, s.CurrentRound)
	if err != nil {
		return SessionView{}, fmt.Errorf("list responses: %w", err)
	}
	responded := make(map[string]struct{}, len(responses))
	for _, r := range responses {
		responded[r.PartyID] = struct{}{}
	}
	view := SessionView{Session: s}
	for _, p := range s.Parties {
		_, ok := responded[p.UserID]
		view.PartyViews = append(view.PartyViews, PartyView{Party: p, HasRespondedThisRound: ok})
	}
	return view, nil
}

func (svc *Service) ListSessions(ctx context.Context, caseID, callerID string, status Status) ([]Session, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("STATUS_INVALID", "unknown status %q", status)
	}
	members, err := svc.dir.ListParties(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("resolve case parties: %w", err)
	}
	isMember := false
	for _, m := range members {
		if m.UserID == callerID {
			isMember = true
			break
		}
	}
	if !isMember {
		return nil, apperr.Forbidden("NOT_A_PARTY", "%s is not a party of case %s", callerID, caseID)
	}
	return svc.store.ListSessions(ctx, caseID, status)
}

type SubmitParams struct {
	SessionID string
	PartyID   string
	Type      ResponseType
	Offer     *Offer
	Message   string
}

// SubmitResponse records one party's answer for the current round (upsert:
// a party may change their mind until the round closes) and then runs the
// round-closure check.
func (svc *Service) SubmitResponse(ctx context.Context, p SubmitParams) (Session, Response, error) {
	release := svc.locks.acquire(p.SessionID)
	defer release()

	s, err := svc.getSession(ctx, p.SessionID)
	if err != nil {
		return Session{}, Response{}, err
	}
	if !s.IsParty(p.PartyID) {
		return Session{}, Response{}, apperr.Forbidden("NOT_A_PARTY", "%s is not a party of session %s", p.PartyID, p.SessionID)
	}
	if s.Status != StatusActive {
		return Session{}, Response{}, apperr.Conflict("SESSION_NOT_ACTIVE", "session %s is %s", p.SessionID, s.Status)
	}
	if !p.Type.Valid() {
		return Session{}, Response{}, apperr.Validation("RESPONSE_TYPE_INVALID", "unknown response type %q", p.Type)
	}
	if len(p.Message) > MaxMessageLen {
		return Session{}, Response{}, apperr.Validation("MESSAGE_TOO_LONG", "message exceeds %d bytes", MaxMessageLen)
	}
	switch p.Type {
	case ResponseCounter:
		if p.Offer == nil {
			return Session{}, Response{}, apperr.Validation("COUNTER_OFFER_REQUIRED", "a counter response needs an offer payload")
		}
		if !s.AllowCounterOffers {
			return Session{}, Response{}, apperr.Validation("COUNTERS_DISABLED", "session %s does not allow counter-offers", p.SessionID)
		}
	case ResponseAccept, ResponseReject:
		if p.Offer != nil {
			return Session{}, Response{}, apperr.Validation("OFFER_NOT_ALLOWED", "offer payload is only valid on a counter response")
		}
	}

	resp := Response{
		ResponseID:  "resp_" + ulid.Make().String(),
		SessionID:   s.SessionID,
		PartyID:     p.PartyID,
		Round:       s.CurrentRound,
		Type:        p.Type,
		Offer:       p.Offer,
		Message:     p.Message,
		SubmittedAt: svc.now().UTC(),
	}
	if err := svc.store.UpsertResponse(ctx, resp); err != nil {
		return Session{}, Response{}, fmt.Errorf("record response: %w", err)
	}
	svc.addEvent(ctx, s.SessionID, EventResponseRecorded, p.PartyID, map[string]any{
		"round": resp.Round, "type": string(resp.Type),
	})

	s, err = svc.closeRoundLocked(ctx, s, false)
	if err != nil {
		return Session{}, Response{}, err
	}
	return s, resp, nil
}

// closeRoundLocked evaluates the current round and applies its outcome. The
// caller must hold the session lock.
func (svc *Service) closeRoundLocked(ctx context.Context, s Session, forced bool) (Session, error) {
	responses, err := svc.store.ListResponses(ctx, s.SessionID, s.CurrentRound)
	if err != nil {
		return Session{}, fmt.Errorf("list responses: %w", err)
	}
	res := EvaluateRound(s.Parties, responses, forced)

	switch res.Outcome {
	case RoundPending:
		return s, nil

	case RoundSettled:
		s.Status = StatusCompletedAccepted
		won, reloaded, err := svc.casUpdate(ctx, s)
		if err != nil {
			return Session{}, err
		}
		if !won {
			return reloaded, nil
		}
		svc.addEvent(ctx, s.SessionID, EventSettled, "", map[string]any{"round": s.CurrentRound})
		svc.notify(ctx, s, "settlement_reached", "")
		svc.triggerDocument(ctx, s)
		return s, nil

	case RoundAdvance:
		next := s.CurrentRound + 1
		if next > s.MaxRounds {
			s.Status = StatusCompletedMaxRounds
			won, reloaded, err := svc.casUpdate(ctx, s)
			if err != nil {
				return Session{}, err
			}
			if !won {
				return reloaded, nil
			}
			svc.addEvent(ctx, s.SessionID, EventMaxRoundsReached, "", map[string]any{"rounds": s.MaxRounds})
			svc.notify(ctx, s, "max_rounds_reached", "")
			return s, nil
		}
		hash, _, _ := offerhash.Sum(res.NextOffer)
		s.CurrentRound = next
		s.CurrentOffer = *res.NextOffer
		won, reloaded, err := svc.casUpdate(ctx, s)
		if err != nil {
			return Session{}, err
		}
		if !won {
			return reloaded, nil
		}
		svc.addEvent(ctx, s.SessionID, EventRoundAdvanced, res.CounterBy, map[string]any{
			"round": next, "offer_hash": hash,
		})
		svc.notify(ctx, s, "round_advanced", "")
		return s, nil

	case RoundFailed:
		event, notice := EventFailed, "session_failed"
		s.Status = StatusCompletedFailed
		if forced {
			// Expiry is distinguished from an active rejection.
			s.Status = StatusExpired
			event, notice = EventExpired, "session_expired"
		}
		won, reloaded, err := svc.casUpdate(ctx, s)
		if err != nil {
			return Session{}, err
		}
		if !won {
			return reloaded, nil
		}
		svc.addEvent(ctx, s.SessionID, event, "", map[string]any{"round": s.CurrentRound})
		svc.notify(ctx, s, notice, "")
		return s, nil
	}
	return s, nil
}

func (svc *Service) ExtendDeadline(ctx context.Context, sessionID, requesterID string, newDeadline time.Time, reason string) (Session, error) {
	release := svc.locks.acquire(sessionID)
	defer release()

	s, err := svc.getSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if requesterID != s.InitiatorID {
		return Session{}, apperr.Forbidden("NOT_INITIATOR", "only the initiator may extend the deadline")
	}
	if s.Status.Terminal() {
		return Session{}, apperr.Conflict("SESSION_NOT_ACTIVE", "session %s is %s", sessionID, s.Status)
	}
	if !newDeadline.After(s.Deadline) {
		return Session{}, apperr.Validation("DEADLINE_NOT_LATER", "new deadline must be after the current one")
	}
	if newDeadline.Sub(s.Deadline) > svc.maxExtension {
		return Session{}, apperr.Validation("EXTENSION_TOO_LONG", "extension exceeds the %s maximum", svc.maxExtension)
	}

	old := s.Deadline
	s.Deadline = newDeadline.UTC()
	won, reloaded, err := svc.casUpdate(ctx, s)
	if err != nil {
		return Session{}, err
	}
	if !won {
		// Another writer transitioned the session first; the extension is
		// rejected rather than applied to a terminal session.
		if reloaded.Status.Terminal() {
			return Session{}, apperr.Conflict("SESSION_NOT_ACTIVE", "session %s is %s", sessionID, reloaded.Status)
		}
		return Session{}, apperr.Conflict("CONCURRENT_UPDATE", "session %s changed concurrently, retry", sessionID)
	}
	svc.addEvent(ctx, sessionID, EventDeadlineExtended, requesterID, map[string]any{
		"old_deadline": old, "new_deadline": s.Deadline, "reason": reason,
	})
	svc.notify(ctx, s, "deadline_extended", reason)
	return s, nil
}

// Cancel transitions an active session to cancelled. Cancelling a session
// that is already terminal is a no-op success so retries are harmless.
func (svc *Service) Cancel(ctx context.Context, sessionID, requesterID, reason string) (Session, error) {
	release := svc.locks.acquire(sessionID)
	defer release()

	s, err := svc.getSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if requesterID != s.InitiatorID {
		return Session{}, apperr.Forbidden("NOT_INITIATOR", "only the initiator may cancel the session")
	}
	if s.Status.Terminal() {
		return s, nil
	}

	s.Status = StatusCancelled
	won, reloaded, err := svc.casUpdate(ctx, s)
	if err != nil {
		return Session{}, err
	}
	if !won {
		return reloaded, nil
	}
	svc.addEvent(ctx, sessionID, EventCancelled, requesterID, map[string]any{"reason": reason})
	svc.notify(ctx, s, "session_cancelled", reason)
	return s, nil
}

// Suggest asks the compromise advisor for a proposal over the session's full
// round history. Advisor failures degrade: the returned advisorErr message
// is non-empty and no suggestion is recorded, but the call itself succeeds.
func (svc *Service) Suggest(ctx context.Context, sessionID, requesterID string) (*Suggestion, string, error) {
	s, err := svc.getSession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	if !s.IsParty(requesterID) {
		return nil, "", apperr.Forbidden("NOT_A_PARTY", "%s is not a party of session %s", requesterID, sessionID)
	}
	if s.Status != StatusActive {
		return nil, "", apperr.Conflict("SESSION_NOT_ACTIVE", "session %s is %s", sessionID, s.Status)
	}
	history, err := svc.store.ListAllResponses(ctx, sessionID)
	if err != nil {
		return nil, "", fmt.Errorf("list history: %w", err)
	}

	result, aerr := svc.advisor.Suggest(ctx, AdvisorRequest{
		SessionID:    s.SessionID,
		CaseID:       s.CaseID,
		Round:        s.CurrentRound,
		CurrentOffer: s.CurrentOffer,
		History:      history,
	})
	if aerr != nil {
		svc.log.Warn("compromise advisor unavailable",
			zap.String("session_id", sessionID), zap.Error(aerr))
		return nil, "advisor unavailable: " + aerr.Error(), nil
	}
	if math.IsNaN(result.Confidence) || result.Confidence < 0 || result.Confidence > 1 {
		svc.log.Warn("compromise advisor returned malformed confidence",
			zap.String("session_id", sessionID), zap.Float64("confidence", result.Confidence))
		return nil, "advisor returned malformed output", nil
	}

	sug := Suggestion{
		SuggestionID: "sug_" + uuid.NewString(),
		SessionID:    s.SessionID,
		Round:        s.CurrentRound,
		Offer:        result.ProposedOffer,
		Reasoning:    result.Reasoning,
		Confidence:   result.Confidence,
		GeneratedAt:  svc.now().UTC(),
	}
	if err := svc.store.SaveSuggestion(ctx, sug); err != nil {
		return nil, "", fmt.Errorf("save suggestion: %w", err)
	}
	svc.addEvent(ctx, sessionID, EventSuggestionRecorded, requesterID, map[string]any{
		"suggestion_id": sug.SuggestionID, "confidence": sug.Confidence,
	})
	return &sug, "", nil
}

func (svc *Service) ListSuggestions(ctx context.Context, sessionID, callerID string) ([]Suggestion, error) {
	s, err := svc.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.IsParty(callerID) {
		return nil, apperr.Forbidden("NOT_A_PARTY", "%s is not a party of session %s", callerID, sessionID)
	}
	return svc.store.ListSuggestions(ctx, sessionID)
}

func (svc *Service) ListEvents(ctx context.Context, sessionID, callerID string) ([]Event, error) {
	s, err := svc.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.IsParty(callerID) {
		return nil, apperr.Forbidden("NOT_A_PARTY", "%s is not a party of session %s", callerID, sessionID)
	}
	return svc.store.ListEvents(ctx, sessionID)
}

func (svc *Service) Stats(ctx context.Context) (Stats, error) {
	return svc.store.SessionStats(ctx)
}

// Sweep force-closes every active session whose deadline has passed. Safe to
// run concurrently across instances: a session already transitioned by a
// competing sweeper or a racing response loses the CAS and is skipped.
// Per-session failures are logged and retried on the next tick.
func (svc *Service) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	expired, err := svc.store.ListExpiredActive(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(sweepConcurrency)
	for _, s := range expired {
		s := s
		g.Go(func() error {
			release := svc.locks.acquire(s.SessionID)
			defer release()

			cur, err := svc.getSession(ctx, s.SessionID)
			if err != nil {
				svc.log.Error("sweep: reload session", zap.String("session_id", s.SessionID), zap.Error(err))
				return nil
			}
			if cur.Status.Terminal() || cur.Deadline.After(now) {
				return nil
			}
			if _, err := svc.closeRoundLocked(ctx, cur, true); err != nil {
				svc.log.Error("sweep: close round", zap.String("session_id", s.SessionID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(expired), nil
}

func (svc *Service) getSession(ctx context.Context, sessionID string) (Session, error) {
	s, err := svc.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Session{}, apperr.NotFound("SESSION_NOT_FOUND", "session %s not found", sessionID)
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// casUpdate persists s against its prior version. won=false means a
// concurrent writer transitioned the session first; reloaded carries the
// state that won.
func (svc *Service) casUpdate(ctx context.Context, s Session) (won bool, reloaded Session, err error) {
	expected := s.Version
	s.Version++
	s.UpdatedAt = svc.now().UTC()
	switch err := svc.store.UpdateSession(ctx, s, expected); {
	case err == nil:
		return true, s, nil
	case errors.Is(err, ErrVersionConflict):
		svc.log.Debug("session CAS lost", zap.String("session_id", s.SessionID), zap.Int64("expected_version", expected))
		cur, gerr := svc.store.GetSession(ctx, s.SessionID)
		if gerr != nil {
			return false, Session{}, fmt.Errorf("reload after version conflict: %w", gerr)
		}
		return false, cur, nil
	default:
		return false, Session{}, fmt.Errorf("update session: %w", err)
	}
}

// triggerDocument hands the settled session to document generation. Only the
// CAS winner of the completed_accepted transition reaches this, which keeps
// the handoff exactly-once. Generation failure is recorded and the
// settlement stands; the document can be regenerated out of band.
func (svc *Service) triggerDocument(ctx context.Context, s Session) {
	hash, _, _ := offerhash.Sum(s.CurrentOffer)
	docID, err := svc.docs.Generate(ctx, DocumentRequest{
		SessionID:  s.SessionID,
		CaseID:     s.CaseID,
		FinalOffer: s.CurrentOffer,
		OfferHash:  hash,
		Parties:    s.Parties,
	})
	if err != nil {
		svc.log.Error("settlement document generation failed",
			zap.String("session_id", s.SessionID), zap.Error(err))
		svc.addEvent(ctx, s.SessionID, EventDocumentFailed, "", map[string]any{"error": err.Error()})
		return
	}
	svc.addEvent(ctx, s.SessionID, EventDocumentRequested, "", map[string]any{
		"document_id": docID, "offer_hash": hash,
	})
}

func (svc *Service) addEvent(ctx context.Context, sessionID, typ, actorID string, payload map[string]any) {
	e := Event{
		EventID:    "evt_" + ulid.Make().String(),
		SessionID:  sessionID,
		Type:       typ,
		ActorID:    actorID,
		Payload:    payload,
		OccurredAt: svc.now().UTC(),
	}
	if err := svc.store.AddEvent(ctx, e); err != nil {
		svc.log.Warn("audit event dropped", zap.String("session_id", sessionID), zap.String("type", typ), zap.Error(err))
	}
}

func (svc *Service) notify(ctx context.Context, s Session, typ, detail string) {
	if svc.notifier == nil {
		return
	}
	svc.notifier.Notify(ctx, Notification{
		Type:      typ,
		SessionID: s.SessionID,
		CaseID:    s.CaseID,
		Parties:   s.Parties,
		Detail:    detail,
	})
}
