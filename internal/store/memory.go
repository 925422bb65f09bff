// Package store provides the persistence implementations behind the
// negotiation service: Postgres for deployment and a mutex-guarded in-memory
// store for tests and local development.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Yaswanth9347/ai-dispute-sub002/internal/negotiation"
	"github.com/Yaswanth9347/ai-dispute-sub002/internal/tally"
)

var ErrTokenNotFound = errors.New("api token not found")

type respKey struct {
	sessionID string
	partyID   string
	round     int
}

type voteKey struct {
	analysisID string
	optionID   string
	partyID    string
}

type idemKey struct {
	userID   string
	key      string
	endpoint string
}

type idemRecord struct {
	status int
	body   map[string]any
}

// Memory implements the session, vote, idempotency, and token stores with
// the same semantics as Postgres, including the version CAS on sessions.
type Memory struct {
	mu          sync.RWMutex
	sessions    map[string]negotiation.Session
	responses   map[respKey]negotiation.Response
	suggestions map[string][]negotiation.Suggestion
	events      map[string][]negotiation.Event
	votes       map[voteKey]tally.Vote
	idem        map[idemKey]idemRecord
	tokens      map[string]string // token hash -> user id
}

func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[string]negotiation.Session),
		responses:   make(map[respKey]negotiation.Response),
		suggestions: make(map[string][]negotiation.Suggestion),
		events:      make(map[string][]negotiation.Event),
		votes:       make(map[voteKey]tally.Vote),
		idem:        make(map[idemKey]idemRecord),
		tokens:      make(map[string]string),
	}
}

func (m *Memory) CreateSession(_ context.Context, s negotiation.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.SessionID]; exists {
		return errors.New("session already exists")
	}
	m.sessions[s.SessionID] = cloneSession(s)
	return nil
}

func (m *Memory) GetSession(_ context.Context, sessionID string) (negotiation.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return negotiation.Session{}, negotiation.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (m *Memory) ListSessions(_ context.Context, caseID string, status negotiation.Status) ([]negotiation.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []negotiation.Session
	for _, s := range m.sessions {
		if caseID != "" && s.CaseID != caseID {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateSession(_ context.Context, s negotiation.Session, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.SessionID]
	if !ok {
		return negotiation.ErrSessionNotFound
	}
	if cur.Version != expectedVersion {
		return negotiation.ErrVersionConflict
	}
	m.sessions[s.SessionID] = cloneSession(s)
	return nil
}

func (m *Memory) ListExpiredActive(_ context.Context, now time.Time, limit int) ([]negotiation.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []negotiation.Session
	for _, s := range m.sessions {
		if s.Status == negotiation.StatusActive && !s.Deadline.After(now) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpsertResponse(_ context.Context, r negotiation.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[respKey{r.SessionID, r.PartyID, r.Round}] = r
	return nil
}

func (m *Memory) ListResponses(_ context.Context, sessionID string, round int) ([]negotiation.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []negotiation.Response
	for k, r := range m.responses {
		if k.sessionID == sessionID && k.round == round {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartyID < out[j].PartyID })
	return out, nil
}

func (m *Memory) ListAllResponses(_ context.Context, sessionID string) ([]negotiation.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []negotiation.Response
	for k, r := range m.responses {
		if k.sessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].PartyID < out[j].PartyID
	})
	return out, nil
}

func (m *Memory) SaveSuggestion(_ context.Context, s negotiation.Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suggestions[s.SessionID] = append(m.suggestions[s.SessionID], s)
	return nil
}

func (m *Memory) ListSuggestions(_ context.Context, sessionID string) ([]negotiation.Suggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]negotiation.Suggestion, len(m.suggestions[sessionID]))
	copy(out, m.suggestions[sessionID])
	return out, nil
}

func (m *Memory) AddEvent(_ context.Context, e negotiation.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.SessionID] = append(m.events[e.SessionID], e)
	return nil
}

func (m *Memory) ListEvents(_ context.Context, sessionID string) ([]negotiation.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]negotiation.Event, len(m.events[sessionID]))
	copy(out, m.events[sessionID])
	return out, nil
}

func (m *Memory) SessionStats(_ context.Context) (negotiation.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := negotiation.Stats{ByStatus: make(map[negotiation.Status]int)}
	roundsSettled := 0
	for _, s := range m.sessions {
		stats.ByStatus[s.Status]++
		stats.Total++
		if s.Status == negotiation.StatusCompletedAccepted {
			stats.SettledCount++
			roundsSettled += s.CurrentRound
		}
	}
	if stats.SettledCount > 0 {
		stats.AvgRoundsSettled = float64(roundsSettled) / float64(stats.SettledCount)
	}
	return stats, nil
}

func (m *Memory) UpsertVote(_ context.Context, v tally.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.votes[voteKey{v.AnalysisID, v.OptionID, v.PartyID}] = v
	return nil
}

func (m *Memory) ListVotes(_ context.Context, analysisID string) ([]tally.Vote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []tally.Vote
	for k, v := range m.votes {
		if k.analysisID == analysisID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OptionID != out[j].OptionID {
			return out[i].OptionID < out[j].OptionID
		}
		return out[i].PartyID < out[j].PartyID
	})
	return out, nil
}

func (m *Memory) GetIdempotencyRecord(_ context.Context, userID, key, endpoint string) (int, map[string]any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.idem[idemKey{userID, key, endpoint}]
	if !ok {
		return 0, nil, false, nil
	}
	return rec.status, rec.body, true, nil
}

func (m *Memory) SaveIdempotencyRecord(_ context.Context, userID, key, endpoint string, status int, body map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idem[idemKey{userID, key, endpoint}] = idemRecord{status: status, body: body}
	return nil
}

// SeedToken registers an API token hash for dev and test fixtures.
func (m *Memory) SeedToken(tokenHash, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenHash] = userID
}

func (m *Memory) ResolveToken(_ context.Context, tokenHash string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	userID, ok := m.tokens[tokenHash]
	if !ok {
		return "", ErrTokenNotFound
	}
	return userID, nil
}

func cloneSession(s negotiation.Session) negotiation.Session {
	out := s
	out.Parties = append([]negotiation.Party(nil), s.Parties...)
	if s.CurrentOffer.Terms != nil {
		terms := make(map[string]string, len(s.CurrentOffer.Terms))
		for k, v := range s.CurrentOffer.Terms {
			terms[k] = v
		}
		out.CurrentOffer.Terms = terms
	}
	return out
}
