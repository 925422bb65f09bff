package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Yaswanth9347/ai-dispute-sub002/internal/negotiation"
	"github.com/Yaswanth9347/ai-dispute-sub002/internal/tally"
)

//go:embed schema.sql
var schemaSQL string

type Postgres struct {
	DB *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres { return &Postgres{DB: db} }

// EnsureSchema applies the idempotent DDL in schema.sql.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, schemaSQL)
	return err
}

func (s *Postgres) CreateSession(ctx context.Context, ns negotiation.Session) error {
	parties, err := json.Marshal(ns.Parties)
	if err != nil {
		return err
	}
	offer, err := json.Marshal(ns.CurrentOffer)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO negotiation_sessions(session_id,case_id,parties,current_round,max_rounds,status,deadline,allow_counter_offers,current_offer,initiator_id,created_at,updated_at,version)
VALUES($1,$2,$3::jsonb,$4,$5,$6,$7,$8,$9::jsonb,$10,$11,$12,$13)`,
		ns.SessionID, ns.CaseID, string(parties), ns.CurrentRound, ns.MaxRounds, string(ns.Status),
		ns.Deadline, ns.AllowCounterOffers, string(offer), ns.InitiatorID, ns.CreatedAt, ns.UpdatedAt, ns.Version)
	return err
}

const sessionColumns = `session_id,case_id,parties,current_round,max_rounds,status,deadline,allow_counter_offers,current_offer,initiator_id,created_at,updated_at,version`

func scanSession(row pgx.Row) (negotiation.Session, error) {
	var ns negotiation.Session
	var status string
	var parties, offer []byte
	err := row.Scan(&ns.SessionID, &ns.CaseID, &parties, &ns.CurrentRound, &ns.MaxRounds, &status,
		&ns.Deadline, &ns.AllowCounterOffers, &offer, &ns.InitiatorID, &ns.CreatedAt, &ns.UpdatedAt, &ns.Version)
	if err != nil {
		return negotiation.Session{}, err
	}
	ns.Status = negotiation.Status(status)
	if err := json.Unmarshal(parties, &ns.Parties); err != nil {
		return negotiation.Session{}, err
	}
	if err := json.Unmarshal(offer, &ns.CurrentOffer); err != nil {
		return negotiation.Session{}, err
	}
	return ns, nil
}

func (s *Postgres) GetSession(ctx context.Context, sessionID string) (negotiation.Session, error) {
	ns, err := scanSession(s.DB.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM negotiation_sessions WHERE session_id=$1`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return negotiation.Session{}, negotiation.ErrSessionNotFound
	}
	return ns, err
}

func (s *Postgres) ListSessions(ctx context.Context, caseID string, status negotiation.Status) ([]negotiation.Session, error) {
	rows, err := s.DB.Query(ctx, `
SELECT `+sessionColumns+` FROM negotiation_sessions
WHERE ($1 = '' OR case_id = $1) AND ($2 = '' OR status = $2)
ORDER BY created_at ASC`, caseID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []negotiation.Session
	for rows.Next() {
		ns, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// UpdateSession is a compare-and-swap on the version column: the row is
// written only if no other writer got there first.
func (s *Postgres) UpdateSession(ctx context.Context, ns negotiation.Session, expectedVersion int64) error {
	parties, err := json.Marshal(ns.Parties)
	if err != nil {
		return err
	}
	offer, err := json.Marshal(ns.CurrentOffer)
	if err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, `
UPDATE negotiation_sessions
SET parties=$2::jsonb, current_round=$3, status=$4, deadline=$5, current_offer=$6::jsonb, updated_at=$7, version=$8
WHERE session_id=$1 AND version=$9`,
		ns.SessionID, string(parties), ns.CurrentRound, string(ns.Status), ns.Deadline,
		string(offer), ns.UpdatedAt, ns.Version, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.DB.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM negotiation_sessions WHERE session_id=$1)`, ns.SessionID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return negotiation.ErrSessionNotFound
		}
		return negotiation.ErrVersionConflict
	}
	return nil
}

func (s *Postgres) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]negotiation.Session, error) {
	rows, err := s.DB.Query(ctx, `
SELECT `+sessionColumns+` FROM negotiation_sessions
WHERE status='active' AND deadline <= $1
ORDER BY deadline ASC
LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []negotiation.Session
	for rows.Next() {
		ns, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

func (s *Postgres) UpsertResponse(ctx context.Context, r negotiation.Response) error {
	var offer any
	if r.Offer != nil {
		b, err := json.Marshal(r.Offer)
		if err != nil {
			return err
		}
		offer = string(b)
	}
	_, err := s.DB.Exec(ctx, `
INSERT INTO negotiation_responses(response_id,session_id,party_id,round,type,offer,message,submitted_at)
VALUES($1,$2,$3,$4,$5,$6::jsonb,$7,$8)
ON CONFLICT (session_id,party_id,round) DO UPDATE SET
  response_id=EXCLUDED.response_id,
  type=EXCLUDED.type,
  offer=EXCLUDED.offer,
  message=EXCLUDED.message,
  submitted_at=EXCLUDED.submitted_at`,
		r.ResponseID, r.SessionID, r.PartyID, r.Round, string(r.Type), offer, r.Message, r.SubmittedAt)
	return err
}

func scanResponses(rows pgx.Rows) ([]negotiation.Response, error) {
	defer rows.Close()
	var out []negotiation.Response
	for rows.Next() {
		var r negotiation.Response
		var typ string
		var offer []byte
		if err := rows.Scan(&r.ResponseID, &r.SessionID, &r.PartyID, &r.Round, &typ, &offer, &r.Message, &r.SubmittedAt); err != nil {
			return nil, err
		}
		r.Type = negotiation.ResponseType(typ)
		if offer != nil {
			r.Offer = &negotiation.Offer{}
			if err := json.Unmarshal(offer, r.Offer); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) ListResponses(ctx context.Context, sessionID string, round int) ([]negotiation.Response, error) {
	rows, err := s.DB.Query(ctx, `
SELECT response_id,session_id,party_id,round,type,offer,message,submitted_at
FROM negotiation_responses WHERE session_id=$1 AND round=$2 ORDER BY party_id ASC`, sessionID, round)
	if err != nil {
		return nil, err
	}
	return scanResponses(rows)
}

func (s *Postgres) ListAllResponses(ctx context.Context, sessionID string) ([]negotiation.Response, error) {
	rows, err := s.DB.Query(ctx, `
SELECT response_id,session_id,party_id,round,type,offer,message,submitted_at
FROM negotiation_responses WHERE session_id=$1 ORDER BY round ASC, party_id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	return scanResponses(rows)
}

func (s *Postgres) SaveSuggestion(ctx context.Context, sg negotiation.Suggestion) error {
	offer, err := json.Marshal(sg.Offer)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO compromise_suggestions(suggestion_id,session_id,round,offer,reasoning,confidence,generated_at)
VALUES($1,$2,$3,$4::jsonb,$5,$6,$7)`,
		sg.SuggestionID, sg.SessionID, sg.Round, string(offer), sg.Reasoning, sg.Confidence, sg.GeneratedAt)
	return err
}

func (s *Postgres) ListSuggestions(ctx context.Context, sessionID string) ([]negotiation.Suggestion, error) {
	rows, err := s.DB.Query(ctx, `
SELECT suggestion_id,session_id,round,offer,reasoning,confidence,generated_at
FROM compromise_suggestions WHERE session_id=$1 ORDER BY generated_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []negotiation.Suggestion
	for rows.Next() {
		var sg negotiation.Suggestion
		var offer []byte
		if err := rows.Scan(&sg.SuggestionID, &sg.SessionID, &sg.Round, &offer, &sg.Reasoning, &sg.Confidence, &sg.GeneratedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(offer, &sg.Offer); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

func (s *Postgres) AddEvent(ctx context.Context, e negotiation.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO negotiation_events(event_id,session_id,type,actor_id,payload,occurred_at)
VALUES($1,$2,$3,$4,$5::jsonb,$6)`,
		e.EventID, e.SessionID, e.Type, e.ActorID, string(payload), e.OccurredAt)
	return err
}

func (s *Postgres) ListEvents(ctx context.Context, sessionID string) ([]negotiation.Event, error) {
	rows, err := s.DB.Query(ctx, `
SELECT event_id,session_id,type,actor_id,payload,occurred_at
FROM negotiation_events WHERE session_id=$1 ORDER BY occurred_at ASC, event_id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []negotiation.Event
	for rows.Next() {
		var e negotiation.Event
		var actorID *string
		var payload []byte
		if err := rows.Scan(&e.EventID, &e.SessionID, &e.Type, &actorID, &payload, &e.OccurredAt); err != nil {
			return nil, err
		}
		if actorID != nil {
			e.ActorID = *actorID
		}
		if payload != nil {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) SessionStats(ctx context.Context) (negotiation.Stats, error) {
	stats := negotiation.Stats{ByStatus: make(map[negotiation.Status]int)}
	rows, err := s.DB.Query(ctx, `SELECT status, count(*) FROM negotiation_sessions GROUP BY status`)
	if err != nil {
		return negotiation.Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return negotiation.Stats{}, err
		}
		stats.ByStatus[negotiation.Status(status)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return negotiation.Stats{}, err
	}
	err = s.DB.QueryRow(ctx, `
SELECT count(*), COALESCE(avg(current_round), 0)
FROM negotiation_sessions WHERE status='completed_accepted'`).
		Scan(&stats.SettledCount, &stats.AvgRoundsSettled)
	if err != nil {
		return negotiation.Stats{}, err
	}
	return stats, nil
}

func (s *Postgres) UpsertVote(ctx context.Context, v tally.Vote) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO analysis_votes(analysis_id,option_id,party_id,vote_id,case_id,decision,note,cast_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (analysis_id,option_id,party_id) DO UPDATE SET
  vote_id=EXCLUDED.vote_id,
  decision=EXCLUDED.decision,
  note=EXCLUDED.note,
  cast_at=EXCLUDED.cast_at`,
		v.AnalysisID, v.OptionID, v.PartyID, v.VoteID, v.CaseID, string(v.Decision), v.Note, v.CastAt)
	return err
}

func (s *Postgres) ListVotes(ctx context.Context, analysisID string) ([]tally.Vote, error) {
	rows, err := s.DB.Query(ctx, `
SELECT analysis_id,option_id,party_id,vote_id,case_id,decision,note,cast_at
FROM analysis_votes WHERE analysis_id=$1 ORDER BY option_id ASC, party_id ASC`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tally.Vote
	for rows.Next() {
		var v tally.Vote
		var decision string
		if err := rows.Scan(&v.AnalysisID, &v.OptionID, &v.PartyID, &v.VoteID, &v.CaseID, &decision, &v.Note, &v.CastAt); err != nil {
			return nil, err
		}
		v.Decision = tally.Decision(decision)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Postgres) GetIdempotencyRecord(ctx context.Context, userID, key, endpoint string) (int, map[string]any, bool, error) {
	var status int
	var body []byte
	err := s.DB.QueryRow(ctx, `
SELECT response_status, response_body FROM idempotency_records
WHERE user_id=$1 AND idem_key=$2 AND endpoint=$3`, userID, key, endpoint).Scan(&status, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, nil, false, err
	}
	return status, out, true, nil
}

func (s *Postgres) SaveIdempotencyRecord(ctx context.Context, userID, key, endpoint string, status int, body map[string]any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO idempotency_records(user_id,idem_key,endpoint,response_status,response_body)
VALUES($1,$2,$3,$4,$5::jsonb)
ON CONFLICT (user_id,idem_key,endpoint) DO NOTHING`, userID, key, endpoint, status, string(b))
	return err
}

func (s *Postgres) ResolveToken(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.DB.QueryRow(ctx, `SELECT user_id FROM api_tokens WHERE token_hash=$1`, tokenHash).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrTokenNotFound
	}
	return userID, err
}
