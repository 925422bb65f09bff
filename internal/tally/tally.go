// Package tally is the vote tally engine: accept/decline/propose counting
// over a fixed set of proposed settlement options. It is independent of
// round-based negotiation sessions; an option set is enumerated upfront and
// parties vote on each option directly.
package tally

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Yaswanth9347/ai-dispute-sub002/internal/apperr"
)

type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
	DecisionPropose Decision = "propose"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionAccept, DecisionDecline, DecisionPropose:
		return true
	}
	return false
}

// Vote is one party's active decision on one option. At most one exists per
// (analysis, option, party); resubmission overwrites it.
type Vote struct {
	VoteID     string    `json:"vote_id"`
	CaseID     string    `json:"case_id"`
	AnalysisID string    `json:"analysis_id"`
	OptionID   string    `json:"option_id"`
	PartyID    string    `json:"party_id"`
	Decision   Decision  `json:"decision"`
	Note       string    `json:"note,omitempty"`
	CastAt     time.Time `json:"cast_at"`
}

// Store persists votes keyed by (analysis_id, option_id, party_id).
type Store interface {
	UpsertVote(ctx context.Context, v Vote) error
	ListVotes(ctx context.Context, analysisID string) ([]Vote, error)
}

// PartyDirectory resolves the authoritative party list of a case; its size
// is the quorum for every option of that case's analyses.
type PartyDirectory interface {
	ListCaseMembers(ctx context.Context, caseID string) ([]string, error)
}

type Engine struct {
	store Store
	dir   PartyDirectory
	now   func() time.Time
}

func NewEngine(store Store, dir PartyDirectory) *Engine {
	return &Engine{store: store, dir: dir, now: time.Now}
}

type CastParams struct {
	CaseID     string
	AnalysisID string
	OptionID   string
	PartyID    string
	Decision   Decision
	Note       string
}

func (e *Engine) CastVote(ctx context.Context, p CastParams) (Vote, error) {
	if p.AnalysisID == "" || p.OptionID == "" {
		return Vote{}, apperr.Validation("VOTE_TARGET_REQUIRED", "analysis_id and option_id are required")
	}
	if !p.Decision.Valid() {
		return Vote{}, apperr.Validation("DECISION_INVALID", "unknown decision %q", p.Decision)
	}
	members, err := e.dir.ListCaseMembers(ctx, p.CaseID)
	if err != nil {
		return Vote{}, fmt.Errorf("resolve case members: %w", err)
	}
	isMember := false
	for _, m := range members {
		if m == p.PartyID {
			isMember = true
			break
		}
	}
	if !isMember {
		return Vote{}, apperr.Forbidden("NOT_A_PARTY", "%s is not a party of case %s", p.PartyID, p.CaseID)
	}

	v := Vote{
		VoteID:     "vote_" + ulid.Make().String(),
		CaseID:     p.CaseID,
		AnalysisID: p.AnalysisID,
		OptionID:   p.OptionID,
		PartyID:    p.PartyID,
		Decision:   p.Decision,
		Note:       p.Note,
		CastAt:     e.now().UTC(),
	}
	if err := e.store.UpsertVote(ctx, v); err != nil {
		return Vote{}, fmt.Errorf("record vote: %w", err)
	}
	return v, nil
}

// OptionTally is the per-option count of active votes. Consensus holds when
// accepts reach the case's party count, and can only flip true as accept
// votes accrue (a party switching away from accept lowers the count, but
// that is an overwrite of their vote, not a new vote).
type OptionTally struct {
	OptionID  string `json:"option_id"`
	Accepts   int    `json:"accepts"`
	Declines  int    `json:"declines"`
	Proposes  int    `json:"proposes"`
	Consensus bool   `json:"consensus"`
}

type Result struct {
	AnalysisID string        `json:"analysis_id"`
	PartyCount int           `json:"party_count"`
	Options    []OptionTally `json:"options"`
}

func (e *Engine) Tally(ctx context.Context, caseID, analysisID string) (Result, error) {
	members, err := e.dir.ListCaseMembers(ctx, caseID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve case members: %w", err)
	}
	votes, err := e.store.ListVotes(ctx, analysisID)
	if err != nil {
		return Result{}, fmt.Errorf("list votes: %w", err)
	}
	return Count(analysisID, len(members), votes), nil
}

// Count folds votes into per-option tallies. Pure so the consensus rule is
// testable without storage.
func Count(analysisID string, partyCount int, votes []Vote) Result {
	byOption := make(map[string]*OptionTally)
	for _, v := range votes {
		t := byOption[v.OptionID]
		if t == nil {
			t = &OptionTally{OptionID: v.OptionID}
			byOption[v.OptionID] = t
		}
		switch v.Decision {
		case DecisionAccept:
			t.Accepts++
		case DecisionDecline:
			t.Declines++
		case DecisionPropose:
			t.Proposes++
		}
	}
	out := Result{AnalysisID: analysisID, PartyCount: partyCount}
	for _, t := range byOption {
		t.Consensus = HasConsensus(t.Accepts, partyCount)
		out.Options = append(out.Options, *t)
	}
	sort.Slice(out.Options, func(i, j int) bool {
		return out.Options[i].OptionID < out.Options[j].OptionID
	})
	return out
}

// HasConsensus holds iff every distinct party of the case accepted.
func HasConsensus(accepts, partyCount int) bool {
	return partyCount > 0 && accepts >= partyCount
}
