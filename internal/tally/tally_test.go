package tally_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Yaswanth9347/ai-dispute-sub002/internal/apperr"
	"github.com/Yaswanth9347/ai-dispute-sub002/internal/tally"
)

type fakeStore struct {
	votes map[string]tally.Vote // key analysis|option|party
}

func newFakeStore() *fakeStore { return &fakeStore{votes: make(map[string]tally.Vote)} }

func (f *fakeStore) UpsertVote(_ context.Context, v tally.Vote) error {
	f.votes[v.AnalysisID+"|"+v.OptionID+"|"+v.PartyID] = v
	return nil
}

func (f *fakeStore) ListVotes(_ context.Context, analysisID string) ([]tally.Vote, error) {
	var out []tally.Vote
	for _, v := range f.votes {
		if v.AnalysisID == analysisID {
			out = append(out, v)
		}
	}
	return out, nil
}

type fakeDir struct{ members []string }

func (f fakeDir) ListCaseMembers(context.Context, string) ([]string, error) {
	return f.members, nil
}

func TestCastVoteRejectsNonParty(t *testing.T) {
	e := tally.NewEngine(newFakeStore(), fakeDir{members: []string{"usr_a", "usr_b"}})
	_, err := e.CastVote(context.Background(), tally.CastParams{
		CaseID: "case_1", AnalysisID: "an_1", OptionID: "opt_1",
		PartyID: "usr_z", Decision: tally.DecisionAccept,
	})
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestCastVoteRejectsBadDecision(t *testing.T) {
	e := tally.NewEngine(newFakeStore(), fakeDir{members: []string{"usr_a"}})
	_, err := e.CastVote(context.Background(), tally.CastParams{
		CaseID: "case_1", AnalysisID: "an_1", OptionID: "opt_1",
		PartyID: "usr_a", Decision: "maybe",
	})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

// Two accepts and one decline with three parties: no consensus.
func TestTallyThreePartiesNoConsensus(t *testing.T) {
	st := newFakeStore()
	e := tally.NewEngine(st, fakeDir{members: []string{"usr_a", "usr_b", "usr_c"}})
	ctx := context.Background()

	for party, dec := range map[string]tally.Decision{
		"usr_a": tally.DecisionAccept,
		"usr_b": tally.DecisionAccept,
		"usr_c": tally.DecisionDecline,
	} {
		_, err := e.CastVote(ctx, tally.CastParams{
			CaseID: "case_1", AnalysisID: "an_1", OptionID: "opt_1",
			PartyID: party, Decision: dec,
		})
		require.NoError(t, err)
	}

	result, err := e.Tally(ctx, "case_1", "an_1")
	require.NoError(t, err)
	require.Equal(t, 3, result.PartyCount)
	require.Len(t, result.Options, 1)
	require.Equal(t, 2, result.Options[0].Accepts)
	require.Equal(t, 1, result.Options[0].Declines)
	require.False(t, result.Options[0].Consensus)
}

func TestTallyConsensusAtQuorum(t *testing.T) {
	st := newFakeStore()
	e := tally.NewEngine(st, fakeDir{members: []string{"usr_a", "usr_b"}})
	ctx := context.Background()

	for _, party := range []string{"usr_a", "usr_b"} {
		_, err := e.CastVote(ctx, tally.CastParams{
			CaseID: "case_1", AnalysisID: "an_1", OptionID: "opt_1",
			PartyID: party, Decision: tally.DecisionAccept,
		})
		require.NoError(t, err)
	}
	result, err := e.Tally(ctx, "case_1", "an_1")
	require.NoError(t, err)
	require.True(t, result.Options[0].Consensus)
}

// Resubmission overwrites the party's prior vote rather than adding one.
func TestCastVoteUpsert(t *testing.T) {
	st := newFakeStore()
	e := tally.NewEngine(st, fakeDir{members: []string{"usr_a", "usr_b"}})
	ctx := context.Background()

	_, err := e.CastVote(ctx, tally.CastParams{
		CaseID: "case_1", AnalysisID: "an_1", OptionID: "opt_1",
		PartyID: "usr_a", Decision: tally.DecisionDecline,
	})
	require.NoError(t, err)
	_, err = e.CastVote(ctx, tally.CastParams{
		CaseID: "case_1", AnalysisID: "an_1", OptionID: "opt_1",
		PartyID: "usr_a", Decision: tally.DecisionAccept,
	})
	require.NoError(t, err)

	result, err := e.Tally(ctx, "case_1", "an_1")
	require.NoError(t, err)
	require.Equal(t, 1, result.Options[0].Accepts)
	require.Equal(t, 0, result.Options[0].Declines)
}

// Accept-count consensus is monotonic: adding accept votes never flips an
// option back below quorum.
func TestCountConsensusMonotonic(t *testing.T) {
	var votes []tally.Vote
	for i, party := range []string{"usr_a", "usr_b", "usr_c"} {
		votes = append(votes, tally.Vote{
			AnalysisID: "an_1", OptionID: "opt_1", PartyID: party, Decision: tally.DecisionAccept,
		})
		result := tally.Count("an_1", 3, votes)
		if i < 2 {
			require.False(t, result.Options[0].Consensus)
		} else {
			require.True(t, result.Options[0].Consensus)
		}
	}
	// extra propose votes on another option do not disturb it
	votes = append(votes, tally.Vote{AnalysisID: "an_1", OptionID: "opt_2", PartyID: "usr_a", Decision: tally.DecisionPropose})
	result := tally.Count("an_1", 3, votes)
	require.True(t, result.Options[0].Consensus)
	require.Equal(t, 1, result.Options[1].Proposes)
}

func TestHasConsensusEdge(t *testing.T) {
	require.False(t, tally.HasConsensus(0, 0)) // empty case never has consensus
	require.False(t, tally.HasConsensus(1, 2))
	require.True(t, tally.HasConsensus(2, 2))
	require.True(t, tally.HasConsensus(3, 2))
}
