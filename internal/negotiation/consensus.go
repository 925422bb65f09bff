package negotiation

import "sort"

// RoundOutcome is the decision the evaluator reaches for a closed round.
type RoundOutcome int

const (
	// RoundPending: not every party has responded and closure was not
	// forced; the round stays open.
	RoundPending RoundOutcome = iota
	// RoundSettled: every party accepted the current offer.
	RoundSettled
	// RoundAdvance: at least one counter was submitted; the selected
	// counter becomes the next round's offer.
	RoundAdvance
	// RoundFailed: no counters, at least one reject (or, under forced
	// closure, missing responses).
	RoundFailed
)

type RoundResult struct {
	Outcome RoundOutcome
	// NextOffer is the selected counter when Outcome == RoundAdvance.
	NextOffer *Offer
	// CounterBy is the party whose counter was selected.
	CounterBy string
}

// EvaluateRound applies the outcome policy to one round's responses. A round
// is closed when every party has responded, or when forced (deadline
// expiry). Precedence: unanimous accept settles; otherwise any counter
// advances; otherwise the round fails.
//
// Under forced closure a missing response counts as neither accept nor
// counter, so a forced round either settles (everyone had accepted) or
// fails; the caller maps that failure to expiry.
func EvaluateRound(parties []Party, responses []Response, forced bool) RoundResult {
	byParty := make(map[string]Response, len(responses))
	for _, r := range responses {
		byParty[r.PartyID] = r
	}

	if !forced && len(byParty) < len(parties) {
		return RoundResult{Outcome: RoundPending}
	}

	accepts := 0
	var counters []Response
	for _, p := range parties {
		r, ok := byParty[p.UserID]
		if !ok {
			continue
		}
		switch r.Type {
		case ResponseAccept:
			accepts++
		case ResponseCounter:
			counters = append(counters, r)
		case ResponseReject:
			// counted implicitly: a non-accept, non-counter response
		default:
			// unknown types are rejected at submission; treat as reject
		}
	}

	if accepts == len(parties) {
		return RoundResult{Outcome: RoundSettled}
	}
	if forced {
		return RoundResult{Outcome: RoundFailed}
	}
	if len(counters) > 0 {
		sel := selectCounter(counters)
		return RoundResult{Outcome: RoundAdvance, NextOffer: sel.Offer, CounterBy: sel.PartyID}
	}
	return RoundResult{Outcome: RoundFailed}
}

// selectCounter picks the authoritative counter when several parties counter
// in the same round: the one from the lowest party id in byte order. Roles
// are free-form strings with no authoritative ranking, so party id is the
// only stable total order available; the choice is deterministic across
// N parties and documented at the API surface.
func selectCounter(counters []Response) Response {
	sort.Slice(counters, func(i, j int) bool {
		return counters[i].PartyID < counters[j].PartyID
	})
	return counters[0]
}
