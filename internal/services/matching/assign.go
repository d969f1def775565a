package matching

import (
	"fmt"
	"sort"

	"bank-reconciliation-engine/internal/models"
)

// maxAlternatives caps the runner-up list kept on each match for reviewer
// context and complexity scoring.
const maxAlternatives = 3

// Assignment is the resolved outcome for one source transaction. Best is
// nil when no candidate survived the claim pass; TopScore still carries the
// best pre-claim score so duplicate detection can see near-perfect
// candidates that were already taken.
type Assignment struct {
	Source       models.Transaction
	Best         *Candidate
	Alternatives []models.AlternativeCandidate
	TopScore     float64
}

// Assign resolves candidates into an exclusive match set with a greedy
// weighted pass: sort all pairs by score, walk down, claim both sides on
// first touch. Later assignments depend on earlier claims, so this step is
// inherently sequential. Ties resolve by match-type precedence, earlier
// source date, then lower ids, making the output reproducible for
// identical input.
func Assign(candidates []Candidate, sources []models.Transaction) []Assignment {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score.Value != b.Score.Value {
			return a.Score.Value > b.Score.Value
		}
		if pa, pb := a.Score.Type.Precedence(), b.Score.Type.Precedence(); pa != pb {
			return pa > pb
		}
		if !a.Source.PostedAt.Equal(b.Source.PostedAt) {
			return a.Source.PostedAt.Before(b.Source.PostedAt)
		}
		if a.Source.ID != b.Source.ID {
			return a.Source.ID < b.Source.ID
		}
		return a.Candidate.ID < b.Candidate.ID
	})

	claimedSource := make(map[uint]bool)
	claimedCandidate := make(map[uint]bool)
	won := make(map[uint]Candidate)
	for _, c := range sorted {
		if claimedSource[c.Source.ID] || claimedCandidate[c.Candidate.ID] {
			continue
		}
		claimedSource[c.Source.ID] = true
		claimedCandidate[c.Candidate.ID] = true
		won[c.Source.ID] = c
	}

	perSource := make(map[uint][]Candidate)
	for _, c := range sorted {
		perSource[c.Source.ID] = append(perSource[c.Source.ID], c)
	}

	out := make([]Assignment, 0, len(sources))
	for _, src := range sources {
		a := Assignment{Source: src}
		ranked := perSource[src.ID]
		if len(ranked) > 0 {
			a.TopScore = ranked[0].Score.Value
		}
		if best, ok := won[src.ID]; ok {
			a.Best = &best
			a.Alternatives = alternatives(ranked, best.Candidate.ID)
		}
		out = append(out, a)
	}
	return out
}

func alternatives(ranked []Candidate, winnerID uint) []models.AlternativeCandidate {
	var alts []models.AlternativeCandidate
	for _, c := range ranked {
		if c.Candidate.ID == winnerID {
			continue
		}
		alts = append(alts, models.AlternativeCandidate{
			TransactionID: c.Candidate.ID,
			Score:         c.Score.Value,
			Reason:        fmt.Sprintf("%s: %s", c.Score.Type, c.Score.Reasoning),
		})
		if len(alts) == maxAlternatives {
			break
		}
	}
	return alts
}
