package matching

import (
	"context"
	"runtime"
	"sync"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/internal/services/scoring"
)

// CandidateFloor bounds combinatorics: pairs scoring below it never enter
// the assignment pass.
const CandidateFloor = 0.3

// Candidate is one scored (source, candidate) pair.
type Candidate struct {
	Source    models.Transaction
	Candidate models.Transaction
	Score     scoring.Result
}

// Generator scores every source against the opposite-side pool.
type Generator struct {
	scorer *scoring.Engine
	pool   *Pool
}

func NewGenerator(scorer *scoring.Engine, pool *Pool) *Generator {
	return &Generator{scorer: scorer, pool: pool}
}

// Generate scores all pairs session-wide. Scoring is the embarrassingly
// parallel map step: sources fan out across workers, results land in
// per-source slots so output order is independent of scheduling. Claim
// resolution stays sequential in Assign.
//
// Per-source failures (e.g. a transaction whose account is missing from
// the pool) are returned alongside the candidates and never abort the run.
func (g *Generator) Generate(ctx context.Context, cfg models.SessionConfig) ([]Candidate, []error) {
	sources := g.pool.Sources()
	perSource := make([][]Candidate, len(sources))
	failures := make([]error, len(sources))

	workers := runtime.NumCPU()
	if workers > len(sources) {
		workers = len(sources)
	}
	if workers < 1 {
		workers = 1
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				perSource[i], failures[i] = g.candidatesFor(sources[i], cfg)
			}
		}()
	}

	for i := range sources {
		if err := ctx.Err(); err != nil {
			close(indices)
			wg.Wait()
			return nil, []error{err}
		}
		indices <- i
	}
	close(indices)
	wg.Wait()

	var out []Candidate
	var errs []error
	for i := range sources {
		if failures[i] != nil {
			errs = append(errs, failures[i])
			continue
		}
		out = append(out, perSource[i]...)
	}
	return out, errs
}

func (g *Generator) candidatesFor(source models.Transaction, cfg models.SessionConfig) ([]Candidate, error) {
	src, err := g.pool.Party(source)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, counter := range g.pool.Counterparts() {
		cand, err := g.pool.Party(counter)
		if err != nil {
			// Candidate-side lookup failure just removes that
			// counterpart from consideration.
			continue
		}
		result := g.scorer.Score(src, cand, cfg)
		if result.Value < CandidateFloor {
			continue
		}
		out = append(out, Candidate{Source: source, Candidate: counter, Score: result})
	}
	return out, nil
}
