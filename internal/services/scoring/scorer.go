// Package scoring implements the confidence scorer: a pure function from a
// (source, candidate) transaction pair and session config to a score in
// [0,1], a match type and the factor flags that explain it.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"bank-reconciliation-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Party is a transaction together with the institution of its account,
// resolved by the caller from the session's transaction pool.
type Party struct {
	Tx          models.Transaction
	Institution string
}

// Result is the scorer output for one candidate pair.
type Result struct {
	Value     float64
	Type      models.MatchType
	Factors   models.MatchFactors
	Reasoning string
}

// Config tunes the engine-wide scoring behaviour. Session-level knobs
// (delay handling, cross-bank matching, thresholds) stay on the session.
type Config struct {
	AmountWeight    float64
	ReferenceWeight float64
	DateWeight      float64
	CrossBankWeight float64

	// DecaySpanDays is the gap at which the date factor reaches zero.
	DecaySpanDays float64
	// SettlementWindows maps institution to its known EFT settlement
	// window in days; DefaultSettlementDays covers unknown institutions.
	SettlementWindows     map[string]int
	DefaultSettlementDays int
	// FeeSchedule maps institution to the fee amounts it is known to
	// deduct from transfers.
	FeeSchedule map[string][]decimal.Decimal
}

// DefaultConfig returns the weights and banking tolerances used in
// production. Amount dominates, reference next, date and cross-bank act as
// modifiers.
func DefaultConfig() Config {
	return Config{
		AmountWeight:          0.45,
		ReferenceWeight:       0.30,
		DateWeight:            0.15,
		CrossBankWeight:       0.10,
		DecaySpanDays:         30,
		SettlementWindows:     map[string]int{},
		DefaultSettlementDays: 3,
		FeeSchedule:           map[string][]decimal.Decimal{},
	}
}

// feeFactor is the near-exact amount factor assigned when the difference
// matches a scheduled bank fee.
const feeFactor = 0.92

// referenceMatchThreshold marks the similarity above which the reference
// is considered matched for factor-flag purposes.
const referenceMatchThreshold = 0.85

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Score evaluates one candidate pair under the session config. It is pure:
// no I/O, no shared state, safe to call from concurrent workers.
func (e *Engine) Score(source, candidate Party, cfg models.SessionConfig) Result {
	if source.Tx.Currency != candidate.Tx.Currency {
		return Result{
			Value:     0,
			Type:      models.MatchPartial,
			Reasoning: "currency mismatch",
		}
	}

	var (
		factors models.MatchFactors
		notes   []string
	)

	amountScore, amountEqual := e.amountFactor(source, candidate, &factors, &notes)
	refScore, refExact := e.referenceFactor(source.Tx.Reference, candidate.Tx.Reference, &factors, &notes)
	dateScore, sameDay := e.dateFactor(source, candidate, cfg, &factors, &notes)

	totalWeight := e.cfg.AmountWeight + e.cfg.ReferenceWeight + e.cfg.DateWeight
	weighted := e.cfg.AmountWeight*amountScore +
		e.cfg.ReferenceWeight*refScore +
		e.cfg.DateWeight*dateScore

	if crossScore, evaluated := e.crossBankFactor(source, candidate, cfg, &factors, &notes); evaluated {
		totalWeight += e.cfg.CrossBankWeight
		weighted += e.cfg.CrossBankWeight * crossScore
	}

	value := clip01(weighted / totalWeight)

	return Result{
		Value:     value,
		Type:      classify(value, amountEqual, refExact, sameDay, factors),
		Factors:   factors,
		Reasoning: strings.Join(notes, "; "),
	}
}

func (e *Engine) amountFactor(source, candidate Party, factors *models.MatchFactors, notes *[]string) (score float64, equal bool) {
	srcMag := source.Tx.Magnitude()
	candMag := candidate.Tx.Magnitude()

	diff := srcMag.Sub(candMag).Abs()
	if diff.IsZero() {
		*notes = append(*notes, "amounts equal")
		return 1.0, true
	}

	if e.isScheduledFee(diff, source.Institution, candidate.Institution) {
		factors.FeePatternMatch = true
		*notes = append(*notes, fmt.Sprintf("amount gap %s matches a scheduled bank fee", diff.StringFixed(2)))
		return feeFactor, false
	}

	larger := decimal.Max(srcMag, candMag)
	if larger.IsZero() {
		return 1.0, true
	}
	ratio, _ := diff.Div(larger).Float64()
	score = math.Max(0, 1-ratio)
	*notes = append(*notes, fmt.Sprintf("amounts differ by %.0f%%", ratio*100))
	return score, false
}

func (e *Engine) isScheduledFee(diff decimal.Decimal, institutions ...string) bool {
	for _, inst := range institutions {
		for _, fee := range e.cfg.FeeSchedule[inst] {
			if diff.Equal(fee) {
				return true
			}
		}
	}
	return false
}

func (e *Engine) referenceFactor(src, cand string, factors *models.MatchFactors, notes *[]string) (score float64, exact bool) {
	a := normalizeReference(src)
	b := normalizeReference(cand)

	// Two blank references tell us nothing either way.
	if a == "" && b == "" {
		return 0.5, false
	}
	if a == b {
		factors.ReferenceMatched = true
		*notes = append(*notes, "reference exact match")
		return 1.0, true
	}

	score = tokenSetSimilarity(a, b)
	if score >= referenceMatchThreshold {
		factors.ReferenceMatched = true
	}
	*notes = append(*notes, fmt.Sprintf("reference similarity %.2f", score))
	return score, false
}

func (e *Engine) dateFactor(source, candidate Party, cfg models.SessionConfig, factors *models.MatchFactors, notes *[]string) (score float64, sameDay bool) {
	days := math.Abs(candidate.Tx.PostedAt.Sub(source.Tx.PostedAt).Hours() / 24)

	if days < 1 && sameCalendarDay(source.Tx, candidate.Tx) {
		factors.ImmediatePayment = true
		*notes = append(*notes, "posted same day")
		return 1.0, true
	}

	score = math.Max(0, 1-days/e.cfg.DecaySpanDays)

	if cfg.ConsiderBankDelays {
		window := e.settlementWindow(source.Institution, candidate.Institution)
		if days <= float64(window) {
			factors.BankDelayConsidered = true
			factors.WithinEftWindow = true
			// Known settlement delay: hold the factor up instead of
			// letting it decay toward zero.
			score = math.Max(score, 0.75)
			*notes = append(*notes, fmt.Sprintf("settled %.0f day(s) later within the %d-day EFT window", days, window))
			return score, false
		}
	}

	*notes = append(*notes, fmt.Sprintf("dates %.0f day(s) apart", days))
	return score, false
}

func (e *Engine) settlementWindow(institutions ...string) int {
	window := e.cfg.DefaultSettlementDays
	for _, inst := range institutions {
		if w, ok := e.cfg.SettlementWindows[inst]; ok && w > window {
			window = w
		}
	}
	return window
}

func (e *Engine) crossBankFactor(source, candidate Party, cfg models.SessionConfig, factors *models.MatchFactors, notes *[]string) (score float64, evaluated bool) {
	if !cfg.CrossBankMatching || source.Institution == candidate.Institution {
		return 0, false
	}

	oppositeSigns := source.Tx.Amount.Sign()*candidate.Tx.Amount.Sign() < 0
	diff := source.Tx.Magnitude().Sub(candidate.Tx.Magnitude()).Abs()
	amountsAlign := diff.IsZero() || e.isScheduledFee(diff, source.Institution, candidate.Institution)

	if oppositeSigns && amountsAlign {
		factors.CrossBankTransfer = true
		*notes = append(*notes, fmt.Sprintf("cross-bank transfer %s -> %s", source.Institution, candidate.Institution))
		return 1.0, true
	}
	// Ordinary cross-institution pairs are not transfers; leave the weight
	// out rather than dragging every such pair down.
	return 0, false
}

func classify(value float64, amountEqual, refExact, sameDay bool, factors models.MatchFactors) models.MatchType {
	switch {
	case amountEqual && refExact && sameDay:
		return models.MatchExact
	case factors.FeePatternMatch:
		return models.MatchFeePattern
	case factors.CrossBankTransfer:
		return models.MatchCrossBank
	case factors.WithinEftWindow:
		return models.MatchDelayed
	case value >= 0.6:
		return models.MatchFuzzy
	default:
		return models.MatchPartial
	}
}

func sameCalendarDay(a, b models.Transaction) bool {
	ay, am, ad := a.PostedAt.Date()
	by, bm, bd := b.PostedAt.Date()
	return ay == by && am == bm && ad == bd
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
