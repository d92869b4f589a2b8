// Package fraud scores settlements with a deterministic, explainable
// heuristic: a fixed feature embedding compared against a hardcoded
// catalogue of suspicious patterns, plus additive rule bonuses. It is
// intentionally not a trained model; identical inputs always produce
// identical scores, which keeps every flag auditable.
package fraud

import (
	"hash/fnv"
	"math"

	"github.com/francopay/settleops/internal/domain"
)

const (
	// Threshold above which the orchestrator reports the score to the
	// external ledger so it can freeze the account.
	Threshold = 75

	hashBuckets = 10_000

	roundUnit = 1_000_000

	spikeHighAmount = 5_000_000_000
	spikeLowAmount  = 1_000_000_000

	roundNumberBonus = 10
	spikeHighBonus   = 35
	spikeLowBonus    = 20
	lowEntropyBonus  = 20
)

type pattern struct {
	name string
	vec  [4]float64
}

// The pattern store. Dimensions: amount magnitude, reference hash,
// wallet hash, direction.
var suspiciousPatterns = []pattern{
	{name: "large_round_onramp", vec: [4]float64{0.9, 0.2, 0.2, 0.2}},
	{name: "replay_reference", vec: [4]float64{0.2, 0.95, 0.1, 0.2}},
	{name: "wallet_hotspot", vec: [4]float64{0.2, 0.2, 0.95, 0.2}},
	{name: "transfer_churn", vec: [4]float64{0.6, 0.2, 0.2, 1.0}},
}

// Score maps a settlement to an integer risk score in [0,100]. It never
// fails: malformed inputs degrade the score rather than erroring. Callers
// are expected to have validated amount positivity upstream.
func Score(amount int64, reference, studentWallet string, direction domain.Direction) int {
	features := embed(amount, reference, studentWallet, direction)

	maxSim := 0.0
	for _, p := range suspiciousPatterns {
		if sim := cosine(features, p.vec); sim > maxSim {
			maxSim = sim
		}
	}

	score := int(math.Round(maxSim * 60))

	// Round-number anomaly (amounts are integer base units).
	if amount%roundUnit == 0 {
		score += roundNumberBonus
	}

	// Volume spike buckets; only the higher tier applies.
	if amount >= spikeHighAmount {
		score += spikeHighBonus
	} else if amount >= spikeLowAmount {
		score += spikeLowBonus
	}

	// Low-entropy reference: a single character repeated across the key.
	if isRepeatedChar(reference, 8) {
		score += lowEntropyBonus
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func embed(amount int64, reference, studentWallet string, direction domain.Direction) [4]float64 {
	a := math.Log10(math.Max(1, float64(amount)))

	var d float64
	switch direction {
	case domain.DirectionOnramp:
		d = 0.2
	case domain.DirectionOfframp:
		d = 0.6
	default:
		d = 1.0
	}

	return [4]float64{a / 10, hash01(reference), hash01(studentWallet), d}
}

// hash01 maps a string into [0,1) with a stable, non-cryptographic hash.
// Only determinism and range matter here, not distribution quality.
func hash01(s string) float64 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return float64(h.Sum32()%hashBuckets) / hashBuckets
}

func cosine(a, b [4]float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func isRepeatedChar(s string, minLen int) bool {
	runes := []rune(s)
	if len(runes) < minLen {
		return false
	}
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}
