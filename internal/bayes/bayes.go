// Package bayes evaluates Bayesian binary (Bernoulli) A/B tests from
// aggregate success/trial counts. Each arm gets a Beta posterior; arms are
// compared by Monte Carlo sampling to estimate the probability of each arm
// being the best one.
package bayes

import (
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// Jeffreys prior Beta(1/2, 1/2).
	priorAlpha = 0.5
	priorBeta  = 0.5

	defaultSamples = 20000
)

// ArmResult is the posterior summary for a single arm.
type ArmResult struct {
	Arm           string  `json:"arm"`
	Positives     int     `json:"positives"`
	Totals        int     `json:"totals"`
	PosteriorMean float64 `json:"posterior_mean"`
	CredibleLow   float64 `json:"credible_low"`
	CredibleHigh  float64 `json:"credible_high"`
	ProbBeingBest float64 `json:"prob_being_best"`
}

type arm struct {
	name      string
	positives int
	totals    int
}

// BinaryTest accumulates aggregate counts per arm. Zero value is not usable;
// construct with NewBinaryTest or NewBinaryTestSeeded.
type BinaryTest struct {
	arms    []arm
	samples int
	src     rand.Source
}

func NewBinaryTest() *BinaryTest {
	return NewBinaryTestSeeded(uint64(time.Now().UnixNano()))
}

// NewBinaryTestSeeded fixes the Monte Carlo source, making Evaluate
// deterministic for a given sequence of AddArm calls.
func NewBinaryTestSeeded(seed uint64) *BinaryTest {
	return &BinaryTest{samples: defaultSamples, src: rand.NewSource(seed)}
}

// AddArm registers aggregate data for one arm. Totals below the number of
// positives are clamped; totals below 1 are raised to 1 so the posterior stays
// well defined.
func (t *BinaryTest) AddArm(name string, positives, totals int) {
	if positives < 0 {
		positives = 0
	}
	if totals < 1 {
		totals = 1
	}
	if totals < positives {
		totals = positives
	}
	t.arms = append(t.arms, arm{name: name, positives: positives, totals: totals})
}

// Evaluate returns one summary per arm, in AddArm order. The credible bounds
// are the central 95% interval of the Beta posterior.
func (t *BinaryTest) Evaluate() []ArmResult {
	if len(t.arms) == 0 {
		return nil
	}
	dists := make([]distuv.Beta, len(t.arms))
	out := make([]ArmResult, len(t.arms))
	for i, a := range t.arms {
		d := distuv.Beta{
			Alpha: priorAlpha + float64(a.positives),
			Beta:  priorBeta + float64(a.totals-a.positives),
			Src:   t.src,
		}
		dists[i] = d
		out[i] = ArmResult{
			Arm:           a.name,
			Positives:     a.positives,
			Totals:        a.totals,
			PosteriorMean: d.Mean(),
			CredibleLow:   d.Quantile(0.025),
			CredibleHigh:  d.Quantile(0.975),
		}
	}
	wins := make([]int, len(t.arms))
	for s := 0; s < t.samples; s++ {
		best := 0
		bestVal := dists[0].Rand()
		for i := 1; i < len(dists); i++ {
			if v := dists[i].Rand(); v > bestVal {
				best, bestVal = i, v
			}
		}
		wins[best]++
	}
	for i := range out {
		out[i].ProbBeingBest = float64(wins[i]) / float64(t.samples)
	}
	return out
}
