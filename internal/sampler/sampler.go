// Package sampler turns a raw logits vector into the next token id.
// The stage order is fixed: repeat penalty, top-k, top-p, temperature,
// seeded draw. Given identical logits, configuration and seed the
// pipeline always returns the identical token.
package sampler

import (
	"math"
	"math/rand"
)

// Config configures the behaviour of a Sampler.
type Config struct {
	Seed          int64
	Temperature   float64
	TopK          int     // 0 disables the top-k filter
	TopP          float64 // (0,1]; 1 disables the top-p filter
	RepeatPenalty float64 // 1 disables the repeat penalty
	PenaltyLastN  int     // size of the emitted-token window
}

// Sampler draws tokens from logits vectors. It keeps a ring of the
// last PenaltyLastN emitted tokens for the repeat penalty; everything
// else is per-call.
type Sampler struct {
	rng *rand.Rand
	cfg Config

	// penalty window ring
	ring    []int
	ringPos int
	ringN   int

	// reusable scratch
	topIdx []int
	topVal []float64
	prob   []float64
}

// New returns a sampler with the provided configuration. Out-of-range
// values degrade to their disabled forms rather than erroring.
func New(cfg Config) *Sampler {
	if cfg.Temperature < 0 {
		cfg.Temperature = 0
	}
	if cfg.TopK < 0 {
		cfg.TopK = 0
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	if cfg.RepeatPenalty <= 0 {
		cfg.RepeatPenalty = 1
	}
	if cfg.PenaltyLastN < 0 {
		cfg.PenaltyLastN = 0
	}
	s := &Sampler{
		rng: rand.New(rand.NewSource(cfg.Seed)),
		cfg: cfg,
	}
	if cfg.PenaltyLastN > 0 {
		s.ring = make([]int, cfg.PenaltyLastN)
	}
	return s
}

// Sample draws one token id from logits and records it in the penalty
// window. The logits slice is not modified.
func (s *Sampler) Sample(logits []float32) int {
	if len(logits) == 0 {
		return 0
	}

	idx, val := s.shortlist(logits)

	if s.cfg.Temperature == 0 {
		// Arg-max selection; shortlist is sorted descending.
		tok := idx[0]
		s.observe(tok)
		return tok
	}

	// Top-p: retain the smallest prefix whose cumulative probability
	// reaches TopP, measured before temperature scaling.
	cut := len(val)
	if s.cfg.TopP < 1 {
		prob := s.softmax(val)
		var c float64
		for i := range prob {
			c += prob[i]
			if c >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}
	idx = idx[:cut]
	val = val[:cut]

	for i := range val {
		val[i] /= s.cfg.Temperature
	}

	prob := s.softmax(val)
	r := s.rng.Float64()
	var c float64
	for i := range prob {
		c += prob[i]
		if r <= c {
			s.observe(idx[i])
			return idx[i]
		}
	}
	tok := idx[len(idx)-1]
	s.observe(tok)
	return tok
}

// shortlist applies the repeat penalty and top-k filter, returning
// candidate ids and their penalized logits sorted descending by value.
func (s *Sampler) shortlist(logits []float32) ([]int, []float64) {
	k := s.cfg.TopK
	if k == 0 || k > len(logits) {
		k = len(logits)
	}
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float64, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, l := range logits {
		v := float64(l)
		if n := s.penaltyCount(i); n > 0 && s.cfg.RepeatPenalty != 1 {
			if v > 0 {
				v /= s.cfg.RepeatPenalty
			} else {
				v *= s.cfg.RepeatPenalty
			}
		}

		// Insertion into a descending shortlist capped at k.
		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}
		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v
		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}

// softmax computes probabilities for vals with max subtraction for
// numerical stability, reusing the sampler's scratch buffer.
func (s *Sampler) softmax(vals []float64) []float64 {
	if cap(s.prob) < len(vals) {
		s.prob = make([]float64, len(vals))
	}
	prob := s.prob[:len(vals)]
	maxv := vals[0]
	for _, v := range vals[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i, v := range vals {
		e := math.Exp(v - maxv)
		prob[i] = e
		sum += e
	}
	if sum == 0 {
		// Degenerate distribution; fall back to the first candidate.
		for i := range prob {
			prob[i] = 0
		}
		prob[0] = 1
		return prob
	}
	inv := 1 / sum
	for i := range prob {
		prob[i] *= inv
	}
	return prob
}

func (s *Sampler) penaltyCount(tok int) int {
	n := 0
	for i := 0; i < s.ringN; i++ {
		if s.ring[i] == tok {
			n++
		}
	}
	return n
}

func (s *Sampler) observe(tok int) {
	if len(s.ring) == 0 {
		return
	}
	s.ring[s.ringPos] = tok
	s.ringPos = (s.ringPos + 1) % len(s.ring)
	if s.ringN < len(s.ring) {
		s.ringN++
	}
}

// Window returns the emitted tokens currently in the penalty window,
// oldest first.
func (s *Sampler) Window() []int {
	out := make([]int, 0, s.ringN)
	start := 0
	if s.ringN == len(s.ring) {
		start = s.ringPos
	}
	for i := 0; i < s.ringN; i++ {
		out = append(out, s.ring[(start+i)%len(s.ring)])
	}
	return out
}
