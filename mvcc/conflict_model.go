package mvcc

import (
	"encoding/binary"
	"math"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Probabilistic conflict telemetry: birthday-paradox conflict-probability
// estimation plus an AMS F2 sketch for bounded-memory write-set skew
// estimation, used as a runtime signal (not a correctness mechanism) for
// whether the merge ladder is worth enabling under the observed write
// pattern.
//
// mix64 is the standard SplitMix64 finalizer; seed derivation uses
// blake2b for the per-row hash family.

// Mix64 is the SplitMix64 finalizer: deterministic, avalanching 64-bit
// mix.
func Mix64(x uint64) uint64 {
	z := x + 0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// PairwiseConflictProbability approximates P(conflict) ~ 1 - exp(-W^2/P),
// valid when W << P.
func PairwiseConflictProbability(writeSetSize, totalPages uint64) float64 {
	if totalPages == 0 {
		return 1.0
	}
	w, p := float64(writeSetSize), float64(totalPages)
	return 1.0 - math.Exp(-w*w/p)
}

// BirthdayConflictProbabilityUniform is the N-writer birthday-paradox
// conflict probability under a uniform write-target model:
// P(any conflict) ~ 1 - exp(-N(N-1)*W^2/(2P)).
func BirthdayConflictProbabilityUniform(nWriters, writeSetSize, totalPages uint64) float64 {
	if nWriters < 2 {
		return 0.0
	}
	if totalPages == 0 {
		return 1.0
	}
	n, w, p := float64(nWriters), float64(writeSetSize), float64(totalPages)
	exponent := n * (n - 1) * w * w / (2 * p)
	return 1.0 - math.Exp(-exponent)
}

// BirthdayConflictProbabilityM2 is the same probability expressed via the
// collision mass M2: P(any conflict) ~ 1 - exp(-C(N,2) * M2).
func BirthdayConflictProbabilityM2(nWriters uint64, m2 float64) float64 {
	if nWriters < 2 {
		return 0.0
	}
	n := float64(nWriters)
	exponent := n * (n - 1) / 2 * m2
	return 1.0 - math.Exp(-exponent)
}

// ExactM2 computes the exact collision mass M2 = F2 / txnCount^2 from
// per-page incidence counts, where F2 = sum(c_pgno^2). ok is false if
// txnCount is 0.
func ExactM2(incidenceCounts []uint64, txnCount uint64) (m2 float64, ok bool) {
	if txnCount == 0 {
		return 0, false
	}
	var f2 float64
	for _, c := range incidenceCounts {
		f2 += float64(c) * float64(c)
	}
	tc := float64(txnCount)
	return f2 / (tc * tc), true
}

// EffectiveCollisionPool returns P_eff = 1/M2, or +Inf if m2 is zero or
// non-finite.
func EffectiveCollisionPool(m2 float64) float64 {
	if m2 == 0 || math.IsNaN(m2) || math.IsInf(m2, 0) {
		return math.Inf(1)
	}
	return 1.0 / m2
}

// DefaultAMSRows is the default number of independent sign-hash functions.
const DefaultAMSRows = 12

// AMSConfig seeds an AMSSketch's per-row hash functions deterministically.
type AMSConfig struct {
	Rows     int
	DBEpoch  uint64
	RegimeID uint64
	WindowID uint64
}

func (c AMSConfig) seedForRow(row int) uint64 {
	h, _ := blake2b.New256(nil)
	h.Write([]byte("fsqlite:m2:ams:v1"))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], c.DBEpoch)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], c.RegimeID)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], c.WindowID)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(row))
	h.Write(buf[:])
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}

// AMSSketch is a bounded-memory AMS F2 sketch: R signed accumulators,
// updated O(R) per page touched, yielding F2_hat = median(z_r^2) at
// window end.
type AMSSketch struct {
	seeds        []uint64
	accumulators []int64
	txnCount     uint64
}

func NewAMSSketch(cfg AMSConfig) *AMSSketch {
	if cfg.Rows == 0 {
		cfg.Rows = DefaultAMSRows
	}
	seeds := make([]uint64, cfg.Rows)
	for i := range seeds {
		seeds[i] = cfg.seedForRow(i)
	}
	return &AMSSketch{seeds: seeds, accumulators: make([]int64, cfg.Rows)}
}

// AMSSign computes the AMS sign for (seed, pgno): +1 if the low bit of
// Mix64(seed^pgno) is 0, else -1.
func AMSSign(seed, pgno uint64) int {
	if Mix64(seed^pgno)&1 == 0 {
		return 1
	}
	return -1
}

// ObserveWriteSet folds one transaction's de-duplicated write-set page
// numbers into the sketch.
func (s *AMSSketch) ObserveWriteSet(writeSet []uint64) {
	s.txnCount++
	for _, pgno := range writeSet {
		for r, seed := range s.seeds {
			s.accumulators[r] += int64(AMSSign(seed, pgno))
		}
	}
}

// F2Hat returns the median of z_r^2 across accumulators, taking the
// lower-middle element for an even row count as the conservative
// tie-break.
func (s *AMSSketch) F2Hat() uint64 {
	if len(s.accumulators) == 0 {
		return 0
	}
	squares := make([]uint64, len(s.accumulators))
	for i, z := range s.accumulators {
		abs := uint64(z)
		if z < 0 {
			abs = uint64(-z)
		}
		squares[i] = abs * abs
	}
	sort.Slice(squares, func(i, j int) bool { return squares[i] < squares[j] })
	return squares[(len(squares)-1)/2]
}

// M2Hat returns F2Hat / txnCount^2, or ok=false if no transactions have
// been observed.
func (s *AMSSketch) M2Hat() (m2 float64, ok bool) {
	if s.txnCount == 0 {
		return 0, false
	}
	return float64(s.F2Hat()) / (float64(s.txnCount) * float64(s.txnCount)), true
}

// PEffHat returns 1/M2Hat, or +Inf if undefined.
func (s *AMSSketch) PEffHat() float64 {
	m2, ok := s.M2Hat()
	if !ok {
		return math.Inf(1)
	}
	return EffectiveCollisionPool(m2)
}

// TxnCount returns the number of write-sets folded into the sketch.
func (s *AMSSketch) TxnCount() uint64 { return s.txnCount }

// ResetWindow clears the accumulators for a new observation window,
// preserving the seeds.
func (s *AMSSketch) ResetWindow() {
	for i := range s.accumulators {
		s.accumulators[i] = 0
	}
	s.txnCount = 0
}

// MemoryBytes reports the sketch's approximate in-memory footprint.
func (s *AMSSketch) MemoryBytes() int {
	return len(s.seeds)*8 + len(s.accumulators)*8 + 8
}
