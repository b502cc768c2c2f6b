package mvcc

import (
	"math"
	"testing"
)

func TestMix64Golden(t *testing.T) {
	if got := Mix64(0); got != 0xE220A8397B1DCDAF {
		t.Fatalf("Mix64(0) = %#x, want 0xE220A8397B1DCDAF", got)
	}
}

func TestMix64Deterministic(t *testing.T) {
	for _, x := range []uint64{0, 1, 42, 1 << 40} {
		if Mix64(x) != Mix64(x) {
			t.Fatalf("Mix64(%d) not deterministic", x)
		}
	}
}

func TestMix64Avalanche(t *testing.T) {
	a, b := Mix64(1), Mix64(2)
	diff := a ^ b
	bits := 0
	for diff != 0 {
		bits += int(diff & 1)
		diff >>= 1
	}
	if bits < 16 {
		t.Fatalf("Mix64 adjacent inputs differ in only %d bits, want a wide avalanche", bits)
	}
}

func TestBirthdayConflictProbabilityInRange(t *testing.T) {
	p := BirthdayConflictProbabilityUniform(10, 1, 1_000_000/100)
	if p < 0 || p > 1 {
		t.Fatalf("probability out of range: %v", p)
	}
}

func TestBirthdayConflictProbabilityUniformKnownCase(t *testing.T) {
	// N=10 writers, each touching W=100 of P=1,000,000 pages comes out
	// near 36%.
	p := BirthdayConflictProbabilityUniform(10, 100, 1_000_000)
	if math.Abs(p-0.36) > 0.05 {
		t.Fatalf("BirthdayConflictProbabilityUniform(10, 100, 1e6) = %v, want ~0.36", p)
	}
}

func TestBirthdayConflictProbabilityM2AgreesWithUniform(t *testing.T) {
	const nWriters, writeSet, totalPages = 10, uint64(100), uint64(1_000_000)
	m2, ok := ExactM2([]uint64{}, 1)
	_ = m2
	_ = ok
	uniform := BirthdayConflictProbabilityUniform(nWriters, writeSet, totalPages)
	approxM2 := float64(writeSet) * float64(writeSet) / float64(totalPages)
	viaM2 := BirthdayConflictProbabilityM2(nWriters, approxM2)
	if math.Abs(uniform-viaM2) > 0.02 {
		t.Fatalf("uniform=%v viaM2=%v diverge too much", uniform, viaM2)
	}
}

func TestExactM2ZeroTxns(t *testing.T) {
	if _, ok := ExactM2(nil, 0); ok {
		t.Fatal("ExactM2 with txnCount=0 should report ok=false")
	}
}

func TestEffectiveCollisionPoolInfiniteAtZero(t *testing.T) {
	if p := EffectiveCollisionPool(0); !math.IsInf(p, 1) {
		t.Fatalf("EffectiveCollisionPool(0) = %v, want +Inf", p)
	}
}

func TestEffectiveCollisionPoolInverse(t *testing.T) {
	if p := EffectiveCollisionPool(0.25); p != 4 {
		t.Fatalf("EffectiveCollisionPool(0.25) = %v, want 4", p)
	}
}

func TestAMSSketchMemoryBound(t *testing.T) {
	s := NewAMSSketch(AMSConfig{Rows: 12})
	if got := s.MemoryBytes(); got > 296 {
		t.Fatalf("AMSSketch with 12 rows uses %d bytes, want <= 296", got)
	}
}

func TestAMSSketchOverflowProtectionOneMillionIdenticalWriteSets(t *testing.T) {
	s := NewAMSSketch(AMSConfig{Rows: 12})
	ws := []uint64{7}
	for i := 0; i < 1_000_000; i++ {
		s.ObserveWriteSet(ws)
	}
	if s.TxnCount() != 1_000_000 {
		t.Fatalf("TxnCount = %d, want 1000000", s.TxnCount())
	}
	// Every row's accumulator moves by a fixed sign per observation, so
	// after a million identical write-sets F2Hat must still be finite and
	// representable (no silent wraparound back to a tiny value).
	f2 := s.F2Hat()
	if f2 == 0 {
		t.Fatal("F2Hat() == 0 after a million nonzero observations, suspect silent overflow")
	}
}

func TestAMSSketchDeterministicReplay(t *testing.T) {
	cfg := AMSConfig{Rows: 8, DBEpoch: 1, RegimeID: 2, WindowID: 3}
	a := NewAMSSketch(cfg)
	b := NewAMSSketch(cfg)
	writeSets := [][]uint64{{1, 2, 3}, {2, 3, 4}, {1, 4}, {5}}
	for _, ws := range writeSets {
		a.ObserveWriteSet(ws)
		b.ObserveWriteSet(ws)
	}
	if a.F2Hat() != b.F2Hat() {
		t.Fatalf("replaying identical write-sets through two sketches with the same config diverged: %d != %d", a.F2Hat(), b.F2Hat())
	}
}

func TestAMSSketchResetWindow(t *testing.T) {
	s := NewAMSSketch(AMSConfig{Rows: 4})
	s.ObserveWriteSet([]uint64{1, 2, 3})
	if s.TxnCount() == 0 {
		t.Fatal("expected nonzero txn count before reset")
	}
	s.ResetWindow()
	if s.TxnCount() != 0 {
		t.Fatalf("TxnCount after ResetWindow = %d, want 0", s.TxnCount())
	}
	if _, ok := s.M2Hat(); ok {
		t.Fatal("M2Hat should report ok=false immediately after ResetWindow")
	}
}

func TestAMSSketchZipfSkewTracksM2(t *testing.T) {
	s := NewAMSSketch(AMSConfig{Rows: 16})
	// Heavily skewed write-set: page 1 is touched by almost every
	// transaction, the rest touch disjoint pages once each.
	for i := 0; i < 200; i++ {
		s.ObserveWriteSet([]uint64{1})
	}
	for i := 0; i < 50; i++ {
		s.ObserveWriteSet([]uint64{uint64(100 + i)})
	}
	m2, ok := s.M2Hat()
	if !ok {
		t.Fatal("expected M2Hat to be defined")
	}
	if m2 <= 0 {
		t.Fatalf("skewed workload should have positive collision mass, got %v", m2)
	}
}

func TestAMSSignDeterministic(t *testing.T) {
	seed, pgno := uint64(123), uint64(456)
	if AMSSign(seed, pgno) != AMSSign(seed, pgno) {
		t.Fatal("AMSSign not deterministic for fixed inputs")
	}
	sign := AMSSign(seed, pgno)
	if sign != 1 && sign != -1 {
		t.Fatalf("AMSSign returned %d, want +-1", sign)
	}
}
