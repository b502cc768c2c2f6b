package wal

import (
	"golang.org/x/crypto/blake2b"

	"github.com/leftmike/frankensqlite/dberr"
)

// GF(256) arithmetic over the QR-code/Reed-Solomon field polynomial
// x^8+x^4+x^3+x^2+1 (0x11D), used to build systematic Reed-Solomon-style
// parity symbols for a commit group: any k intact symbols of the k+r
// written (frames plus parity, via a Vandermonde parity matrix) suffice to
// reconstruct the group.
var (
	gfExp [512]byte
	gfLog [256]byte
)

func init() {
	x := byte(1)
	for i := 0; i < 255; i++ {
		gfExp[i] = x
		gfLog[x] = byte(i)
		hi := x&0x80 != 0
		x <<= 1
		if hi {
			x ^= 0x1D
		}
	}
	for i := 255; i < 512; i++ {
		gfExp[i] = gfExp[i-255]
	}
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[int(gfLog[a])+int(gfLog[b])]
}

// RepairSymbol is one parity block computed over a commit group's frames,
// plus a blake2b integrity digest. The sidecar can afford a stronger hash
// than the frame chain's, since it never replaces the primary checksum
// chain the recovery scan walks.
type RepairSymbol struct {
	Coeff byte // Vandermonde row coefficient for this symbol
	Data  []byte
	Hash  [32]byte
}

// EncodeGroup computes numRepair parity symbols over the frames of a
// commit group (each frame's raw bytes, header+body, treated as one
// systematic source symbol). Default overhead is 20%:
// callers compute numRepair = ceil(len(frames) * overheadPercent / 100).
func EncodeGroup(frames [][]byte, numRepair int) ([]RepairSymbol, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	symLen := len(frames[0])
	for _, f := range frames {
		if len(f) != symLen {
			return nil, dberr.New(dberr.Internal, "fec: frames must be uniform length")
		}
	}

	symbols := make([]RepairSymbol, numRepair)
	for r := 0; r < numRepair; r++ {
		coeff := byte(r + 1) // distinct nonzero Vandermonde abscissas
		data := make([]byte, symLen)
		weight := byte(1)
		for _, f := range frames {
			for i, b := range f {
				data[i] ^= gfMul(weight, b)
			}
			weight = gfMul(weight, coeff)
		}
		symbols[r] = RepairSymbol{Coeff: coeff, Data: data, Hash: blake2b.Sum256(data)}
	}
	return symbols, nil
}

// Repair reconstructs every frame index flagged in bad (the caller judges
// each frame against its checksum chain) from the surviving good frames
// plus repair symbols, via Gauss-Jordan elimination over GF(256). It
// returns dberr.Corrupt if there are fewer repair symbols than flagged
// frames to solve for.
func Repair(frames [][]byte, bad []bool, symbols []RepairSymbol) error {
	var badIdx []int
	for i, b := range bad {
		if b {
			badIdx = append(badIdx, i)
		}
	}
	if len(badIdx) == 0 {
		return nil
	}
	if len(badIdx) > len(symbols) {
		return dberr.New(dberr.Corrupt,
			"fec: %d frames unrecoverable, only %d repair symbols available",
			len(badIdx), len(symbols))
	}

	symLen := len(symbols[0].Data)
	n := len(badIdx)
	// Build the n x n coefficient matrix (rows = first n repair symbols,
	// columns = unknown frame positions) and solve per byte column, since
	// GF(256) arithmetic has no useful SIMD batching here anyway.
	a := make([][]byte, n)
	for r := 0; r < n; r++ {
		a[r] = make([]byte, n)
		for c, idx := range badIdx {
			a[r][c] = gfPow(symbols[r].Coeff, idx)
		}
	}
	rhs := make([][]byte, n)
	for r := 0; r < n; r++ {
		rhs[r] = append([]byte(nil), symbols[r].Data...)
		for i, f := range frames {
			if bad[i] {
				continue
			}
			weight := gfPow(symbols[r].Coeff, i)
			for k := range rhs[r] {
				rhs[r][k] ^= gfMul(weight, f[k])
			}
		}
	}

	if err := gfSolve(a, rhs, n, symLen); err != nil {
		return err
	}
	for r, idx := range badIdx {
		copy(frames[idx], rhs[r])
	}
	return nil
}

func gfPow(base byte, exp int) byte {
	r := byte(1)
	for i := 0; i < exp; i++ {
		r = gfMul(r, base)
	}
	return r
}

func gfInv(a byte) byte {
	if a == 0 {
		return 0
	}
	return gfExp[255-int(gfLog[a])]
}

// gfSolve performs Gauss-Jordan elimination of a*x = rhs (n equations, n
// unknowns, symLen bytes per unknown solved in parallel column-wise).
func gfSolve(a [][]byte, rhs [][]byte, n, symLen int) error {
	for col := 0; col < n; col++ {
		pivot := -1
		for r := col; r < n; r++ {
			if a[r][col] != 0 {
				pivot = r
				break
			}
		}
		if pivot < 0 {
			return dberr.New(dberr.Corrupt, "fec: singular repair matrix")
		}
		a[col], a[pivot] = a[pivot], a[col]
		rhs[col], rhs[pivot] = rhs[pivot], rhs[col]

		inv := gfInv(a[col][col])
		for c := 0; c < n; c++ {
			a[col][c] = gfMul(a[col][c], inv)
		}
		for k := 0; k < symLen; k++ {
			rhs[col][k] = gfMul(rhs[col][k], inv)
		}

		for r := 0; r < n; r++ {
			if r == col || a[r][col] == 0 {
				continue
			}
			factor := a[r][col]
			for c := 0; c < n; c++ {
				a[r][c] ^= gfMul(factor, a[col][c])
			}
			for k := 0; k < symLen; k++ {
				rhs[r][k] ^= gfMul(factor, rhs[col][k])
			}
		}
	}
	return nil
}
