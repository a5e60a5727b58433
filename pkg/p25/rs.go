package p25

// Reed-Solomon codes over GF(2^6) carrying 6 bit hexbits. All three codes used
// by Phase 1 are shortened from RS(63,k) with generator roots alpha^1..alpha^(n-k).

const gfPrimitive = 0x43 // x^6 + x + 1

var gfExp, gfLog = func() ([126]uint8, [64]uint8) {
	var exp [126]uint8
	var log [64]uint8
	x := 1
	for i := 0; i < 63; i++ {
		exp[i] = uint8(x)
		exp[i+63] = uint8(x)
		log[x] = uint8(i)
		x <<= 1
		if x&0x40 != 0 {
			x ^= gfPrimitive
		}
	}
	return exp, log
}()

func gfMul(a, b uint8) uint8 {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[int(gfLog[a])+int(gfLog[b])]
}

func gfDiv(a, b uint8) uint8 {
	if a == 0 {
		return 0
	}
	return gfExp[(int(gfLog[a])-int(gfLog[b])+63)%63]
}

func gfPow(e int) uint8 {
	e %= 63
	if e < 0 {
		e += 63
	}
	return gfExp[e]
}

// ReedSolomon is a shortened RS(N,K) code over hexbits.
type ReedSolomon struct {
	N, K      int
	generator []uint8
}

var (
	RS24_12 = NewReedSolomon(24, 12)
	RS24_16 = NewReedSolomon(24, 16)
	RS36_20 = NewReedSolomon(36, 20)
)

func NewReedSolomon(n, k int) *ReedSolomon {
	// generator coefficients, highest degree first
	g := []uint8{1}
	for j := 1; j <= n-k; j++ {
		root := gfPow(j)
		next := make([]uint8, len(g)+1)
		for i, c := range g {
			next[i] ^= c
			next[i+1] ^= gfMul(c, root)
		}
		g = next
	}
	return &ReedSolomon{N: n, K: k, generator: g}
}

// Encode returns the N hexbit codeword for K data hexbits.
func (r *ReedSolomon) Encode(data []uint8) []uint8 {
	nk := r.N - r.K
	parity := make([]uint8, nk)
	for i := 0; i < r.K; i++ {
		fb := (data[i] & 0x3f) ^ parity[0]
		copy(parity, parity[1:])
		parity[nk-1] = 0
		if fb != 0 {
			for j := 0; j < nk; j++ {
				parity[j] ^= gfMul(fb, r.generator[j+1])
			}
		}
	}
	ret := make([]uint8, r.N)
	for i := 0; i < r.K; i++ {
		ret[i] = data[i] & 0x3f
	}
	copy(ret[r.K:], parity)
	return ret
}

func (r *ReedSolomon) syndromes(cw []uint8) ([]uint8, bool) {
	nk := r.N - r.K
	s := make([]uint8, nk)
	clean := true
	for j := 0; j < nk; j++ {
		root := gfPow(j + 1)
		var v uint8
		for _, c := range cw {
			v = gfMul(v, root) ^ c
		}
		s[j] = v
		if v != 0 {
			clean = false
		}
	}
	return s, clean
}

// Decode corrects up to (N-K)/2 hexbit errors in place and returns the data hexbits
// and the number of symbols corrected.
func (r *ReedSolomon) Decode(cw []uint8) ([]uint8, int, error) {
	if len(cw) != r.N {
		return nil, 0, ErrUncorrectable
	}
	work := make([]uint8, r.N)
	for i, c := range cw {
		work[i] = c & 0x3f
	}

	s, clean := r.syndromes(work)
	if clean {
		return work[:r.K], 0, nil
	}

	nk := r.N - r.K
	locator := berlekampMassey(s)
	nerr := len(locator) - 1
	if nerr == 0 || 2*nerr > nk {
		return nil, nerr, ErrUncorrectable
	}

	// error evaluator: S(x)*Lambda(x) mod x^(n-k), coefficients lowest degree first
	evaluator := make([]uint8, nk)
	for i := 0; i < nk; i++ {
		for j := 0; j <= i && j < len(locator); j++ {
			evaluator[i] ^= gfMul(locator[j], s[i-j])
		}
	}

	found := 0
	for i := 0; i < r.N; i++ {
		power := r.N - 1 - i
		xInv := gfPow(-power)
		if polyEval(locator, xInv) != 0 {
			continue
		}
		var deriv uint8
		for j := 1; j < len(locator); j += 2 {
			deriv ^= gfMul(locator[j], gfPow(-power*(j-1)))
		}
		if deriv == 0 {
			return nil, nerr, ErrUncorrectable
		}
		work[i] ^= gfDiv(polyEval(evaluator, xInv), deriv)
		found++
	}
	if found != nerr {
		return nil, nerr, ErrUncorrectable
	}
	if _, clean := r.syndromes(work); !clean {
		return nil, nerr, ErrUncorrectable
	}
	return work[:r.K], nerr, nil
}

// polyEval evaluates a polynomial given lowest degree first.
func polyEval(p []uint8, x uint8) uint8 {
	var v uint8
	for i := len(p) - 1; i >= 0; i-- {
		v = gfMul(v, x) ^ p[i]
	}
	return v
}

// berlekampMassey returns the error locator polynomial, lowest degree first, trimmed to its degree.
func berlekampMassey(s []uint8) []uint8 {
	c := []uint8{1}
	b := []uint8{1}
	l, m := 0, 1
	var bd uint8 = 1

	for n := 0; n < len(s); n++ {
		d := s[n]
		for i := 1; i <= l && i < len(c); i++ {
			d ^= gfMul(c[i], s[n-i])
		}
		if d == 0 {
			m++
			continue
		}
		coef := gfDiv(d, bd)
		t := append([]uint8(nil), c...)
		if need := len(b) + m; need > len(c) {
			c = append(c, make([]uint8, need-len(c))...)
		}
		for i, v := range b {
			c[i+m] ^= gfMul(coef, v)
		}
		if 2*l <= n {
			l = n + 1 - l
			b = t
			bd = d
			m = 1
		} else {
			m++
		}
	}
	if len(c) < l+1 {
		c = append(c, make([]uint8, l+1-len(c))...)
	}
	return c[:l+1]
}

// HexbitsToBits flattens hexbits into a bit buffer.
func HexbitsToBits(h []uint8) []byte {
	ret := make([]byte, 6*len(h))
	for i, v := range h {
		putBits(ret[6*i:], uint64(v), 6)
	}
	return ret
}

func BitsToHexbits(b []byte) []uint8 {
	ret := make([]uint8, len(b)/6)
	for i := range ret {
		ret[i] = uint8(BitsToUint64(b[6*i : 6*i+6]))
	}
	return ret
}
