package oracle

import "math/big"

// mulDiv computes a*b/den without intermediate overflow. ok is false when
// den is zero or the result does not fit in int64.
func mulDiv(a, b, den int64) (int64, bool) {
	if den == 0 {
		return 0, false
	}
	n := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	n.Quo(n, big.NewInt(den))
	if !n.IsInt64() {
		return 0, false
	}
	return n.Int64(), true
}

// pow10 returns 10^n as a big.Int. n is bounded by MaxDecimals in practice.
func pow10(n uint32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// scaleValue computes amount*price/10^decimals. ok is false on overflow.
func scaleValue(amount, price int64, decimals uint32) (int64, bool) {
	n := new(big.Int).Mul(big.NewInt(amount), big.NewInt(price))
	n.Quo(n, pow10(decimals))
	if !n.IsInt64() {
		return 0, false
	}
	return n.Int64(), true
}
