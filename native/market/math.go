package market

import "math/big"

// Precision scales the per-tick rate so short intervals do not truncate to
// zero.
var Precision = mustBigInt("1000000000000000000")

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// RatePerTick returns fee * Precision / period.
func RatePerTick(fee *big.Int, period uint64) *big.Int {
	if fee == nil || fee.Sign() <= 0 || period == 0 {
		return big.NewInt(0)
	}
	rate := new(big.Int).Mul(fee, Precision)
	return rate.Quo(rate, new(big.Int).SetUint64(period))
}

// Accrued returns ticks * rate / Precision.
func Accrued(rate *big.Int, ticks uint64) *big.Int {
	owed, _ := AccruedWithCarry(rate, ticks, nil)
	return owed
}

// AccruedWithCarry adds carry to ticks * rate and splits the sum into whole
// units and the remainder below Precision.
func AccruedWithCarry(rate *big.Int, ticks uint64, carry *big.Int) (*big.Int, *big.Int) {
	scaled := newBigInt(carry)
	if rate != nil && rate.Sign() > 0 && ticks > 0 {
		scaled.Add(scaled, new(big.Int).Mul(rate, new(big.Int).SetUint64(ticks)))
	}
	return new(big.Int).QuoRem(scaled, Precision, new(big.Int))
}

// outstanding subtracts what was already paid toward the accrued amount,
// flooring at zero.
func outstanding(accrued, paid *big.Int) *big.Int {
	owed := new(big.Int).Sub(newBigInt(accrued), newBigInt(paid))
	if owed.Sign() < 0 {
		return owed.SetInt64(0)
	}
	return owed
}
