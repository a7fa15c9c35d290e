package market

import (
	"math/big"
	"strconv"
)

func (e *Engine) updateParams(caller [20]byte, checkPause bool, field string, apply func(params *Params) (string, error)) (Params, error) {
	var updated Params
	err := e.execute(checkPause, func(now uint64, params *Params) error {
		if !isAdmin(params, caller) {
			return ErrNotAdmin
		}
		value, err := apply(params)
		if err != nil {
			return err
		}
		if err := params.Validate(); err != nil {
			return err
		}
		if err := e.state.MarketPutParams(*params); err != nil {
			return err
		}
		e.emit(paramsUpdatedEvent(field, value))
		updated = params.Clone()
		return nil
	})
	return updated, err
}

// SetMinimumFee changes the stable-unit minimum for new provider fees.
// Existing providers are not re-checked.
func (e *Engine) SetMinimumFee(caller [20]byte, minimum *big.Int) (Params, error) {
	return e.updateParams(caller, true, "minimumFee", func(params *Params) (string, error) {
		if minimum == nil || minimum.Sign() < 0 {
			return "", ErrInvalidAmount
		}
		params.MinimumFee = new(big.Int).Set(minimum)
		return minimum.String(), nil
	})
}

// SetMinimumDeposit changes the stable-unit minimum balance required for a
// first subscription.
func (e *Engine) SetMinimumDeposit(caller [20]byte, minimum *big.Int) (Params, error) {
	return e.updateParams(caller, true, "minimumDeposit", func(params *Params) (string, error) {
		if minimum == nil || minimum.Sign() < 0 {
			return "", ErrInvalidAmount
		}
		params.MinimumDeposit = new(big.Int).Set(minimum)
		return minimum.String(), nil
	})
}

// SetProviderCapacity changes the provider limit. Lowering it below the
// current count only blocks new registrations.
func (e *Engine) SetProviderCapacity(caller [20]byte, capacity uint64) (Params, error) {
	return e.updateParams(caller, true, "maxProviders", func(params *Params) (string, error) {
		params.MaxProviders = capacity
		return strconv.FormatUint(capacity, 10), nil
	})
}

// SetPeriodLength changes the number of ticks per billing period. The new
// rate applies to all unsettled accrual.
func (e *Engine) SetPeriodLength(caller [20]byte, ticks uint64) (Params, error) {
	return e.updateParams(caller, true, "periodLength", func(params *Params) (string, error) {
		params.PeriodLength = ticks
		return strconv.FormatUint(ticks, 10), nil
	})
}

// TransferAdmin hands the administrative capability to another principal.
func (e *Engine) TransferAdmin(caller [20]byte, next [20]byte) (Params, error) {
	return e.updateParams(caller, true, "admin", func(params *Params) (string, error) {
		if isZeroAddress(next) {
			return "", ErrZeroOwner
		}
		params.Admin = next
		return addr(next), nil
	})
}

// SetModulePaused toggles the module-wide pause switch. While paused every
// mutating call except this one fails; reads keep working.
func (e *Engine) SetModulePaused(caller [20]byte, paused bool) error {
	_, err := e.updateParams(caller, false, "paused", func(params *Params) (string, error) {
		if err := e.state.SetModulePaused(moduleName, paused); err != nil {
			return "", err
		}
		return strconv.FormatBool(paused), nil
	})
	return err
}
