package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"hr-portal/internal/model"
)

// EffectiveMinimum returns the smallest amount the user may withdraw and
// whether the user may withdraw at all. The minimum is the per-user value
// frozen at registration or set by an admin; later changes to the global
// setting do not reach existing users.
func EffectiveMinimum(user *model.User) (decimal.Decimal, bool) {
	if !user.WithdrawalEnabled {
		return decimal.Zero, false
	}
	return user.MinWithdrawalAmount, true
}

// CheckWithdrawal reports whether the user may withdraw amount right now.
// A request is valid only when withdrawals are enabled for the user, the
// amount is positive, given in whole cents, at least the effective minimum
// and at most the balance. The amount is checked exactly as it will be debited.
func CheckWithdrawal(user *model.User, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(2)) {
		return ErrAmountPrecision
	}
	minimum, enabled := EffectiveMinimum(user)
	if !enabled {
		return ErrWithdrawalDisabled
	}
	if amount.LessThan(minimum) {
		return fmt.Errorf("%w: minimum is %s", ErrBelowMinimum, minimum.StringFixed(2))
	}
	if amount.GreaterThan(user.Balance) {
		return fmt.Errorf("%w: balance is %s", ErrInsufficientBalance, user.Balance.StringFixed(2))
	}
	return nil
}
