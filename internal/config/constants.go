package config

import "github.com/shopspring/decimal"

const (
	// Withdrawal conversion: 20 coins = 1 dollar.
	CoinsPerDollar = 20

	// Minimum withdrawal (200 coins = 10 dollars).
	MinWithdrawalCoins = 200
)

// ConversionTolerance is the allowed gap between a requested withdrawal amount and coins/CoinsPerDollar.
var ConversionTolerance = decimal.RequireFromString("0.01")

// PaymentSystems accepted for withdrawals.
var PaymentSystems = []string{"Stripe", "Bkash", "Rocket", "Nagad"}

// IsPaymentSystem reports whether name is an accepted withdrawal payment system.
func IsPaymentSystem(name string) bool {
	for _, s := range PaymentSystems {
		if s == name {
			return true
		}
	}
	return false
}
