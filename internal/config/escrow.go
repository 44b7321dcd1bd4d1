package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	RefundPolicyFull    = "full"
	RefundPolicyForfeit = "forfeit"
)

// RequestTimeout bounds how long a handler may run. An idempotency lock must
// outlive it, or a retry could start while the first request still runs.
const RequestTimeout = 60 * time.Second

type EscrowConfig struct {
	RefundPolicy            string
	PlatformAccountUserID   int64
	Currency                string
	AutoRepairCommitmentFee int64
	ApartmentAutoConfirm    bool
	MaxOrderLines           int
	PaymentRequestTTL       time.Duration
	IdempotencyTTL          time.Duration
	IdempotencyLockTimeout  time.Duration
	PayoutDebtorBIC         string
}

// LoadEscrowConfig returns escrow configuration with defaults
func LoadEscrowConfig() *EscrowConfig {
	viper.SetDefault("escrow.refund_policy", RefundPolicyFull)
	viper.SetDefault("escrow.platform_account_user_id", 1)
	viper.SetDefault("escrow.currency", "NGN")
	viper.SetDefault("escrow.auto_repair_commitment_fee", 500000)
	viper.SetDefault("escrow.apartment_auto_confirm", true)
	viper.SetDefault("escrow.max_order_lines", 50)
	viper.SetDefault("escrow.payment_request_ttl", 5*time.Minute)
	viper.SetDefault("idempotency.ttl", 24*time.Hour)
	viper.SetDefault("idempotency.lock_timeout", RequestTimeout+5*time.Second)
	viper.SetDefault("payout.debtor_bic", "SOUQNGLA")

	return &EscrowConfig{
		RefundPolicy:            strings.ToLower(viper.GetString("escrow.refund_policy")),
		PlatformAccountUserID:   viper.GetInt64("escrow.platform_account_user_id"),
		Currency:                strings.ToUpper(viper.GetString("escrow.currency")),
		AutoRepairCommitmentFee: viper.GetInt64("escrow.auto_repair_commitment_fee"),
		ApartmentAutoConfirm:    viper.GetBool("escrow.apartment_auto_confirm"),
		MaxOrderLines:           viper.GetInt("escrow.max_order_lines"),
		PaymentRequestTTL:       viper.GetDuration("escrow.payment_request_ttl"),
		IdempotencyTTL:          viper.GetDuration("idempotency.ttl"),
		IdempotencyLockTimeout:  viper.GetDuration("idempotency.lock_timeout"),
		PayoutDebtorBIC:         strings.ToUpper(viper.GetString("payout.debtor_bic")),
	}
}

// Validate reports every invalid setting at once.
func (c *EscrowConfig) Validate() error {
	var problems []string

	if c.RefundPolicy != RefundPolicyFull && c.RefundPolicy != RefundPolicyForfeit {
		problems = append(problems, fmt.Sprintf("escrow.refund_policy must be %q or %q, got %q", RefundPolicyFull, RefundPolicyForfeit, c.RefundPolicy))
	}
	if c.RefundPolicy == RefundPolicyForfeit && c.PlatformAccountUserID <= 0 {
		problems = append(problems, "escrow.platform_account_user_id is required for the forfeit policy")
	}
	if len(c.Currency) != 3 {
		problems = append(problems, "escrow.currency must be a 3-letter code")
	}
	if c.AutoRepairCommitmentFee <= 0 {
		problems = append(problems, "escrow.auto_repair_commitment_fee must be positive")
	}
	if c.MaxOrderLines <= 0 {
		problems = append(problems, "escrow.max_order_lines must be positive")
	}
	if c.PaymentRequestTTL <= 0 {
		problems = append(problems, "escrow.payment_request_ttl must be positive")
	}
	if c.IdempotencyTTL <= 0 {
		problems = append(problems, "idempotency.ttl must be positive")
	}
	if c.IdempotencyLockTimeout < RequestTimeout {
		problems = append(problems, fmt.Sprintf("idempotency.lock_timeout must be at least the %s request timeout", RequestTimeout))
	}
	if n := len(c.PayoutDebtorBIC); n != 8 && n != 11 {
		problems = append(problems, "payout.debtor_bic must have 8 or 11 characters")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid escrow configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
