package config

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeRateDecimal parses the configured fee rate.
func (s SettlementConfig) FeeRateDecimal() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(s.FeeRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement.fee_rate %q: %w", s.FeeRate, err)
	}
	return rate, nil
}

// Validate rejects configurations the settlement pipeline cannot run with.
func (c *Config) Validate() error {
	rate, err := c.Settlement.FeeRateDecimal()
	if err != nil {
		return err
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("settlement.fee_rate must be in [0, 1), got %s", rate)
	}
	if c.Settlement.Threshold <= 0 {
		return fmt.Errorf("settlement.threshold must be positive, got %d", c.Settlement.Threshold)
	}
	if c.Gateway.MaxRetries < 1 {
		return fmt.Errorf("gateway.max_retries must be at least 1, got %d", c.Gateway.MaxRetries)
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver)
	}
	return nil
}
