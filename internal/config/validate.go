package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAnchor(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAnchor() error {
	a := c.Anchor
	if a.BatchSize <= 0 {
		return errors.New("anchor.batch_size must be positive")
	}
	if a.BatchMaxWait <= 0 {
		return errors.New("anchor.batch_max_wait must be positive")
	}
	if a.SubmitInterval <= 0 || a.ConfirmInterval <= 0 {
		return errors.New("anchor.submit_interval and anchor.confirm_interval must be positive")
	}
	if a.BackoffBase <= 0 {
		return errors.New("anchor.backoff_base must be positive")
	}
	if a.BackoffCap < a.BackoffBase {
		return errors.New("anchor.backoff_cap must be at least anchor.backoff_base")
	}
	if a.BackoffMaxExponent < 0 || a.BackoffMaxExponent > 62 {
		return errors.New("anchor.backoff_max_exponent must be between 0 and 62")
	}
	if a.JitterMaxMillis < 0 {
		return errors.New("anchor.jitter_max_millis must not be negative")
	}
	if a.ConfirmAttemptCeiling <= 0 {
		return errors.New("anchor.confirm_attempt_ceiling must be positive")
	}
	if a.StaleClaimTimeout <= 0 {
		return errors.New("anchor.stale_claim_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLedger() error {
	switch c.Ledger.Provider {
	case "", "stub":
		return nil
	case "rpc", "fanout":
		if len(c.Ledger.RPC) == 0 {
			return fmt.Errorf("ledger.provider %q requires at least one [[ledger.rpc]] entry", c.Ledger.Provider)
		}
		seen := make(map[string]struct{}, len(c.Ledger.RPC))
		for i, target := range c.Ledger.RPC {
			if target.ID == "" {
				return fmt.Errorf("ledger.rpc[%d].id must be set", i)
			}
			if target.Endpoint == "" {
				return fmt.Errorf("ledger.rpc[%d].endpoint must be set", i)
			}
			if _, dup := seen[target.ID]; dup {
				return fmt.Errorf("ledger.rpc id %q appears more than once", target.ID)
			}
			seen[target.ID] = struct{}{}
		}
		return nil
	default:
		return fmt.Errorf("ledger.provider %q is not supported (stub, rpc, fanout)", c.Ledger.Provider)
	}
}

func (c *Config) validateIngest() error {
	if !c.Ingest.Enabled {
		return nil
	}
	if len(c.Ingest.Brokers) == 0 {
		return errors.New("ingest.brokers must be set when ingest.enabled is true")
	}
	if c.Ingest.Topic == "" {
		return errors.New("ingest.topic must be set when ingest.enabled is true")
	}
	if c.Ingest.GroupID == "" {
		return errors.New("ingest.group_id must be set when ingest.enabled is true")
	}
	return nil
}
