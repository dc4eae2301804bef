package config

import "strings"

// normalize expands path fields and trims string options so validation and
// callers see canonical values.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = ExpandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)

	c.Ledger.Provider = strings.ToLower(strings.TrimSpace(c.Ledger.Provider))
	for i := range c.Ledger.RPC {
		c.Ledger.RPC[i].ID = strings.TrimSpace(c.Ledger.RPC[i].ID)
		c.Ledger.RPC[i].Endpoint = strings.TrimSpace(c.Ledger.RPC[i].Endpoint)
		c.Ledger.RPC[i].Network = strings.TrimSpace(c.Ledger.RPC[i].Network)
	}

	c.Ingest.Topic = strings.TrimSpace(c.Ingest.Topic)
	c.Ingest.GroupID = strings.TrimSpace(c.Ingest.GroupID)
	brokers := make([]string, 0, len(c.Ingest.Brokers))
	for _, broker := range c.Ingest.Brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	c.Ingest.Brokers = brokers

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
