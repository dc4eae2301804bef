package ledger

import (
	"fmt"
	"strings"

	"anchord/internal/config"
)

// New builds the configured provider set wrapped in a Fanout. An empty
// provider name falls back to the stub so the daemon always has somewhere to
// anchor; the choice is logged by the caller.
func New(cfg *config.Config) (*Fanout, error) {
	name := ""
	if cfg != nil {
		name = strings.ToLower(strings.TrimSpace(cfg.Ledger.Provider))
	}

	switch name {
	case "", "stub":
		return NewFanout(NewStub(""))
	case "rpc":
		if len(cfg.Ledger.RPC) == 0 {
			return nil, fmt.Errorf("ledger provider %q requires at least one [[ledger.rpc]] target", name)
		}
		return NewFanout(NewRPCProvider(cfg.Ledger.RPC[0], nil))
	case "fanout":
		if len(cfg.Ledger.RPC) == 0 {
			return nil, fmt.Errorf("ledger provider %q requires [[ledger.rpc]] targets", name)
		}
		members := make([]Provider, 0, len(cfg.Ledger.RPC))
		for _, target := range cfg.Ledger.RPC {
			members = append(members, NewRPCProvider(target, nil))
		}
		return NewFanout(members...)
	default:
		return nil, fmt.Errorf("unknown ledger provider %q", name)
	}
}
