package config

const (
	defaultDataDir               = "~/.local/share/anchord"
	defaultLogDir                = "~/.local/share/anchord/logs"
	defaultAPIBind               = "127.0.0.1:8081"
	defaultLogFormat             = "text"
	defaultLogLevel              = "info"
	defaultBatchSize             = 64
	defaultBatchMaxWait          = 60
	defaultSubmitInterval        = 5
	defaultConfirmInterval       = 30
	defaultBackoffBase           = 5
	defaultBackoffCap            = 300
	defaultBackoffMaxExponent    = 20
	defaultJitterMaxMillis       = 1000
	defaultConfirmAttemptCeiling = 40
	defaultStaleClaimTimeout     = 300
	defaultLedgerProvider        = "stub"
	defaultIngestGroupID         = "anchord"
)

// Default returns a Config populated with repository defaults. The stub
// ledger provider is the documented safe fallback: a default configuration
// runs without any ledger connectivity.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Anchor: Anchor{
			BatchSize:             defaultBatchSize,
			BatchMaxWait:          defaultBatchMaxWait,
			SubmitInterval:        defaultSubmitInterval,
			ConfirmInterval:       defaultConfirmInterval,
			BackoffBase:           defaultBackoffBase,
			BackoffCap:            defaultBackoffCap,
			BackoffMaxExponent:    defaultBackoffMaxExponent,
			JitterMaxMillis:       defaultJitterMaxMillis,
			ConfirmAttemptCeiling: defaultConfirmAttemptCeiling,
			StaleClaimTimeout:     defaultStaleClaimTimeout,
		},
		Ledger: Ledger{
			Provider: defaultLedgerProvider,
		},
		Ingest: Ingest{
			GroupID: defaultIngestGroupID,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
