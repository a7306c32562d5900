package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Signals    SignalsConfig    `yaml:"signals" mapstructure:"signals"`
	Cohort     CohortConfig     `yaml:"cohort" mapstructure:"cohort"`
	Tiers      TierConfig       `yaml:"tiers" mapstructure:"tiers"`
	Rules      RuleTable        `yaml:"rules" mapstructure:"rules"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Serve      ServeConfig      `yaml:"serve" mapstructure:"serve"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// EngineConfig configures a scoring run.
type EngineConfig struct {
	Profile       string `yaml:"profile" mapstructure:"profile"`
	Tag           string `yaml:"tag" mapstructure:"tag"`
	SchemaVersion int    `yaml:"schema_version" mapstructure:"schema_version"`
	Workers       int    `yaml:"workers" mapstructure:"workers"`
	RulesFile     string `yaml:"rules_file" mapstructure:"rules_file"`
}

// SignalsConfig tunes signal extraction.
type SignalsConfig struct {
	ReviewRecentDays int      `yaml:"review_recent_days" mapstructure:"review_recent_days"`
	ActivityMetric   string   `yaml:"activity_metric" mapstructure:"activity_metric"`
	FreeEmailDomains []string `yaml:"free_email_domains" mapstructure:"free_email_domains"`
}

// CohortConfig tunes peer cohort analysis.
type CohortConfig struct {
	MinMembers       int     `yaml:"min_members" mapstructure:"min_members" json:"min_members"`
	OutlierThreshold float64 `yaml:"outlier_threshold" mapstructure:"outlier_threshold" json:"outlier_threshold"`
}

// TierConfig holds risk tier cutpoints and overrides.
type TierConfig struct {
	Cutpoints   Cutpoints  `yaml:"cutpoints" mapstructure:"cutpoints" json:"cutpoints"`
	MinCoverage int        `yaml:"min_coverage" mapstructure:"min_coverage" json:"min_coverage"`
	Overrides   []Override `yaml:"overrides" mapstructure:"overrides" json:"overrides"`
}

// Cutpoints are inclusive lower bounds on the fraud score for each tier.
type Cutpoints struct {
	Critical float64 `yaml:"critical" mapstructure:"critical" json:"critical"`
	High     float64 `yaml:"high" mapstructure:"high" json:"high"`
	Medium   float64 `yaml:"medium" mapstructure:"medium" json:"medium"`
	Low      float64 `yaml:"low" mapstructure:"low" json:"low"`
}

// Override forces a minimum tier whenever its signal is present and true.
type Override struct {
	Signal  string `yaml:"signal" mapstructure:"signal" json:"signal"`
	MinTier string `yaml:"min_tier" mapstructure:"min_tier" json:"min_tier"`
}

// RuleTable is the weighted rule set for both scores.
type RuleTable struct {
	Fraud      []Rule `yaml:"fraud" mapstructure:"fraud" json:"fraud"`
	Legitimacy []Rule `yaml:"legitimacy" mapstructure:"legitimacy" json:"legitimacy"`
}

// Empty reports whether no rules are configured.
func (t RuleTable) Empty() bool {
	return len(t.Fraud) == 0 && len(t.Legitimacy) == 0
}

// Rule adds Weight to a score when its signal fires. A bool signal fires when
// true; a number fires when strictly above Above (default 0); a string fires
// when equal to Equals.
type Rule struct {
	Signal string   `yaml:"signal" mapstructure:"signal" json:"signal"`
	Weight float64  `yaml:"weight" mapstructure:"weight" json:"weight"`
	Above  *float64 `yaml:"above,omitempty" mapstructure:"above" json:"above,omitempty"`
	Equals string   `yaml:"equals,omitempty" mapstructure:"equals" json:"equals,omitempty"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// ExportConfig configures downstream file output.
type ExportConfig struct {
	OutputDir     string   `yaml:"output_dir" mapstructure:"output_dir"`
	CSVSummary    bool     `yaml:"csv_summary" mapstructure:"csv_summary"`
	GroupedJSON   bool     `yaml:"grouped_json" mapstructure:"grouped_json"`
	MinFraudScore float64  `yaml:"min_fraud_score" mapstructure:"min_fraud_score"`
	RiskTiers     []string `yaml:"risk_tiers" mapstructure:"risk_tiers"`
	Statuses      []string `yaml:"statuses" mapstructure:"statuses"`
	TopN          int      `yaml:"top_n" mapstructure:"top_n"`
}

// MetricsConfig configures the Prometheus endpoint and the textfile written
// after a scan.
type MetricsConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// ServeConfig configures the HTTP service. Empty CORSOrigins disables CORS.
// A ScanRate of 0 leaves POST /scan unlimited.
type ServeConfig struct {
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ScanRate    float64  `yaml:"scan_rate" mapstructure:"scan_rate"`
	ScanBurst   int      `yaml:"scan_burst" mapstructure:"scan_burst"`
}

// MonitoringConfig configures run-level alerting.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	HighRiskRateThreshold   float64 `yaml:"high_risk_rate_threshold" mapstructure:"high_risk_rate_threshold"`
	UnknownRateThreshold    float64 `yaml:"unknown_rate_threshold" mapstructure:"unknown_rate_threshold"`
	OrphanEvidenceThreshold int     `yaml:"orphan_evidence_threshold" mapstructure:"orphan_evidence_threshold"`
	MinProviders            int     `yaml:"min_providers" mapstructure:"min_providers"`
	LookbackRuns            int     `yaml:"lookback_runs" mapstructure:"lookback_runs"`
	WebhookAttempts         int     `yaml:"webhook_attempts" mapstructure:"webhook_attempts"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// working directory for config.yaml; a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("SCREEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("engine.profile", "inter_agency")
	v.SetDefault("engine.schema_version", 1)
	v.SetDefault("engine.workers", 8)
	v.SetDefault("signals.review_recent_days", 365)
	v.SetDefault("signals.activity_metric", "places.review_count")
	v.SetDefault("signals.free_email_domains", []string{
		"gmail.com", "yahoo.com", "outlook.com", "hotmail.com",
		"live.com", "aol.com", "msn.com", "icloud.com", "proton.me",
	})
	v.SetDefault("cohort.min_members", 5)
	v.SetDefault("cohort.outlier_threshold", 3.0)
	v.SetDefault("tiers.cutpoints.critical", 6.0)
	v.SetDefault("tiers.cutpoints.high", 4.0)
	v.SetDefault("tiers.cutpoints.medium", 2.0)
	v.SetDefault("tiers.cutpoints.low", 0.0)
	v.SetDefault("tiers.min_coverage", 3)
	v.SetDefault("tiers.overrides", []map[string]any{
		{"signal": "gov.prior_enforcement", "min_tier": "high"},
	})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "provider-screen.db")
	v.SetDefault("export.output_dir", "output")
	v.SetDefault("export.csv_summary", true)
	v.SetDefault("export.grouped_json", true)
	v.SetDefault("metrics.addr", ":9108")
	v.SetDefault("serve.scan_rate", 2.0)
	v.SetDefault("serve.scan_burst", 4)
	v.SetDefault("monitoring.high_risk_rate_threshold", 0.25)
	v.SetDefault("monitoring.unknown_rate_threshold", 0.5)
	v.SetDefault("monitoring.orphan_evidence_threshold", 0)
	v.SetDefault("monitoring.min_providers", 5)
	v.SetDefault("monitoring.lookback_runs", 50)
	v.SetDefault("monitoring.webhook_attempts", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
