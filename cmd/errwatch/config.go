package main

import (
	"time"

	"github.com/tinytelemetry/errwatch/internal/explain"
	"github.com/tinytelemetry/errwatch/internal/model"
	"github.com/tinytelemetry/errwatch/internal/notify"
)

const (
	driverDuckDB = "duckdb"
	driverSQLite = "sqlite"

	defaultBindHost        = "127.0.0.1"
	defaultAPIPort         = 3000
	defaultQueryTimeout    = 30 * time.Second
	defaultLogFile         = "./tomcat.log"
	defaultBackupInterval  = 6 * time.Hour
	defaultBackupKeepLast  = 24
	defaultStatsLogEvery   = time.Minute
	defaultShutdownTimeout = 10 * time.Second
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	StoreDriver    string        `mapstructure:"store-driver"`
	DBPath         string        `mapstructure:"db-path"`
	LogFile        string        `mapstructure:"log-file"`
	CivilUTCOffset time.Duration `mapstructure:"civil-utc-offset"`

	GeneratorEnabled  bool          `mapstructure:"generator-enabled"`
	GeneratorInterval time.Duration `mapstructure:"generator-interval"`
	GeneratorBackoff  time.Duration `mapstructure:"generator-backoff"`
	GeneratorCatalog  string        `mapstructure:"generator-catalog"`

	MonitorEnabled      bool          `mapstructure:"monitor-enabled"`
	MonitorPollInterval time.Duration `mapstructure:"monitor-poll-interval"`
	WorkerStopTimeout   time.Duration `mapstructure:"worker-stop-timeout"`
	RulesFile           string        `mapstructure:"rules-file"`

	AggregationWindow time.Duration `mapstructure:"aggregation-window"`
	AggregationBucket time.Duration `mapstructure:"aggregation-bucket"`
	DeltaLookback     time.Duration `mapstructure:"delta-lookback"`
	RecentLimit       int           `mapstructure:"recent-limit"`
	SearchLimit       int           `mapstructure:"search-limit"`
	QueryTimeout      time.Duration `mapstructure:"query-timeout"`

	APIEnabled bool   `mapstructure:"api-enabled"`
	APIPort    int    `mapstructure:"api-port"`
	APIAddr    string `mapstructure:"api-addr"`
	SocketPath string `mapstructure:"socket-path"`

	BackupEnabled  bool          `mapstructure:"backup-enabled"`
	BackupInterval time.Duration `mapstructure:"backup-interval"`
	BackupLocalDir string        `mapstructure:"backup-local-dir"`
	BackupKeepLast int           `mapstructure:"backup-keep-last"`

	NATSURL     string `mapstructure:"nats-url"`
	NATSSubject string `mapstructure:"nats-subject"`

	AzureEndpoint   string        `mapstructure:"azure-openai-endpoint"`
	AzureKey        string        `mapstructure:"azure-openai-key"`
	AzureDeployment string        `mapstructure:"azure-openai-deployment"`
	AzureAPIVersion string        `mapstructure:"azure-openai-api-version"`
	ExplainTimeout  time.Duration `mapstructure:"explain-timeout"`

	ConfigPath string `mapstructure:"-"` // not from config file
}

// defaults lists every key with its default value; loadConfig registers them
// so environment overrides work for keys absent from the file.
func defaults(socketPath string) map[string]interface{} {
	return map[string]interface{}{
		"store-driver":             driverDuckDB,
		"db-path":                  "",
		"log-file":                 defaultLogFile,
		"civil-utc-offset":         model.DefaultCivilOffset,
		"generator-enabled":        true,
		"generator-interval":       model.DefaultGenerateInterval,
		"generator-backoff":        model.DefaultGenerateBackoff,
		"generator-catalog":        "",
		"monitor-enabled":          true,
		"monitor-poll-interval":    model.DefaultPollInterval,
		"worker-stop-timeout":      model.DefaultStopTimeout,
		"rules-file":               "",
		"aggregation-window":       model.DefaultAggregationWindow,
		"aggregation-bucket":       model.DefaultBucketWidth,
		"delta-lookback":           model.DefaultDeltaLookback,
		"recent-limit":             model.DefaultRecentLimit,
		"search-limit":             model.DefaultSearchLimit,
		"query-timeout":            defaultQueryTimeout,
		"api-enabled":              true,
		"api-port":                 defaultAPIPort,
		"api-addr":                 "",
		"socket-path":              socketPath,
		"backup-enabled":           false,
		"backup-interval":          defaultBackupInterval,
		"backup-local-dir":         "",
		"backup-keep-last":         defaultBackupKeepLast,
		"nats-url":                 "",
		"nats-subject":             notify.DefaultSubject,
		"azure-openai-endpoint":    "",
		"azure-openai-key":         "",
		"azure-openai-deployment":  explain.DefaultDeployment,
		"azure-openai-api-version": explain.DefaultAPIVersion,
		"explain-timeout":          explain.DefaultTimeout,
	}
}
