package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/bmcfanctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "BMCFANCTL"
	DefaultLogLevel   = string(LogLevelInfo)
	DefaultPolicyFile = "/var/lib/bmcfanctl/fan_policy.json"
	DefaultJournalDB  = "/var/lib/bmcfanctl/journal.db"

	configName = "bmcfanctl"
	configType = "toml"
)

type Config struct {
	Host      string `mapstructure:"host"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Interface string `mapstructure:"interface"`
	IPMITool  string `mapstructure:"ipmitool"`

	CommandTimeout     time.Duration `mapstructure:"command_timeout"`
	ReapplyInterval    time.Duration `mapstructure:"reapply_interval"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	ReadyCheckInterval time.Duration `mapstructure:"ready_check_interval"`
	ProbeBackoffMin    time.Duration `mapstructure:"probe_backoff_min"`
	ProbeBackoffMax    time.Duration `mapstructure:"probe_backoff_max"`
	SensorRetryDelay   time.Duration `mapstructure:"sensor_retry_delay"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`

	NotifyDelta    int      `mapstructure:"notify_delta"`
	DefaultPercent int      `mapstructure:"default_percent"`
	PolicyFile     string   `mapstructure:"policy_file"`
	Authorized     []string `mapstructure:"authorized"`

	LogLevel          string `mapstructure:"log_level"`
	MetricsAddr       string `mapstructure:"metrics_addr"`
	MCP               bool   `mapstructure:"mcp"`
	Journal           bool   `mapstructure:"journal"`
	JournalDB         string `mapstructure:"journal_db"`
	RestoreAutoOnExit bool   `mapstructure:"restore_auto_on_exit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("interface", "lanplus")
	v.SetDefault("ipmitool", "ipmitool")
	v.SetDefault("command_timeout", 10*time.Second)
	v.SetDefault("reapply_interval", 30*time.Second)
	v.SetDefault("poll_interval", 10*time.Second)
	v.SetDefault("ready_check_interval", 30*time.Second)
	v.SetDefault("probe_backoff_min", 2*time.Second)
	v.SetDefault("probe_backoff_max", time.Minute)
	v.SetDefault("sensor_retry_delay", 10*time.Second)
	v.SetDefault("settle_delay", time.Second)
	v.SetDefault("notify_delta", 500)
	v.SetDefault("default_percent", -1)
	v.SetDefault("policy_file", DefaultPolicyFile)
	v.SetDefault("authorized", []string{})
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("mcp", false)
	v.SetDefault("journal", false)
	v.SetDefault("journal_db", DefaultJournalDB)
	v.SetDefault("restore_auto_on_exit", false)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	fs.String("config", "", "Path to configuration file")
	fs.String("host", "", "Management controller host (empty for the local interface)")
	fs.String("username", "", "Management controller user")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Duration("reapply-interval", 30*time.Second, "Interval between policy re-applications")
	fs.Duration("poll-interval", 10*time.Second, "Interval between fan RPM polls")
	fs.Int("notify-delta", 500, "RPM change that triggers a notification")
	fs.Int("default-percent", -1, "Manual fan percent used on first run (-1 for automatic)")
	fs.String("policy-file", DefaultPolicyFile, "Path to the persisted fan policy")
	fs.String("metrics-addr", "", "Listen address for Prometheus metrics (empty disables)")
	fs.Bool("mcp", false, "Serve operator tools over MCP on stdio")
	fs.Bool("journal", false, "Record policy changes and applies in a SQLite journal")

	return fs
}

// flag name -> config key
var flagKeys = map[string]string{
	"host":             "host",
	"username":         "username",
	"log-level":        "log_level",
	"reapply-interval": "reapply_interval",
	"poll-interval":    "poll_interval",
	"notify-delta":     "notify_delta",
	"default-percent":  "default_percent",
	"policy-file":      "policy_file",
	"metrics-addr":     "metrics_addr",
	"mcp":              "mcp",
	"journal":          "journal",
}

func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix, args: os.Args[1:]}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Precedence for the file location: option, flag, environment, search path
	configPath := o.configPath
	if configPath == "" {
		configPath, _ = fs.GetString("config")
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType(configType)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath("/etc/bmcfanctl")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges and relationships between settings.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	intervals := map[string]time.Duration{
		"command_timeout":      c.CommandTimeout,
		"reapply_interval":     c.ReapplyInterval,
		"poll_interval":        c.PollInterval,
		"ready_check_interval": c.ReadyCheckInterval,
		"probe_backoff_min":    c.ProbeBackoffMin,
		"probe_backoff_max":    c.ProbeBackoffMax,
		"sensor_retry_delay":   c.SensorRetryDelay,
	}
	for name, d := range intervals {
		if d <= 0 {
			return errFactory.WithData(errors.ErrInvalidInterval, name+"="+d.String())
		}
	}
	if c.SettleDelay < 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "settle_delay="+c.SettleDelay.String())
	}
	if c.ProbeBackoffMin > c.ProbeBackoffMax {
		return errFactory.WithMessage(errors.ErrInvalidInterval, "probe_backoff_min exceeds probe_backoff_max")
	}

	if c.NotifyDelta < 1 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "notify_delta must be at least 1")
	}
	if c.DefaultPercent > 100 {
		return errFactory.WithData(errors.ErrInvalidPercent, c.DefaultPercent)
	}
	if c.PolicyFile == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "policy_file must be set")
	}
	if c.Journal && c.JournalDB == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "journal_db must be set when journal is enabled")
	}
	if c.Host != "" && c.Username == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "username is required for a remote host")
	}

	return nil
}
