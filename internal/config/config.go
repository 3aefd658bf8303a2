package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"

	"github.com/sells-group/rnxpipe/internal/convert"
	"github.com/sells-group/rnxpipe/internal/pipeline"
	"github.com/sells-group/rnxpipe/internal/runlog"
)

// Config holds the full application configuration.
type Config struct {
	Log          LogConfig               `yaml:"log" mapstructure:"log"`
	RunLog       runlog.Config           `yaml:"runlog" mapstructure:"runlog"`
	WorkDir      string                  `yaml:"work_dir" mapstructure:"work_dir"`
	TmpDir       string                  `yaml:"tmp_dir" mapstructure:"tmp_dir"`
	SitesFile    string                  `yaml:"sites_file" mapstructure:"sites_file"`
	Server       ServerConfig            `yaml:"server" mapstructure:"server"`
	Container    ContainerConfig         `yaml:"container" mapstructure:"container"`
	Archive      ArchiveConfig           `yaml:"archive" mapstructure:"archive"`
	Download     DownloadConfig          `yaml:"download" mapstructure:"download"`
	Converters   map[string]convert.Spec `yaml:"converters" mapstructure:"converters"`
	HeaderModify HeaderModifyConfig      `yaml:"header_modify" mapstructure:"header_modify"`
	Pipeline     PipelineConfig          `yaml:"pipeline" mapstructure:"pipeline"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	// Format is json, console, or auto (console on a terminal).
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ContainerConfig configures the runtime hosting conversion containers.
type ContainerConfig struct {
	Bin         string `yaml:"bin" mapstructure:"bin"`
	ImagePrefix string `yaml:"image_prefix" mapstructure:"image_prefix"`
	MaxAgeSecs  int    `yaml:"max_age_secs" mapstructure:"max_age_secs"`
	// Sweep enables the stale container sweep before each conversion.
	Sweep bool `yaml:"sweep" mapstructure:"sweep"`
}

// ArchiveConfig names the external decompression tools.
type ArchiveConfig struct {
	Crx2Rnx string `yaml:"crx2rnx" mapstructure:"crx2rnx"`
	Gzip    string `yaml:"gzip" mapstructure:"gzip"`
}

// DownloadConfig configures the download transport.
type DownloadConfig struct {
	UserAgent     string             `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs   int                `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries       int                `yaml:"retries" mapstructure:"retries"`
	BackoffMillis int                `yaml:"backoff_millis" mapstructure:"backoff_millis"`
	Rate          float64            `yaml:"rate" mapstructure:"rate"`
	HostRates     map[string]float64 `yaml:"host_rates" mapstructure:"host_rates"`
	// BreakerThreshold is the number of consecutive failures that stops a host.
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// HeaderModifyConfig names the header modifier tool.
type HeaderModifyConfig struct {
	Bin string `yaml:"bin" mapstructure:"bin"`
}

// PipelineConfig is the ordered stage list plus the defaults its stages share.
type PipelineConfig struct {
	Site    string            `yaml:"site" mapstructure:"site"`
	Session map[string]string `yaml:"session" mapstructure:"session"`
	Epochs  EpochsConfig      `yaml:"epochs" mapstructure:"epochs"`
	Workers int               `yaml:"workers" mapstructure:"workers"`
	// FailFast aborts a stage at its first failed row.
	FailFast   bool          `yaml:"fail_fast" mapstructure:"fail_fast"`
	MaxPathLen int           `yaml:"max_path_len" mapstructure:"max_path_len"`
	Stages     []StageConfig `yaml:"stages" mapstructure:"stages"`
}

// EpochsConfig describes an epoch range. Bounds accept literal dates or
// relative expressions such as "10 days ago".
type EpochsConfig struct {
	Start    string `yaml:"start" mapstructure:"start"`
	End      string `yaml:"end" mapstructure:"end"`
	Period   string `yaml:"period" mapstructure:"period"`
	Round    string `yaml:"round" mapstructure:"round"`
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// FilesConfig locates explicit input files: literal paths, list files, or
// a directory scan.
type FilesConfig struct {
	Paths   []string `yaml:"paths" mapstructure:"paths"`
	Lists   []string `yaml:"lists" mapstructure:"lists"`
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Pattern string   `yaml:"pattern" mapstructure:"pattern"`
}

// Empty reports whether no source is set.
func (f FilesConfig) Empty() bool {
	return len(f.Paths) == 0 && len(f.Lists) == 0 && f.Dir == ""
}

// GroupConfig configures epoch regrouping for splices.
type GroupConfig struct {
	Period  string `yaml:"period" mapstructure:"period"`
	Rolling bool   `yaml:"rolling" mapstructure:"rolling"`
	// Ref is an epoch index ("-1" is the last) or an instant.
	Ref   string `yaml:"ref" mapstructure:"ref"`
	Round string `yaml:"round" mapstructure:"round"`
}

// StageConfig is one stage. Empty range fields inherit pipeline.epochs.
type StageConfig struct {
	Name    string       `yaml:"name" mapstructure:"name"`
	Type    string       `yaml:"type" mapstructure:"type"`
	Epochs  EpochsConfig `yaml:"epochs" mapstructure:"epochs"`
	InpDir  string       `yaml:"inp_dir" mapstructure:"inp_dir"`
	InpName string       `yaml:"inp_name" mapstructure:"inp_name"`
	OutDir  string       `yaml:"out_dir" mapstructure:"out_dir"`
	OutName string       `yaml:"out_name" mapstructure:"out_name"`
	// Inputs replaces the hand-off from the previous stage.
	Inputs FilesConfig `yaml:"inputs" mapstructure:"inputs"`
	// Store locates the long files of a split stage.
	Store     FilesConfig       `yaml:"store" mapstructure:"store"`
	Workers   int               `yaml:"workers" mapstructure:"workers"`
	FailFast  *bool             `yaml:"fail_fast" mapstructure:"fail_fast"`
	Converter string            `yaml:"converter" mapstructure:"converter"`
	Options   map[string]string `yaml:"options" mapstructure:"options"`
	// Modify enables the header rewrite of convert stages and configures modify stages.
	Modify  *convert.ModifyOptions `yaml:"modify" mapstructure:"modify"`
	Group   GroupConfig            `yaml:"group" mapstructure:"group"`
	Filters pipeline.Filters       `yaml:"filters" mapstructure:"filters"`
}

// Load reads configuration from file and environment. An empty file
// searches for rnxpipe.yaml in the working directory and $HOME/.config/rnxpipe.
func Load(file string) (*Config, error) {
	v := viper.New()

	// Config file
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("rnxpipe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/rnxpipe")
	}

	// Environment
	v.SetEnvPrefix("RNXPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("runlog.driver", "sqlite")
	v.SetDefault("runlog.dsn", "rnxpipe.db")
	v.SetDefault("work_dir", ".")
	v.SetDefault("server.port", 8080)
	v.SetDefault("container.bin", "docker")
	v.SetDefault("container.max_age_secs", 120)
	v.SetDefault("archive.crx2rnx", "CRX2RNX")
	v.SetDefault("archive.gzip", "gzip")
	v.SetDefault("download.user_agent", "rnxpipe/1.0")
	v.SetDefault("download.timeout_secs", 300)
	v.SetDefault("download.retries", 3)
	v.SetDefault("download.backoff_millis", 1000)
	v.SetDefault("download.rate", 5.0)
	v.SetDefault("download.breaker_threshold", 5)
	v.SetDefault("header_modify.bin", "rinexmod")
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.max_path_len", 60)
	v.SetDefault("pipeline.epochs.period", "1d")
	v.SetDefault("pipeline.epochs.round", "floor")
	v.SetDefault("pipeline.epochs.timezone", "UTC")

	// Read config file (optional unless named)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Resolve anchors a relative local path at WorkDir. URLs, absolute paths
// and empty strings are returned unchanged.
func (c *Config) Resolve(p string) string {
	if p == "" || c.WorkDir == "" || filepath.IsAbs(p) || strings.Contains(p, "://") {
		return p
	}
	return filepath.Join(c.WorkDir, p)
}
