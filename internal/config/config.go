// Package config resolves the process configuration surface: CLI flags,
// environment variables, and an optional config file, layered through
// viper in that order of precedence (flags win, then env, then file, then
// the defaults below).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of knobs a running process needs: the RTMP
// listener, the HLS and HTTP-FLV egress surfaces, auth, and the
// recording/relay/hook settings carried over from the original CLI.
type Config struct {
	ListenAddr string
	LogLevel   string
	ChunkSize  uint32

	HLSEnable     bool
	HLSAddr       string
	HLSTSDuration time.Duration
	HLSDataPath   string

	HTTPFLVEnable bool
	HTTPFLVAddr   string

	FLVEnable   bool
	FLVDataPath string

	AuthEnable         bool
	CredentialStoreURL string
	FullGOP            bool

	RelayDestinations []string

	HookScripts     []string
	HookWebhooks    []string
	HookStdioFormat string
	HookTimeout     string
	HookConcurrency int
}

// v is package-level so repeated calls to Load within one process (tests,
// subcommands) share bound flags and env lookups through one resolver, the
// way the rest of the CLI expects.
var v = viper.New()

func init() {
	v.SetDefault("listen", ":1935")
	v.SetDefault("log-level", "info")
	v.SetDefault("chunk-size", 4096)
	v.SetDefault("hls-enable", false)
	v.SetDefault("hls-addr", ":8080")
	v.SetDefault("hls-ts-duration", 5*time.Second)
	v.SetDefault("hls-data-path", "hls-data")
	v.SetDefault("http-flv-enable", false)
	v.SetDefault("http-flv-addr", ":8081")
	v.SetDefault("flv-enable", false)
	v.SetDefault("flv-data-path", "recordings")
	v.SetDefault("auth-enable", false)
	v.SetDefault("credential-store-url", "")
	v.SetDefault("full-gop", false)
	v.SetDefault("hook-stdio-format", "")
	v.SetDefault("hook-timeout", "30s")
	v.SetDefault("hook-concurrency", 10)

	v.SetEnvPrefix("fabric")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("fabric")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fabric")
}

// Load reads any fabric.yaml found on the search path, binds fs on top of
// it, and returns the resolved, validated Config.
func Load(fs *pflag.FlagSet) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	cfg := &Config{
		ListenAddr:          v.GetString("listen"),
		LogLevel:            v.GetString("log-level"),
		ChunkSize:           uint32(v.GetUint("chunk-size")),
		HLSEnable:           v.GetBool("hls-enable"),
		HLSAddr:             v.GetString("hls-addr"),
		HLSTSDuration:       v.GetDuration("hls-ts-duration"),
		HLSDataPath:         v.GetString("hls-data-path"),
		HTTPFLVEnable:       v.GetBool("http-flv-enable"),
		HTTPFLVAddr:         v.GetString("http-flv-addr"),
		FLVEnable:           v.GetBool("flv-enable"),
		FLVDataPath:         v.GetString("flv-data-path"),
		AuthEnable:          v.GetBool("auth-enable"),
		CredentialStoreURL:  v.GetString("credential-store-url"),
		FullGOP:             v.GetBool("full-gop"),
		RelayDestinations:   v.GetStringSlice("relay-to"),
		HookScripts:         v.GetStringSlice("hook-script"),
		HookWebhooks:        v.GetStringSlice("hook-webhook"),
		HookStdioFormat:     v.GetString("hook-stdio-format"),
		HookTimeout:         v.GetString("hook-timeout"),
		HookConcurrency:     v.GetInt("hook-concurrency"),
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.ChunkSize == 0 || c.ChunkSize > 65536 {
		return fmt.Errorf("config: chunk-size must be between 1 and 65536")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log-level %q", c.LogLevel)
	}
	if c.HookStdioFormat != "" && c.HookStdioFormat != "json" && c.HookStdioFormat != "env" {
		return fmt.Errorf("config: invalid hook-stdio-format %q, must be 'json' or 'env'", c.HookStdioFormat)
	}
	if c.HookConcurrency < 1 || c.HookConcurrency > 100 {
		return fmt.Errorf("config: hook-concurrency must be between 1 and 100, got %d", c.HookConcurrency)
	}
	for _, script := range c.HookScripts {
		if err := validateHookAssignment("hook-script", script); err != nil {
			return err
		}
	}
	for _, webhook := range c.HookWebhooks {
		if err := validateHookAssignment("hook-webhook", webhook); err != nil {
			return err
		}
	}
	for _, dest := range c.RelayDestinations {
		if err := validateRelayDestination(dest); err != nil {
			return fmt.Errorf("config: invalid relay destination %q: %w", dest, err)
		}
	}
	return nil
}
