// Package config resolves dlnaproxy's settings from either a TOML file
// (read through spf13/viper) or command-line flags (spf13/pflag), enforcing that a
// supplied config file takes over every source setting except --verbose.
package config

import (
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the fully resolved set of settings the rest of dlnaproxy
// operates on, regardless of whether they came from flags or a file.
type Config struct {
	DescriptionURL string        `toml:"description_url" mapstructure:"description_url"`
	Interval       time.Duration `toml:"interval" mapstructure:"interval"`
	ProxyAddr      string        `toml:"proxy" mapstructure:"proxy"`
	Iface          string        `toml:"iface" mapstructure:"iface"`
	Wait           time.Duration `toml:"wait" mapstructure:"wait"`
	ConnectTimeout time.Duration `toml:"connect_timeout" mapstructure:"connect_timeout"`
	ProxyTimeout   time.Duration `toml:"proxy_timeout" mapstructure:"proxy_timeout"`
	StreamTimeout  time.Duration `toml:"stream_timeout" mapstructure:"stream_timeout"`
	Verbosity      int           `toml:"-" mapstructure:"-"`
}

// Defaults returns dlnaproxy's built-in default settings.
func Defaults() Config {
	return Config{
		Interval:       895 * time.Second,
		ConnectTimeout: 2 * time.Second,
		ProxyTimeout:   10 * time.Second,
		StreamTimeout:  300 * time.Second,
	}
}

// FlagSet describes the cobra flags dlnaproxy registers; it is a thin
// struct so Resolve can tell which flags the operator actually set.
type FlagSet struct {
	ConfigPath     string
	DescriptionURL string
	Interval       time.Duration
	ProxyAddr      string
	Iface          string
	WaitSet        bool
	Wait           time.Duration
	ConnectTimeout time.Duration
	ProxyTimeout   time.Duration
	StreamTimeout  time.Duration
	Verbosity      int
}

// Bind registers dlnaproxy's flags on cmd and returns a FlagSet whose
// fields point at the live flag values.
func Bind(cmd *cobra.Command) *FlagSet {
	fs := &FlagSet{}
	d := Defaults()

	cmd.Flags().StringVar(&fs.ConfigPath, "config", "", "TOML config file (cannot be combined with other source flags except --verbose)")
	cmd.Flags().StringVarP(&fs.DescriptionURL, "description-url", "u", "", "origin DLNA description URL (required unless --config)")
	cmd.Flags().DurationVarP(&fs.Interval, "interval", "d", d.Interval, "alive broadcast period")
	cmd.Flags().StringVarP(&fs.ProxyAddr, "proxy", "p", "", "enable TCP proxy, listening on ip:port")
	cmd.Flags().StringVarP(&fs.Iface, "iface", "i", "", "bind SSDP sockets to this interface (Linux only)")
	cmd.Flags().DurationVarP(&fs.Wait, "wait", "w", 0, "retry fetching the origin for this long before giving up at startup (30s when given without a value)")
	cmd.Flags().Lookup("wait").NoOptDefVal = "30s"
	cmd.Flags().DurationVar(&fs.ConnectTimeout, "connect-timeout", d.ConnectTimeout, "HTTP connect timeout to origin for description fetches")
	cmd.Flags().DurationVar(&fs.ProxyTimeout, "proxy-timeout", d.ProxyTimeout, "TCP connect timeout to origin for proxied connections")
	cmd.Flags().DurationVar(&fs.StreamTimeout, "stream-timeout", d.StreamTimeout, "TCP read/write timeout for proxied connections")
	cmd.Flags().CountVarP(&fs.Verbosity, "verbose", "v", "increase log verbosity (-v..-vvvv)")

	return fs
}

// Resolve merges flags and an optional config file into a final Config,
// enforcing that --config, when given, is the sole source of settings
// other than --verbose.
func Resolve(cmd *cobra.Command, fs *FlagSet) (Config, error) {
	fs.WaitSet = cmd.Flags().Changed("wait")

	if fs.ConfigPath == "" {
		return fromFlags(fs)
	}

	rejected := []string{"description-url", "interval", "proxy", "iface", "wait", "connect-timeout", "proxy-timeout", "stream-timeout"}
	for _, name := range rejected {
		if cmd.Flags().Changed(name) {
			return Config{}, fmt.Errorf("config-invalid: --%s cannot be combined with --config", name)
		}
	}

	return fromFile(fs.ConfigPath, fs.Verbosity)
}

func fromFlags(fs *FlagSet) (Config, error) {
	if fs.DescriptionURL == "" {
		return Config{}, fmt.Errorf("config-invalid: --description-url is required unless --config is given")
	}
	cfg := Config{
		DescriptionURL: fs.DescriptionURL,
		Interval:       fs.Interval,
		ProxyAddr:      fs.ProxyAddr,
		Iface:          fs.Iface,
		ConnectTimeout: fs.ConnectTimeout,
		ProxyTimeout:   fs.ProxyTimeout,
		StreamTimeout:  fs.StreamTimeout,
		Verbosity:      fs.Verbosity,
	}
	if fs.WaitSet {
		cfg.Wait = fs.Wait
	}
	return cfg, nil
}

func fromFile(path string, verbosity int) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("config-invalid: reading %s: %w", path, err)
	}

	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config-invalid: decoding %s: %w", path, err)
	}
	if cfg.DescriptionURL == "" {
		return Config{}, fmt.Errorf("config-invalid: %s is missing description_url", path)
	}
	cfg.Verbosity = verbosity
	return cfg, nil
}

// WriteDefault marshals the default configuration, with an example
// description_url, to TOML as a starting file for operators.
func WriteDefault() ([]byte, error) {
	cfg := Defaults()
	cfg.DescriptionURL = "http://192.168.1.1:8200/rootDesc.xml"
	return toml.Marshal(cfg)
}
