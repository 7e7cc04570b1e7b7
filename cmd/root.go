package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	serverURL string
	dbPath    string
	redisURL  string
	logLevel  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Terminal dashboard for webhook-delivered tickets",
	Long: `Tracker receives ticket updates over webhooks, records what changed
between deliveries, and shows the result in a live terminal dashboard.

Features:
- Per-client webhook endpoints with change detection
- Live dashboard with new/updated highlighting and notifications
- Step, ID and date range filters
- SQLite storage with optional Redis Streams change events`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tracker.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:3000", "Tracker backend URL")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/tracker.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis connection URL for change events (empty disables)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("server.url", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".tracker" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tracker")
	}

	// TRACKER_SERVER_URL, TRACKER_SERVE_TOKEN, ...
	viper.SetEnvPrefix("tracker")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Set defaults
	viper.SetDefault("server.url", "http://127.0.0.1:3000")
	viper.SetDefault("database.path", "./data/tracker.db")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("refresh.interval", "10s")
	viper.SetDefault("fetch.timeout", "0s")
	viper.SetDefault("serve.bind", "127.0.0.1:3000")
	viper.SetDefault("serve.token", "")
	viper.SetDefault("serve.rps", 0)
	viper.SetDefault("serve.burst", 0)
	viper.SetDefault("serve.watch_dir", "")
	viper.SetDefault("serve.watch_user", "default")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return Config{
		Server: ServerConfig{
			URL: viper.GetString("server.url"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
		Refresh: RefreshConfig{
			Interval: viper.GetDuration("refresh.interval"),
		},
		Fetch: FetchConfig{
			Timeout: viper.GetDuration("fetch.timeout"),
		},
		Serve: ServeConfig{
			Bind:      viper.GetString("serve.bind"),
			Token:     viper.GetString("serve.token"),
			RPS:       viper.GetInt("serve.rps"),
			Burst:     viper.GetInt("serve.burst"),
			WatchDir:  viper.GetString("serve.watch_dir"),
			WatchUser: viper.GetString("serve.watch_user"),
		},
	}
}

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Serve    ServeConfig    `mapstructure:"serve"`
}

type ServerConfig struct {
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Debug reports whether verbose logging is enabled.
func (c LogConfig) Debug() bool {
	return strings.EqualFold(c.Level, "debug")
}

type RefreshConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type FetchConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type ServeConfig struct {
	Bind      string `mapstructure:"bind"`
	Token     string `mapstructure:"token"`
	RPS       int    `mapstructure:"rps"`
	Burst     int    `mapstructure:"burst"`
	WatchDir  string `mapstructure:"watch_dir"`
	WatchUser string `mapstructure:"watch_user"`
}
