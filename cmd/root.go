package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanq16/rangeflow/internal/config"
	"github.com/tanq16/rangeflow/internal/utils"
)

var (
	configFile     string
	storageRoot    string
	connectTimeout time.Duration
	readTimeout    time.Duration
	kaTimeout      time.Duration
	userAgent      string
	proxyURL       string
	proxyUsername  string
	proxyPassword  string
	insecure       bool
	headers        []string
	debug          bool
)

var RangeflowVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "rangeflow",
	Short:   "Rangeflow is a multi-connection HTTP download manager",
	Version: RangeflowVersion,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&storageRoot, "storage", "s", "", "Directory downloads are written to")
	rootCmd.PersistentFlags().DurationVar(&connectTimeout, "connect-timeout", 0, "Connection timeout (eg. 5s, 1m)")
	rootCmd.PersistentFlags().DurationVarP(&readTimeout, "timeout", "t", 0, "Read timeout for a stalled connection (eg. 30s)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 0, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", "", "User agent")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newCleanCmd())
}

// loadConfig layers defaults, the config file, RANGEFLOW_ variables and
// explicit flags, in that order.
func loadConfig(extra config.Config) (config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	flags := config.Config{
		StorageRoot:      storageRoot,
		ConnectTimeout:   connectTimeout,
		ReadTimeout:      readTimeout,
		KeepAliveTimeout: kaTimeout,
		UserAgent:        userAgent,
		Proxy:            proxyURL,
		ProxyUsername:    proxyUsername,
		ProxyPassword:    proxyPassword,
		Insecure:         insecure,
		Headers:          utils.ParseHeaderArgs(headers),
	}
	cfg = cfg.Merge(flags).Merge(extra)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
