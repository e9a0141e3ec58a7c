package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/tailview/internal/socketrpc"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// GetVersionInfo returns the current version and commit information.
func GetVersionInfo() (string, string) {
	return version, commit
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("tailview", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tailview [flags] FILE...\n       tailview files|history [flags]\n\nFILE may be a file, a directory or a glob such as 'logs/**/*.log'.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.String("config", "", "config file (default is $HOME/.config/tailview/config.yml)")
	fs.Bool("version", false, "print version information")
	fs.Bool("print-config", false, "print the effective configuration as YAML and exit")
	fs.IntP("buffer", "b", defaultBuffer, "lines of history kept per file")
	fs.DurationP("expire", "e", defaultExpire, "how long a removed file stays visible before it is dropped")
	fs.StringP("index", "i", defaultIndex, "page served to browsers")
	fs.Bool("poll", false, "poll the file system instead of using change notifications")
	fs.Duration("poll-interval", defaultPollInterval, "interval between scans with --poll")
	fs.String("host", defaultBindHost, "address to bind the web server to")
	fs.IntP("port", "p", defaultPort, "web server port")
	fs.BoolP("quiet", "q", false, "suppress log output")
	fs.String("log-file", "", "append log output to this file instead of stderr")
	fs.Bool("case-insensitive", false, "match filters case-insensitively unless a client asks otherwise")
	fs.Bool("no-json", false, "skip detecting JSON embedded in lines")
	fs.String("socket-path", socketrpc.DefaultSocketPath(), "unix socket for local RPC clients (empty disables)")
	return fs
}

func main() {
	if isClientCommand(os.Args[1:]) {
		os.Exit(runClient(os.Args[1:], os.Stdout, os.Stderr))
	}

	fs := newFlagSet()
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if showVersion, _ := fs.GetBool("version"); showVersion {
		fmt.Printf("tailview - live log viewer\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if dump, _ := fs.GetBool("print-config"); dump {
		if err := printConfig(os.Stdout, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(cfg.Files) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig merges, from lowest to highest priority, flag defaults, the
// config file, TAILVIEW_* environment variables and explicitly set flags.
// Positional arguments replace any files listed in the config file.
func loadConfig(fs *pflag.FlagSet) (appConfig, error) {
	var cfg appConfig

	v := viper.New()
	v.SetEnvPrefix("TAILVIEW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("addr", "")
	v.SetDefault("mux-buffer-size", defaultMuxBuffer)
	v.SetDefault("files", []string{})
	if err := v.BindPFlags(fs); err != nil {
		return cfg, fmt.Errorf("binding flags: %w", err)
	}

	configPath, _ := fs.GetString("config")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".config", "tailview", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if configPath != "" || (!errors.As(err, &configFileNotFound) && !os.IsNotExist(err)) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}
	if args := fs.Args(); len(args) > 0 {
		cfg.Files = args
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Buffer <= 0 {
		return cfg, fmt.Errorf("invalid buffer: %d", cfg.Buffer)
	}
	if cfg.Expire <= 0 {
		return cfg, fmt.Errorf("invalid expire: %s", cfg.Expire)
	}
	if cfg.PollInterval <= 0 {
		return cfg, fmt.Errorf("invalid poll-interval: %s", cfg.PollInterval)
	}
	if cfg.MuxBufferSize <= 0 {
		cfg.MuxBufferSize = defaultMuxBuffer
	}

	if home, err := os.UserHomeDir(); err == nil {
		cfg.Index = expandHome(cfg.Index, home)
		cfg.LogFile = expandHome(cfg.LogFile, home)
	}
	if cfg.Addr == "" {
		cfg.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}

	return cfg, nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
