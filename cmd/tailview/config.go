package main

import (
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/tailview/internal/model"
)

const (
	defaultBuffer       = model.DefaultHistoryLines
	defaultExpire       = model.DefaultExpire
	defaultIndex        = model.DefaultIndex
	defaultPort         = model.DefaultPort
	defaultPollInterval = model.DefaultPollInterval
	defaultBindHost     = "0.0.0.0"
	defaultMuxBuffer    = DefaultMuxBuffer
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Buffer          int           `mapstructure:"buffer"`
	Expire          time.Duration `mapstructure:"expire"`
	Index           string        `mapstructure:"index"`
	Poll            bool          `mapstructure:"poll"`
	PollInterval    time.Duration `mapstructure:"poll-interval"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Addr            string        `mapstructure:"addr"`
	Quiet           bool          `mapstructure:"quiet"`
	LogFile         string        `mapstructure:"log-file"`
	CaseInsensitive bool          `mapstructure:"case-insensitive"`
	NoJSON          bool          `mapstructure:"no-json"`
	SocketPath      string        `mapstructure:"socket-path"`
	MuxBufferSize   int           `mapstructure:"mux-buffer-size"`
	Files           []string      `mapstructure:"files"`
	ConfigPath      string        `mapstructure:"-"` // not from config file
}

// printConfig writes the effective configuration as YAML.
func printConfig(w io.Writer, cfg appConfig) error {
	out := struct {
		Buffer          int      `yaml:"buffer"`
		Expire          string   `yaml:"expire"`
		Index           string   `yaml:"index"`
		Poll            bool     `yaml:"poll"`
		PollInterval    string   `yaml:"poll-interval"`
		Addr            string   `yaml:"addr"`
		Quiet           bool     `yaml:"quiet"`
		LogFile         string   `yaml:"log-file,omitempty"`
		CaseInsensitive bool     `yaml:"case-insensitive"`
		NoJSON          bool     `yaml:"no-json"`
		SocketPath      string   `yaml:"socket-path"`
		MuxBufferSize   int      `yaml:"mux-buffer-size"`
		Files           []string `yaml:"files"`
	}{
		Buffer:          cfg.Buffer,
		Expire:          cfg.Expire.String(),
		Index:           cfg.Index,
		Poll:            cfg.Poll,
		PollInterval:    cfg.PollInterval.String(),
		Addr:            cfg.Addr,
		Quiet:           cfg.Quiet,
		LogFile:         cfg.LogFile,
		CaseInsensitive: cfg.CaseInsensitive,
		NoJSON:          cfg.NoJSON,
		SocketPath:      cfg.SocketPath,
		MuxBufferSize:   cfg.MuxBufferSize,
		Files:           cfg.Files,
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
