package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/elfcopyflat/internal/flatten"
	"github.com/samcharles93/elfcopyflat/internal/logger"
)

// commonFlags are shared by every command that does work.
type commonFlags struct {
	configFile string
	logLevel   string
	logFormat  string
	verbose    bool
}

func (c *commonFlags) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default: $" + envConfig + " or the user config dir)",
			Destination: &c.configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &c.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       logger.FormatPretty,
			Destination: &c.logFormat,
		},
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Usage:       "print more information (shorthand for --log-level=debug)",
			Destination: &c.verbose,
		},
	}
}

// before loads the config file and installs the logger in the context.
func (c *commonFlags) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configPath(c.configFile))
	if err != nil {
		return ctx, err
	}
	if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
		c.logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
		c.logFormat = cfg.LogFormat
	}

	level, err := logger.ParseLevel(c.logLevel)
	if err != nil {
		return ctx, err
	}
	if c.verbose {
		level = slog.LevelDebug
	}
	log, err := logger.New(errWriter(cmd), c.logFormat, level)
	if err != nil {
		return ctx, err
	}
	ctx = logger.WithContext(ctx, log)
	return withConfig(ctx, cfg), nil
}

// selectFlags choose segments and the output base.
type selectFlags struct {
	include string
	exclude string
	base    string
}

func (s *selectFlags) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "if",
			Usage:       "only copy segments with these flags (among \"rwx\")",
			Destination: &s.include,
		},
		&cli.StringFlag{
			Name:        "if-not",
			Usage:       "only copy segments without these flags (among \"rwx\")",
			Destination: &s.exclude,
		},
		&cli.StringFlag{
			Name:        "base",
			Usage:       "address to start the flat binary at (default: lowest segment address)",
			Destination: &s.base,
		},
	}
}

func (s *selectFlags) options() (flatten.Options, error) {
	var opts flatten.Options
	var err error
	if opts.Filter.Include, err = flatten.ParseFlags(s.include); err != nil {
		return opts, fmt.Errorf("--if: %w", err)
	}
	if opts.Filter.Exclude, err = flatten.ParseFlags(s.exclude); err != nil {
		return opts, fmt.Errorf("--if-not: %w", err)
	}
	if s.base != "" {
		base, err := flatten.ParseAddress(s.base)
		if err != nil {
			return opts, fmt.Errorf("--base: %w", err)
		}
		opts.Base = &base
	}
	return opts, nil
}

func outWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}
