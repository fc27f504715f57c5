package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/elfcopyflat/internal/api"
	"github.com/samcharles93/elfcopyflat/internal/flatten"
	"github.com/samcharles93/elfcopyflat/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		common        commonFlags
		addr          string
		maxBody       string
		maxImage      string
		readTimeout   time.Duration
		allowOverlaps bool
		zeroFill      bool
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve inspection and flattening over HTTP",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.StringFlag{
				Name:        "max-body",
				Usage:       "largest accepted upload",
				Value:       humanize.IBytes(api.DefaultMaxBodySize),
				Destination: &maxBody,
			},
			&cli.StringFlag{
				Name:        "max-image",
				Usage:       "largest flat image produced for a request",
				Value:       humanize.IBytes(api.DefaultMaxImageSize),
				Destination: &maxImage,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.BoolFlag{
				Name:        "allow-overlaps",
				Usage:       "allow overlapping segments unless a request says otherwise",
				Destination: &allowOverlaps,
			},
			&cli.BoolFlag{
				Name:        "zero-fill",
				Usage:       "zero-fill segment tails unless a request says otherwise",
				Destination: &zeroFill,
			},
		}, common.flags()...),
		Before: common.before,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg := configFrom(ctx)
			if cfg.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = cfg.ServerAddress
			}
			if cfg.MaxBodySize != "" && !cmd.IsSet("max-body") {
				maxBody = cfg.MaxBodySize
			}
			if cfg.MaxImageSize != "" && !cmd.IsSet("max-image") {
				maxImage = cfg.MaxImageSize
			}
			applyBool(cmd.IsSet("allow-overlaps"), cfg.AllowOverlaps, &allowOverlaps)
			applyBool(cmd.IsSet("zero-fill"), cfg.ZeroFill, &zeroFill)

			opts, err := serverOptions(maxBody, maxImage)
			if err != nil {
				return err
			}
			opts.Defaults = flatten.Options{
				AllowOverlaps: allowOverlaps,
				ZeroFill:      zeroFill,
			}
			opts.Logger = log

			server := api.NewServer(opts)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server",
				"address", addr,
				"max_body", humanize.IBytes(uint64(opts.MaxBodySize)),
				"max_image", humanize.IBytes(uint64(opts.MaxImageSize)))
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

// serverOptions parses the upload and image size limits.
func serverOptions(maxBody, maxImage string) (api.Options, error) {
	var opts api.Options
	for _, l := range []struct {
		flag string
		val  string
		dst  *int64
	}{
		{"--max-body", maxBody, &opts.MaxBodySize},
		{"--max-image", maxImage, &opts.MaxImageSize},
	} {
		n, err := humanize.ParseBytes(l.val)
		if err != nil {
			return api.Options{}, fmt.Errorf("%s: %w", l.flag, err)
		}
		if n == 0 || n > math.MaxInt64 {
			return api.Options{}, fmt.Errorf("%s: %q is out of range", l.flag, l.val)
		}
		*l.dst = int64(n)
	}
	return opts, nil
}
