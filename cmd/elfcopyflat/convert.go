package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
	"github.com/xyproto/env/v2"

	"github.com/samcharles93/elfcopyflat/internal/flatten"
	"github.com/samcharles93/elfcopyflat/internal/logger"
	"github.com/samcharles93/elfcopyflat/pkg/elf"
)

func convertCmd() *cli.Command {
	var (
		common        commonFlags
		sel           selectFlags
		allowOverlaps bool
		zeroFill      bool
	)

	flags := append(sel.flags(),
		&cli.BoolFlag{
			Name:        "allow-overlaps",
			Usage:       "allow overlapping segments",
			Destination: &allowOverlaps,
		},
		&cli.BoolFlag{
			Name:        "zero-fill",
			Usage:       "write zeros over each segment's memory beyond its file bytes",
			Destination: &zeroFill,
		},
	)

	return &cli.Command{
		Name:      "convert",
		Usage:     "Copy loadable segments to a flat binary",
		ArgsUsage: "INPUT [OUTPUT]",
		Flags:     append(flags, common.flags()...),
		Before:    common.before,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 || cmd.Args().Len() > 2 {
				return fmt.Errorf("convert: expected INPUT [OUTPUT]")
			}
			opts, err := sel.options()
			if err != nil {
				return err
			}
			cfg := configFrom(ctx)
			applyBool(cmd.IsSet("allow-overlaps"), cfg.AllowOverlaps, &allowOverlaps)
			applyBool(cmd.IsSet("zero-fill"), cfg.ZeroFill, &zeroFill)
			opts.AllowOverlaps = allowOverlaps
			opts.ZeroFill = zeroFill

			in := cmd.Args().Get(0)
			out, err := resolveOutput(in, cmd.Args().Get(1))
			if err != nil {
				return err
			}
			return convert(ctx, in, out, opts)
		},
	}
}

func convert(ctx context.Context, in, out string, opts flatten.Options) error {
	log := logger.FromContext(ctx)

	src, err := elf.Open(in)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := flatten.CreateAtomic(out)
	if err != nil {
		return err
	}
	res, err := flatten.Run(ctx, src, dst, opts)
	if err != nil {
		_ = dst.Abort()
		if errors.Is(err, flatten.ErrOverlap) && !opts.AllowOverlaps {
			return fmt.Errorf("%w (use --allow-overlaps to use it anyway)", err)
		}
		return fmt.Errorf("%s: %w", in, err)
	}
	if err := dst.Commit(); err != nil {
		return err
	}

	size := int64(0)
	if st, err := os.Stat(out); err == nil {
		size = st.Size()
	}
	log.Info("wrote flat image",
		"output", out,
		"segments", len(res.Segments),
		"base", fmt.Sprintf("%#x", res.Base),
		"size", humanize.IBytes(uint64(size)),
	)
	return nil
}

// resolveOutput returns the output path. Without an explicit output the image
// goes next to the input (or into $ELFCOPYFLAT_OUT_DIR) as NAME.bin.
func resolveOutput(in, out string) (string, error) {
	if out != "" {
		return filepath.Clean(out), nil
	}
	dir := env.Str(envOutDir, filepath.Dir(in))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + ".bin"
	p := filepath.Join(dir, name)
	if filepath.Clean(p) == filepath.Clean(in) {
		return "", fmt.Errorf("output %s would overwrite the input; name an output file", p)
	}
	return p, nil
}
