package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/elfcopyflat/internal/api"
	"github.com/samcharles93/elfcopyflat/internal/flatten"
	"github.com/samcharles93/elfcopyflat/pkg/elf"
)

func inspectCmd() *cli.Command {
	var (
		common  commonFlags
		sel     selectFlags
		jsonOut bool
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the header and program headers of an ELF file",
		ArgsUsage: "INPUT",
		Flags: append(append(sel.flags(),
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print JSON instead of a table",
				Destination: &jsonOut,
			},
		), common.flags()...),
		Before: common.before,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("inspect: expected INPUT")
			}
			opts, err := sel.options()
			if err != nil {
				return err
			}
			opts.AllowOverlaps = true

			in := cmd.Args().Get(0)
			src, err := elf.Open(in)
			if err != nil {
				return fmt.Errorf("%s: %w", in, err)
			}
			defer func() { _ = src.Close() }()

			res, err := flatten.Plan(ctx, src, opts)
			if err != nil && !errors.Is(err, flatten.ErrOverlap) {
				return err
			}
			_, progs := src.ProgHeaders()
			report := api.NewInspectResponse(res, progs, opts.Filter)

			w := outWriter(cmd)
			if jsonOut {
				b, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(w, "%s\n", b)
				return err
			}
			return printReport(w, in, &report)
		},
	}
}

func printReport(w io.Writer, name string, r *api.InspectResponse) error {
	h := &r.Header
	_, _ = fmt.Fprintf(w, "%s:\n", name)
	_, _ = fmt.Fprintf(w, "\t Class:    %s %s\n", h.Class, h.Data)
	_, _ = fmt.Fprintf(w, "\t Type:     %s\n", h.Type)
	_, _ = fmt.Fprintf(w, "\t Machine:  %s\n", h.Machine)
	_, _ = fmt.Fprintf(w, "\t Entry:    %#x\n", h.Entry)
	_, _ = fmt.Fprintf(w, "\t Programs: %d at %#x (%d bytes each)\n", h.Phnum, h.Phoff, h.Phentsize)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Type", "Flags", "Offset", "Filesz", "Vaddr", "Memsz", "Align", "Copy"})
	for _, s := range r.Segments {
		sel := ""
		if s.Selected {
			sel = "*"
		}
		table.Append([]string{
			strconv.Itoa(s.Index),
			s.Type,
			s.Flags,
			hexStr(s.Offset),
			hexStr(s.Filesz),
			hexStr(s.Vaddr),
			hexStr(s.Memsz),
			hexStr(s.Align),
			sel,
		})
	}
	table.Render()

	_, _ = fmt.Fprintf(w, "%d of %d segments selected, base %#x, image %s\n",
		r.Selected, len(r.Segments), r.Base, humanize.IBytes(r.Size))
	for _, o := range r.Overlaps {
		_, _ = fmt.Fprintf(w, "warning: %s\n", o.Message)
	}
	return nil
}

func hexStr(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}
