package flatten

import (
	"errors"
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/samcharles93/elfcopyflat/pkg/elf"
)

func load(vaddr, memsz uint64, flags elf.ProgFlag) elf.Prog {
	return elf.Prog{Type: elf.ProgLoad, Flags: flags, Vaddr: vaddr, Memsz: memsz, Filesz: memsz}
}

func TestSelectLoadOnlySorted(t *testing.T) {
	t.Parallel()

	progs := []elf.Prog{
		load(0x3000, 0x10, elf.FlagR),
		{Type: elf.ProgNote, Flags: elf.FlagR, Vaddr: 0x500},
		load(0x1000, 0x10, elf.FlagR|elf.FlagX),
		{Type: elf.ProgGNUStack, Flags: elf.FlagR | elf.FlagW},
		load(0x2000, 0x10, elf.FlagR|elf.FlagW),
	}
	got := Select(progs, Filter{})
	if len(got) != 3 {
		t.Fatalf("selected %d segments, want 3", len(got))
	}
	for i, want := range []uint64{0x1000, 0x2000, 0x3000} {
		if got[i].Vaddr != want {
			t.Fatalf("segment %d at %#x, want %#x", i, got[i].Vaddr, want)
		}
	}
	if progs[0].Vaddr != 0x3000 {
		t.Fatalf("input table was reordered")
	}
}

func TestSelectIncludeExecutable(t *testing.T) {
	t.Parallel()

	progs := []elf.Prog{
		load(0x1000, 0x10, elf.FlagR|elf.FlagX),
		load(0x2000, 0x10, elf.FlagR|elf.FlagW),
		load(0x3000, 0x10, elf.FlagX),
		load(0x4000, 0x10, elf.FlagR|elf.FlagW|elf.FlagX),
		load(0x5000, 0x10, elf.FlagR),
	}
	got := Select(progs, Filter{Include: elf.FlagX})
	var addrs []uint64
	for _, p := range got {
		if !p.Executable() {
			t.Fatalf("non-executable segment at %#x selected", p.Vaddr)
		}
		addrs = append(addrs, p.Vaddr)
	}
	if want := []uint64{0x1000, 0x3000, 0x4000}; !slices.Equal(addrs, want) {
		t.Fatalf("selected %#x, want %#x", addrs, want)
	}
}

func TestFilterMasks(t *testing.T) {
	t.Parallel()

	rx := load(0, 0, elf.FlagR|elf.FlagX)
	rw := load(0, 0, elf.FlagR|elf.FlagW)
	note := elf.Prog{Type: elf.ProgNote, Flags: elf.FlagR}

	tests := []struct {
		name   string
		filter Filter
		prog   elf.Prog
		want   bool
	}{
		{"no masks", Filter{}, rx, true},
		{"not loadable", Filter{}, note, false},
		{"include all present", Filter{Include: elf.FlagR | elf.FlagX}, rx, true},
		{"include one missing", Filter{Include: elf.FlagR | elf.FlagX}, rw, false},
		{"exclude hit", Filter{Exclude: elf.FlagW}, rw, false},
		{"exclude miss", Filter{Exclude: elf.FlagW}, rx, true},
		{"exclude any of", Filter{Exclude: elf.FlagW | elf.FlagX}, rx, false},
		{"both", Filter{Include: elf.FlagR, Exclude: elf.FlagX}, rw, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(&tt.prog); got != tt.want {
				t.Fatalf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectStable(t *testing.T) {
	t.Parallel()

	progs := []elf.Prog{
		{Type: elf.ProgLoad, Vaddr: 0x2000, Off: 1},
		{Type: elf.ProgLoad, Vaddr: 0x1000, Off: 2},
		{Type: elf.ProgLoad, Vaddr: 0x2000, Off: 3},
		{Type: elf.ProgLoad, Vaddr: 0x1000, Off: 4},
		{Type: elf.ProgLoad, Vaddr: 0x2000, Off: 5},
	}
	got := Select(progs, Filter{})
	var offs []uint64
	for _, p := range got {
		offs = append(offs, p.Off)
	}
	if want := []uint64{2, 4, 1, 3, 5}; !slices.Equal(offs, want) {
		t.Fatalf("order %v, want %v", offs, want)
	}
}

func TestOverlapDetected(t *testing.T) {
	t.Parallel()

	sorted := Select([]elf.Prog{
		load(0x1000, 0x2000, elf.FlagR),
		load(0x2000, 0x100, elf.FlagR),
	}, Filter{})

	overlaps := Overlaps(sorted)
	if len(overlaps) != 1 {
		t.Fatalf("got %d overlaps, want 1", len(overlaps))
	}
	o := overlaps[0]
	if o.Addr != 0x1000 || o.Size != 0x2000 || o.Next != 0x2000 {
		t.Fatalf("unexpected overlap %+v", *o)
	}

	err := CheckOverlaps(sorted)
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("CheckOverlaps = %v, want ErrOverlap", err)
	}
	var oe *OverlapError
	if !errors.As(err, &oe) || oe.Next != 0x2000 {
		t.Fatalf("errors.As did not find the overlap: %v", err)
	}
	if want := oe.Error(); err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
}

func TestCheckOverlapsSingleLine(t *testing.T) {
	t.Parallel()

	sorted := Select([]elf.Prog{
		load(0x1000, 0x2000, elf.FlagR),
		load(0x2000, 0x2000, elf.FlagR),
		load(0x3000, 0x100, elf.FlagR),
	}, Filter{})
	err := CheckOverlaps(sorted)
	if err == nil {
		t.Fatal("expected overlaps")
	}
	msg := err.Error()
	if strings.ContainsAny(msg, "\n\t") {
		t.Fatalf("message spans lines: %q", msg)
	}
	if strings.Count(msg, "; ") != 1 || !strings.Contains(msg, "0x3000") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestOverlapIgnoresEmptySegments(t *testing.T) {
	t.Parallel()

	empty := load(0x1000, 0, elf.FlagR)
	full := load(0x1000, 0x100, elf.FlagR)
	for _, progs := range [][]elf.Prog{{empty, full}, {full, empty}} {
		if got := Overlaps(Select(progs, Filter{})); len(got) != 0 {
			t.Fatalf("order %#x/%#x: unexpected overlap %+v", progs[0].Memsz, progs[1].Memsz, *got[0])
		}
	}

	// An empty segment between two overlapping ones must not hide the overlap.
	got := Overlaps(Select([]elf.Prog{
		load(0x1000, 0x1000, elf.FlagR),
		load(0x1800, 0, elf.FlagR),
		load(0x1900, 0x10, elf.FlagR),
	}, Filter{}))
	if len(got) != 1 || got[0].Addr != 0x1000 || got[0].Next != 0x1900 {
		t.Fatalf("unexpected overlaps %v", got)
	}
}

func TestNoOverlapWhenAdjacent(t *testing.T) {
	t.Parallel()

	sorted := Select([]elf.Prog{
		load(0x1000, 0x100, elf.FlagR),
		load(0x2000, 0x200, elf.FlagR),
		load(0x2200, 0x10, elf.FlagR),
	}, Filter{})
	if err := CheckOverlaps(sorted); err != nil {
		t.Fatalf("unexpected overlap: %v", err)
	}
}

func TestOverlapNoWrap(t *testing.T) {
	t.Parallel()

	sorted := []elf.Prog{
		load(0xfffffffffffff000, 0x2000, elf.FlagR),
		load(0xfffffffffffff800, 0x10, elf.FlagR),
	}
	if len(Overlaps(sorted)) != 1 {
		t.Fatalf("overlap near the top of the address space not detected")
	}
}

func TestOverlapPermutationIndependent(t *testing.T) {
	t.Parallel()

	sets := map[string][]elf.Prog{
		"disjoint": {
			load(0x1000, 0x100, elf.FlagR),
			load(0x1100, 0x100, elf.FlagR),
			load(0x4000, 0x1000, elf.FlagR),
			load(0x8000, 0x10, elf.FlagR),
		},
		"nested non-adjacent": {
			load(0x1000, 0x8000, elf.FlagR),
			load(0x2000, 0x10, elf.FlagR),
			load(0x5000, 0x10, elf.FlagR),
			load(0xa000, 0x10, elf.FlagR),
		},
		"equal addresses": {
			load(0x3000, 0x10, elf.FlagR),
			load(0x1000, 0x10, elf.FlagR),
			load(0x3000, 0x20, elf.FlagR),
		},
		"empty at shared address": {
			load(0x1000, 0, elf.FlagR),
			load(0x1000, 0x100, elf.FlagR),
			load(0x1100, 0, elf.FlagR),
			load(0x1100, 0x10, elf.FlagR),
		},
	}

	rng := rand.New(rand.NewSource(1))
	for name, progs := range sets {
		t.Run(name, func(t *testing.T) {
			want := bruteForceOverlap(progs)
			for i := 0; i < 50; i++ {
				perm := slices.Clone(progs)
				rng.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
				got := len(Overlaps(Select(perm, Filter{}))) > 0
				if got != want {
					t.Fatalf("permutation %d: overlap = %v, want %v", i, got, want)
				}
			}
		})
	}
}

// bruteForceOverlap checks every pair of non-empty segments as half-open
// ranges.
func bruteForceOverlap(progs []elf.Prog) bool {
	for i := range progs {
		for j := i + 1; j < len(progs); j++ {
			a, b := progs[i], progs[j]
			if a.Vaddr < b.Vaddr+b.Memsz && b.Vaddr < a.Vaddr+a.Memsz {
				return true
			}
		}
	}
	return false
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    elf.ProgFlag
		wantErr bool
	}{
		{"", 0, false},
		{"r", elf.FlagR, false},
		{"xW", elf.FlagX | elf.FlagW, false},
		{"RWX", elf.FlagRWX, false},
		{"rr", 0, true},
		{"rR", 0, true},
		{"q", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFlags(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseFlags(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseFlags(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"4096", 4096, false},
		{"0x1000", 0x1000, false},
		{"0X80000000", 0x80000000, false},
		{"0xffffffffffffffff", 0xffffffffffffffff, false},
		{"0x10000000000000000", 0, true},
		{"010", 10, false},
		{"0x", 0, true},
		{"1_000", 0, true},
		{"-1", 0, true},
		{"", 0, true},
		{"base", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseAddress(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}
