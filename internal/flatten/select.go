package flatten

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/samcharles93/elfcopyflat/pkg/elf"
)

var ErrOverlap = errors.New("overlapping segments")

// Filter restricts which PT_LOAD segments are copied. The zero Filter keeps
// every loadable segment.
type Filter struct {
	// Include lists bits that must all be set.
	Include elf.ProgFlag
	// Exclude lists bits that must all be clear.
	Exclude elf.ProgFlag
}

// Match reports whether p is loadable and satisfies both masks.
func (f Filter) Match(p *elf.Prog) bool {
	return p.Type == elf.ProgLoad &&
		p.Flags&f.Include == f.Include &&
		p.Flags&f.Exclude == 0
}

// Select returns the loadable segments matching f, stable-sorted by virtual
// address. Segments at equal addresses keep their table order.
func Select(progs []elf.Prog, f Filter) []elf.Prog {
	out := make([]elf.Prog, 0, len(progs))
	for i := range progs {
		if f.Match(&progs[i]) {
			out = append(out, progs[i])
		}
	}
	slices.SortStableFunc(out, func(a, b elf.Prog) int {
		return cmp.Compare(a.Vaddr, b.Vaddr)
	})
	return out
}

// OverlapError reports a segment whose memory image runs into the next one.
type OverlapError struct {
	Addr uint64
	Size uint64
	Next uint64
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("segment at %#x has size %#x, which overlaps the next segment at %#x",
		e.Addr, e.Size, e.Next)
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlap
}

// Overlaps scans adjacent pairs of an address-sorted list. On sorted input a
// clean adjacent scan implies no pair overlaps at all. Segments with no memory
// size occupy no addresses and are skipped.
func Overlaps(sorted []elf.Prog) []*OverlapError {
	var out []*OverlapError
	var prev *elf.Prog
	for i := range sorted {
		b := &sorted[i]
		if b.Memsz == 0 {
			continue
		}
		// prev.Vaddr+prev.Memsz > b.Vaddr without wrapping.
		if a := prev; a != nil && a.Memsz > b.Vaddr-a.Vaddr {
			out = append(out, &OverlapError{Addr: a.Vaddr, Size: a.Memsz, Next: b.Vaddr})
		}
		prev = b
	}
	return out
}

// CheckOverlaps joins every overlap in sorted into one single-line error, or
// nil.
func CheckOverlaps(sorted []elf.Prog) error {
	var result *multierror.Error
	for _, e := range Overlaps(sorted) {
		result = multierror.Append(result, e)
	}
	if result != nil {
		result.ErrorFormat = joinErrors
	}
	return result.ErrorOrNil()
}

func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
