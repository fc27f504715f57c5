package flatten

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/samcharles93/elfcopyflat/pkg/elf"
)

// ParseFlags parses a permission set written as letters among "rwx", in any
// order and case. Each letter may appear once.
func ParseFlags(s string) (elf.ProgFlag, error) {
	var flags elf.ProgFlag
	for _, c := range s {
		var f elf.ProgFlag
		switch unicode.ToLower(c) {
		case 'r':
			f = elf.FlagR
		case 'w':
			f = elf.FlagW
		case 'x':
			f = elf.FlagX
		default:
			return 0, fmt.Errorf("unknown flag %q", c)
		}
		if flags&f != 0 {
			return 0, fmt.Errorf("duplicate flag %q", unicode.ToLower(c))
		}
		flags |= f
	}
	return flags, nil
}

// ParseAddress parses a decimal or 0x-prefixed hexadecimal address.
func ParseAddress(s string) (uint64, error) {
	digits, base := strings.TrimSpace(s), 10
	if len(digits) > 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		digits, base = digits[2:], 16
	}
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return v, nil
}
