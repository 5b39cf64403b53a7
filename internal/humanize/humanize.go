// Package humanize formats byte/block counts for log lines and the doctor
// report, and parses the SIZE[k|M|G|T|P|E|Z|Y] strings spec.md §6 accepts for
// --mem-buffer, --secondary-storage, --primary-storage, and --storage.
package humanize

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var units = []string{"", "kilo", "mega", "giga", "tera", "peta", "exa", "zeta", "yotta"}

// PrettySize scales len down by repeated factors of 1024 until it fits under
// 1024, returning the scaled value and the unit prefix (e.g. "kilo").
func PrettySize(length uint64) (float64, string) {
	v := float64(length)
	i := 0
	for i < len(units)-1 && v >= 1024.0 {
		v *= 1.0 / 1024.0
		i++
	}
	return v, units[i]
}

// PrettySizeString renders a human string like "12.34 megabytes".
func PrettySizeString(length uint64) string {
	v, unit := PrettySize(length)
	if unit == "" {
		return fmt.Sprintf("%.2f bytes", v)
	}
	return fmt.Sprintf("%.2f %sbytes", v, unit)
}

// Count renders n with locale-appropriate thousands separators, e.g.
// "1,234,567 blocks".
func Count(n uint64, noun string) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%d %s", n, noun)
}

var scaleBits = map[byte]uint{
	'k': 10, 'M': 20, 'G': 30, 'T': 40, 'P': 50, 'E': 60, 'Z': 70, 'Y': 80,
}

// ParseSize parses a decimal integer optionally followed by one of
// k|M|G|T|P|E|Z|Y, returning the scaled byte count.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	suffix := s[len(s)-1]
	digits := s
	var bits uint
	var scaled bool
	if b, ok := scaleBits[suffix]; ok {
		digits = s[:len(s)-1]
		bits = b
		scaled = true
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if !scaled || n == 0 {
		return n, nil
	}
	if bits >= 64 || n > (^uint64(0))>>bits {
		return 0, fmt.Errorf("size %q overflows 64 bits", s)
	}
	return n << bits, nil
}
