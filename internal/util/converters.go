package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Decimal-looking suffixes are read as binary units, so "10mb" is 10 MiB.
var binarySuffixes = []struct {
	from, to string
}{
	{"kib", "kib"},
	{"mib", "mib"},
	{"gib", "gib"},
	{"tib", "tib"},
	{"kb", "kib"},
	{"mb", "mib"},
	{"gb", "gib"},
	{"tb", "tib"},
	{"k", "kib"},
	{"m", "mib"},
	{"g", "gib"},
	{"t", "tib"},
}

func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseSize turns values such as "10mb", "512KiB" or "4096" into a byte
// count. Sizes that do not fit in an int are rejected.
func ParseSize(s string) (int, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}

	for _, u := range binarySuffixes {
		if strings.HasSuffix(v, u.from) {
			v = strings.TrimSuffix(v, u.from) + u.to
			break
		}
	}

	n, err := humanize.ParseBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > math.MaxInt {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}
	return int(n), nil
}

// FormatBytes renders n with binary units, e.g. "5.5 KiB".
func FormatBytes(n int) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}
