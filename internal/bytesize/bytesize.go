// Package bytesize parses and renders human-readable byte sizes.
//
// The quota convention is decimal: "5MB" is 5,000,000 bytes. Binary units
// ("5MiB") remain available for operators who want powers of 1024. A bare
// numeric string is a raw byte count.
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize represents a size in bytes.
type ByteSize uint64

// Byte size units.
const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB
	PB ByteSize = 1000 * TB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
	PiB ByteSize = 1024 * TiB
)

// pattern matches a number followed by an optional unit suffix.
var pattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

var unitMultipliers = map[string]ByteSize{
	"":    B,
	"b":   B,
	"k":   KB,
	"kb":  KB,
	"m":   MB,
	"mb":  MB,
	"g":   GB,
	"gb":  GB,
	"t":   TB,
	"tb":  TB,
	"p":   PB,
	"pb":  PB,
	"ki":  KiB,
	"kib": KiB,
	"mi":  MiB,
	"mib": MiB,
	"gi":  GiB,
	"gib": GiB,
	"ti":  TiB,
	"tib": TiB,
	"pi":  PiB,
	"pib": PiB,
}

// decimalUnits ordered largest first, for canonical rendering.
var decimalUnits = []struct {
	suffix string
	size   ByteSize
}{
	{"PB", PB},
	{"TB", TB},
	{"GB", GB},
	{"MB", MB},
	{"KB", KB},
}

// Parse parses a human-readable byte size string like "5MB", "1.5GiB" or
// "1024" into a ByteSize value.
func Parse(s string) (ByteSize, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty byte size string")
	}

	matches := pattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid byte size format: %q", s)
	}

	numStr := matches[1]
	multiplier, ok := unitMultipliers[strings.ToLower(matches[2])]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", matches[2])
	}

	if strings.Contains(numStr, ".") {
		num, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in byte size: %q", numStr)
		}
		return ByteSize(num * float64(multiplier)), nil
	}

	num, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte size: %q", numStr)
	}
	return ByteSize(num) * multiplier, nil
}

// String renders the canonical decimal form: the largest decimal unit with
// up to two decimals, trailing zeros trimmed. Parse(b.String()) == b holds
// for values expressible that way ("5MB" -> 5000000 -> "5MB").
func (b ByteSize) String() string {
	for _, u := range decimalUnits {
		if b >= u.size {
			value := float64(b) / float64(u.size)
			s := strconv.FormatFloat(value, 'f', 2, 64)
			s = strings.TrimRight(s, "0")
			s = strings.TrimRight(s, ".")
			return s + u.suffix
		}
	}
	return fmt.Sprintf("%dB", uint64(b))
}

// Uint64 returns the ByteSize as a uint64.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}

// UnmarshalText implements encoding.TextUnmarshaler so ByteSize can be used
// directly in configuration structs.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}
