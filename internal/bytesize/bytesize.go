// Package bytesize provides a byte count that config files can spell as
// "100GiB", "500Mi", "1.5 GB" or a plain number.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ByteSize is a size in bytes.
//
// Binary suffixes (Ki, KiB, Mi, ...) multiply by 1024, decimal suffixes
// (K, KB, M, ...) by 1000. Suffixes are case-insensitive.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

// ParseByteSize parses s into a ByteSize.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size string")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("negative byte size: %q", s)
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText implements encoding.TextMarshaler. Sizes that String would
// round are written as a plain byte count so a saved config reloads exactly.
func (b ByteSize) MarshalText() ([]byte, error) {
	s := b.String()
	if n, err := humanize.ParseBytes(s); err == nil && ByteSize(n) == b {
		return []byte(s), nil
	}
	return []byte(strconv.FormatUint(uint64(b), 10)), nil
}

// String formats b with binary units, e.g. "100 GiB".
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Uint64 returns b as a uint64.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}

// Int64 returns b as an int64. Values above math.MaxInt64 overflow.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
