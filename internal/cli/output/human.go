package output

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Bytes formats n with binary units, e.g. "1.5 GiB".
func Bytes(n uint64) string {
	return humanize.IBytes(n)
}

// Ago formats t relative to now, e.g. "3 minutes ago". The zero time is "-".
func Ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
