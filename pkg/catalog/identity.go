package catalog

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// NewID derives the InodeID for an identity string, normally the canonical
// protocol path of the object. The same identity always yields the same id.
//
// 0 and RootID are reserved; hashes landing there are folded onto the top of
// the range.
func NewID(identity string) InodeID {
	sum := blake3.Sum256([]byte(identity))
	id := InodeID(binary.BigEndian.Uint64(sum[:8]))
	if id <= RootID {
		id = ^id
	}
	return id
}
