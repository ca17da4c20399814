package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/inftyai/mantafs/pkg/catalog"
)

// ============================================================================
// Key Namespace
// ============================================================================
//
// Data Type       Prefix  Key Format                  Value
// ==========================================================================
// Inode           "i:"    i:<id be64>                 inodeRecord (CBOR)
// Children index  "c:"    c:<parent be64><name>       child id (be64)
//
// Ids are big-endian so a prefix scan over "c:<parent>" yields children in
// name order.

const (
	prefixInode = "i:"
	prefixChild = "c:"
)

func keyInode(id catalog.InodeID) []byte {
	key := make([]byte, len(prefixInode)+8)
	copy(key, prefixInode)
	binary.BigEndian.PutUint64(key[len(prefixInode):], uint64(id))
	return key
}

func keyChildPrefix(parent catalog.InodeID) []byte {
	key := make([]byte, len(prefixChild)+8)
	copy(key, prefixChild)
	binary.BigEndian.PutUint64(key[len(prefixChild):], uint64(parent))
	return key
}

func keyChild(parent catalog.InodeID, name string) []byte {
	return append(keyChildPrefix(parent), name...)
}

func encodeID(id catalog.InodeID) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func decodeID(b []byte) (catalog.InodeID, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid child id length %d", len(b))
	}
	return catalog.InodeID(binary.BigEndian.Uint64(b)), nil
}

// ============================================================================
// Value Encoding
// ============================================================================

// inodeRecord is the persisted form of an inode. Integer keys keep records
// compact; timestamps are stored as unix nanoseconds.
type inodeRecord struct {
	ID            uint64 `cbor:"1,keyasint"`
	Name          string `cbor:"2,keyasint"`
	Path          string `cbor:"3,keyasint"`
	Size          uint64 `cbor:"4,keyasint"`
	ParentID      uint64 `cbor:"5,keyasint"`
	StoreType     string `cbor:"6,keyasint"`
	Kind          int    `cbor:"7,keyasint"`
	Source        string `cbor:"8,keyasint,omitempty"`
	CreatedAt     int64  `cbor:"9,keyasint"`
	UpdatedAt     int64  `cbor:"10,keyasint"`
	LastVisitedAt int64  `cbor:"11,keyasint"`
	Lock          bool   `cbor:"12,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decoder: %v", err))
	}
}

func encodeInode(i *catalog.Inode) ([]byte, error) {
	rec := inodeRecord{
		ID:            uint64(i.ID),
		Name:          i.Name,
		Path:          i.Path,
		Size:          i.Size,
		ParentID:      uint64(i.ParentID),
		StoreType:     string(i.StoreType),
		Kind:          int(i.Kind),
		Source:        i.Source,
		CreatedAt:     unixNano(i.CreatedAt),
		UpdatedAt:     unixNano(i.UpdatedAt),
		LastVisitedAt: unixNano(i.LastVisitedAt),
		Lock:          i.Lock,
	}
	data, err := encMode.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inode: %w", err)
	}
	return data, nil
}

func decodeInode(data []byte) (*catalog.Inode, error) {
	var rec inodeRecord
	if err := decMode.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode inode: %w", err)
	}
	return &catalog.Inode{
		ID:            catalog.InodeID(rec.ID),
		Name:          rec.Name,
		Path:          rec.Path,
		Size:          rec.Size,
		ParentID:      catalog.InodeID(rec.ParentID),
		StoreType:     catalog.StoreType(rec.StoreType),
		Kind:          catalog.Kind(rec.Kind),
		Source:        rec.Source,
		CreatedAt:     fromUnixNano(rec.CreatedAt),
		UpdatedAt:     fromUnixNano(rec.UpdatedAt),
		LastVisitedAt: fromUnixNano(rec.LastVisitedAt),
		Lock:          rec.Lock,
	}, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
