package sqlstore

import (
	"time"

	"github.com/inftyai/mantafs/pkg/catalog"
)

// inodeModel is the inodes table. Ids are stored as the two's-complement
// int64 of the InodeID because PostgreSQL has no unsigned 64-bit column.
type inodeModel struct {
	ID            int64     `gorm:"primaryKey;autoIncrement:false"`
	Name          string    `gorm:"not null;size:255;uniqueIndex:idx_inodes_parent_name,priority:2"`
	Kind          int       `gorm:"not null"`
	Path          string    `gorm:"not null"`
	Size          int64     `gorm:"not null;default:0"`
	ParentID      int64     `gorm:"not null;uniqueIndex:idx_inodes_parent_name,priority:1"`
	StoreType     string    `gorm:"not null;size:16"`
	Source        string    `gorm:"size:2048"`
	CreatedAt     time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
	LastVisitedAt time.Time
	Lock          bool `gorm:"column:lock;not null;default:false;index"`
}

// TableName returns the table name for inodeModel.
func (inodeModel) TableName() string {
	return "inodes"
}

func toModel(i *catalog.Inode) *inodeModel {
	return &inodeModel{
		ID:            int64(i.ID),
		Name:          i.Name,
		Kind:          int(i.Kind),
		Path:          i.Path,
		Size:          int64(i.Size),
		ParentID:      int64(i.ParentID),
		StoreType:     string(i.StoreType),
		Source:        i.Source,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
		LastVisitedAt: i.LastVisitedAt,
		Lock:          i.Lock,
	}
}

func (m *inodeModel) toInode() *catalog.Inode {
	return &catalog.Inode{
		ID:            catalog.InodeID(m.ID),
		Name:          m.Name,
		Kind:          catalog.Kind(m.Kind),
		Path:          m.Path,
		Size:          uint64(m.Size),
		ParentID:      catalog.InodeID(m.ParentID),
		StoreType:     catalog.StoreType(m.StoreType),
		Source:        m.Source,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		LastVisitedAt: m.LastVisitedAt,
		Lock:          m.Lock,
	}
}
