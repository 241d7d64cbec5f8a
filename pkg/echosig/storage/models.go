package storage

import "time"

// songRow is the GORM-mapped row for one indexed recording. It carries the
// song's identity, its full-file content hash (for ingest dedup), and
// whether its fingerprint commit completed.
type songRow struct {
	ID            uint32 `gorm:"primaryKey;autoIncrement"`
	Name          string `gorm:"not null"`
	ContentHash   []byte `gorm:"uniqueIndex:idx_content_hash;size:20"`
	Fingerprinted bool   `gorm:"not null;default:false"`
	CreatedAt     time.Time
}

func (songRow) TableName() string { return "songs" }

// fingerprintRow is one (hash, song_id, offset) landmark. hash carries a
// mandatory btree index: every lookup during matching filters on it.
type fingerprintRow struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Hash   []byte `gorm:"index:idx_hash;size:5;not null"`
	SongID uint32 `gorm:"index:idx_song_id;not null"`
	Offset uint32 `gorm:"not null"`
}

func (fingerprintRow) TableName() string { return "fingerprints" }
