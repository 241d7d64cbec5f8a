// Package storage is the persistent index: it stores songs and their
// landmark hashes, and answers the matcher's hash lookups. It is grounded
// on the teacher's DBClient (pkg/acousticdna/storage/sqlite.go), widened to
// the three SQL dialects a deployment may choose and to the exact
// operations the fingerprinting pipeline needs.
package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/echosig/echosig/pkg/echosig/model"
	"gorm.io/gorm"
)

// Batch is the maximum number of rows written or hash values queried in a
// single SQL statement. It bounds both write transactions and the IN (...)
// clause used by ReturnMatches, keeping either from overrunning a driver's
// parameter or packet limits on a large ingest or lookup.
const Batch = 11250

// ErrNotFound is returned by SongByID when no song has that id.
var ErrNotFound = errors.New("storage: song not found")

// Store is the index: a GORM session plus the operations spec.md §4.4
// requires of it.
type Store struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// InsertSong inserts a new, not-yet-fingerprinted song row and returns its
// generated id.
func (s *Store) InsertSong(name string, contentHash [20]byte) (uint32, error) {
	row := songRow{Name: name, ContentHash: contentHash[:], Fingerprinted: false}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, fmt.Errorf("inserting song %q: %w", name, err)
	}
	return row.ID, nil
}

// SongByContentHash looks up a song by its full-file content hash, the
// dedup key ingest checks before doing any decode work. It returns
// ErrNotFound if no song has that hash.
func (s *Store) SongByContentHash(contentHash [20]byte) (model.Song, error) {
	var row songRow
	err := s.db.Where("content_hash = ?", contentHash[:]).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Song{}, ErrNotFound
	}
	if err != nil {
		return model.Song{}, fmt.Errorf("querying song by content hash: %w", err)
	}
	return toModelSong(row), nil
}

// InsertHashes commits a fingerprint's (hash, offset) landmarks for songID,
// writing at most Batch rows per INSERT statement.
func (s *Store) InsertHashes(songID uint32, fp model.Fingerprint) error {
	rows := make([]fingerprintRow, 0, Batch)
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		if err := s.db.CreateInBatches(rows, Batch).Error; err != nil {
			return fmt.Errorf("inserting hashes for song %d: %w", songID, err)
		}
		rows = rows[:0]
		return nil
	}

	for hash, offsets := range fp {
		h := hash
		for offset := range offsets {
			rows = append(rows, fingerprintRow{Hash: h[:], SongID: songID, Offset: offset})
			if len(rows) >= Batch {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// SetSongFingerprinted marks songID as fully committed.
func (s *Store) SetSongFingerprinted(songID uint32) error {
	err := s.db.Model(&songRow{}).Where("id = ?", songID).Update("fingerprinted", true).Error
	if err != nil {
		return fmt.Errorf("marking song %d fingerprinted: %w", songID, err)
	}
	return nil
}

// SongByID resolves a song_id to its metadata.
func (s *Store) SongByID(songID uint32) (model.Song, error) {
	var row songRow
	err := s.db.First(&row, songID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Song{}, ErrNotFound
	}
	if err != nil {
		return model.Song{}, fmt.Errorf("querying song %d: %w", songID, err)
	}
	return toModelSong(row), nil
}

// GetFingerprintedSongs streams every song whose fingerprint commit
// completed, in ascending id order. The callback may return an error to
// stop iteration early.
func (s *Store) GetFingerprintedSongs(fn func(model.Song) error) error {
	rows, err := s.db.Model(&songRow{}).Where("fingerprinted = ?", true).Order("id asc").Rows()
	if err != nil {
		return fmt.Errorf("listing fingerprinted songs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row songRow
		if err := s.db.ScanRows(rows, &row); err != nil {
			return fmt.Errorf("scanning song row: %w", err)
		}
		if err := fn(toModelSong(row)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DeleteUnfingerprinted removes every song (and its orphaned fingerprint
// rows) whose commit never completed, the cleanup a crashed or killed
// ingest leaves behind.
func (s *Store) DeleteUnfingerprinted() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var ids []uint32
		if err := tx.Model(&songRow{}).Where("fingerprinted = ?", false).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("listing unfingerprinted songs: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("song_id IN ?", ids).Delete(&fingerprintRow{}).Error; err != nil {
			return fmt.Errorf("deleting orphaned hashes: %w", err)
		}
		if err := tx.Where("id IN ?", ids).Delete(&songRow{}).Error; err != nil {
			return fmt.Errorf("deleting unfingerprinted songs: %w", err)
		}
		return nil
	})
}

// DeleteSong removes a song and all of its landmark hashes.
func (s *Store) DeleteSong(songID uint32) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("song_id = ?", songID).Delete(&fingerprintRow{}).Error; err != nil {
			return fmt.Errorf("deleting hashes for song %d: %w", songID, err)
		}
		if err := tx.Delete(&songRow{}, songID).Error; err != nil {
			return fmt.Errorf("deleting song %d: %w", songID, err)
		}
		return nil
	})
}

// IsEmpty reports whether the index holds no fingerprinted songs at all.
// This is a read-only check; it does not touch the schema. For the
// destructive operation spec.md §4.4 calls empty(), see Reset.
func (s *Store) IsEmpty() (bool, error) {
	var count int64
	if err := s.db.Model(&songRow{}).Where("fingerprinted = ?", true).Count(&count).Error; err != nil {
		return false, fmt.Errorf("counting songs: %w", err)
	}
	return count == 0, nil
}

// Reset implements the storage contract's empty() operation (spec.md
// §4.4): it drops and recreates both tables, unconditionally discarding
// every song and landmark the index holds, fingerprinted or not. Unlike
// DeleteUnfingerprinted, which only sweeps up an interrupted ingest's
// orphans, Reset wipes a fully committed index too.
func (s *Store) Reset() error {
	if err := s.db.Migrator().DropTable(&fingerprintRow{}, &songRow{}); err != nil {
		return fmt.Errorf("dropping tables: %w", err)
	}
	if err := s.db.AutoMigrate(&songRow{}, &fingerprintRow{}); err != nil {
		return fmt.Errorf("recreating tables: %w", err)
	}
	return nil
}

// ReturnMatches resolves a query fingerprint's hashes against the index,
// yielding one model.Candidate per (hash, song_id, offset) row found for
// every (query offset) the query fingerprint recorded that hash at. It
// looks up at most Batch distinct hashes per SELECT, computing
// Δ = db_offset - query_offset for every match.
func (s *Store) ReturnMatches(query model.Fingerprint) (<-chan model.Candidate, <-chan error) {
	out := make(chan model.Candidate, 256)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		hashes := make([][5]byte, 0, len(query))
		for h := range query {
			hashes = append(hashes, h)
		}

		for start := 0; start < len(hashes); start += Batch {
			end := start + Batch
			if end > len(hashes) {
				end = len(hashes)
			}
			chunk := hashes[start:end]

			args := make([][]byte, len(chunk))
			for i, h := range chunk {
				args[i] = append([]byte(nil), h[:]...)
			}

			var rows []fingerprintRow
			if err := s.db.Where("hash IN ?", args).Find(&rows).Error; err != nil {
				errs <- fmt.Errorf("looking up %d hashes: %w", len(chunk), err)
				return
			}

			for _, row := range rows {
				var h [5]byte
				copy(h[:], row.Hash)
				for queryOffset := range query[h] {
					out <- model.Candidate{
						SongID: row.SongID,
						Delta:  int64(row.Offset) - int64(queryOffset),
					}
				}
			}
		}
	}()

	return out, errs
}

func toModelSong(row songRow) model.Song {
	song := model.Song{ID: row.ID, Name: row.Name, Fingerprinted: row.Fingerprinted}
	copy(song.ContentHash[:], row.ContentHash)
	return song
}
