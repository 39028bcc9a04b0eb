// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ExtractStats summarises an extraction.
type ExtractStats struct {
	Decoded    int // files written whole
	RawFiles   int // files that fell back to raw sectors
	RawSectors int
	Deleted    int
	Stored     int // encrypted files kept as stored bytes
	Skipped    int // out-of-range entries
}

// sector is one stored sector. For compressed blocks method is the leading
// mask byte and data excludes it.
type sector struct {
	method byte
	data   []byte
}

// Extract opens the archive at path and extracts it into destDir.
func Extract(path, destDir string, opts *Options) (*ExtractStats, error) {
	o := opts.withDefaults()

	a, err := Open(path, o.Cipher)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	return a.Extract(destDir, &o)
}

// Extract writes a header snapshot and one artifact per occupied hash slot
// into destDir. Files whose sectors cannot all be decoded are written as one
// raw artifact per sector instead.
//
// A block index outside the block table aborts the remaining scan with
// ErrCorrupt unless Options.SkipOutOfRange is set.
func (a *Archive) Extract(destDir string, opts *Options) (*ExtractStats, error) {
	o := opts.withDefaults()
	log := o.Logger

	artDir := filepath.Join(destDir, o.ArtifactDir)
	if err := os.MkdirAll(artDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create artifact directory")
	}

	raw := make([]byte, headerSizeV1)
	if _, err := a.r.ReadAt(raw, 0); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if err := os.WriteFile(filepath.Join(destDir, o.HeaderName), raw, 0644); err != nil {
		return nil, errors.Wrap(err, "write header snapshot")
	}

	stats := &ExtractStats{}
	for i := range a.hashTable {
		entry := &a.hashTable[i]
		key := keyOf(i, entry)
		fields := logrus.Fields{"hash_index": i, "block_index": entry.BlockIndex}

		switch {
		case entry.Empty():
			continue
		case entry.Deleted():
			if err := writeArtifact(artDir, key.DeletedName(), nil); err != nil {
				return stats, err
			}
			stats.Deleted++
			continue
		case entry.BlockIndex >= uint32(len(a.blockTable)):
			if o.SkipOutOfRange {
				log.WithFields(fields).Warn("block index outside block table, skipping entry")
				stats.Skipped++
				continue
			}
			log.WithFields(fields).Error("block index outside block table, aborting scan")
			return stats, errors.Wrapf(ErrCorrupt, "hash entry %d: block index %d outside block table of %d",
				i, entry.BlockIndex, len(a.blockTable))
		}

		block := &a.blockTable[entry.BlockIndex]
		if block.Flags&fileEncrypted != 0 {
			// The key derives from the unknown name, so the bytes are kept as stored.
			if block.Flags&fileFixKey != 0 {
				log.WithFields(fields).Warn("encrypted file keyed by its position, it only decrypts at its original offset")
			}
			data, err := a.readAt(int64(block.FilePos), int64(block.CompressedSize))
			if err != nil {
				return stats, errors.Wrapf(err, "hash entry %d", i)
			}
			if err := writeArtifact(artDir, key.StoredName(block.Flags, block.FileSize), data); err != nil {
				return stats, err
			}
			log.WithFields(fields).Debug("encrypted file, exported stored bytes")
			stats.Stored++
			continue
		}

		sectors, err := a.readSectors(block)
		if err != nil {
			return stats, errors.Wrapf(err, "hash entry %d", i)
		}
		log.WithFields(fields).WithField("sectors", len(sectors)).Debug("read file")

		data, err := a.decodeSectors(block, sectors, o.Codec)
		if err != nil {
			log.WithFields(fields).WithError(err).Warn("cannot decode file, writing raw sectors")
			for j, s := range sectors {
				name := key.RawSectorName(j, s.method, block.FileSize)
				if err := writeArtifact(artDir, name, s.data); err != nil {
					return stats, err
				}
			}
			stats.RawFiles++
			stats.RawSectors += len(sectors)
			continue
		}

		if err := writeArtifact(artDir, key.DecodedName(guessExt(data)), data); err != nil {
			return stats, err
		}
		stats.Decoded++
	}

	log.WithFields(logrus.Fields{
		"decoded": stats.Decoded,
		"raw":     stats.RawFiles,
		"deleted": stats.Deleted,
		"stored":  stats.Stored,
		"skipped": stats.Skipped,
	}).Info("extracted archive")

	return stats, nil
}

// sectorCount returns the number of sectors a file of fileSize bytes spans.
func sectorCount(fileSize, sectorSize uint32) uint32 {
	return uint32((uint64(fileSize) + uint64(sectorSize) - 1) / uint64(sectorSize))
}

// readSectors reads the stored sectors of a block. Uncompressed blocks are
// returned as a single sector.
func (a *Archive) readSectors(block *BlockEntry) ([]sector, error) {
	if !block.Compressed() {
		data, err := a.readAt(int64(block.FilePos), int64(block.FileSize))
		if err != nil {
			return nil, err
		}
		return []sector{{data: data}}, nil
	}

	if block.Flags&fileSingleUnit != 0 {
		data, err := a.readAt(int64(block.FilePos), int64(block.CompressedSize))
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, errors.Wrap(ErrCorrupt, "empty single-unit file")
		}
		return []sector{{method: data[0], data: data[1:]}}, nil
	}

	n := sectorCount(block.FileSize, a.sectorSize)
	table, err := a.readAt(int64(block.FilePos), int64(n+1)*4)
	if err != nil {
		return nil, errors.Wrap(err, "sector offset table")
	}
	offsets := make([]int32, n+1)
	for j := range offsets {
		offsets[j] = int32(binary.LittleEndian.Uint32(table[j*4:]))
	}

	sectors := make([]sector, n)
	for j := range sectors {
		size := int64(offsets[j+1]) - int64(offsets[j])
		if size < 1 {
			return nil, errors.Wrapf(ErrCorrupt, "sector %d has size %d", j, size)
		}
		data, err := a.readAt(int64(block.FilePos)+int64(offsets[j]), size)
		if err != nil {
			return nil, errors.Wrapf(err, "sector %d", j)
		}
		sectors[j] = sector{method: data[0], data: data[1:]}
	}

	return sectors, nil
}

// decodeSectors concatenates the decoded sectors of a block.
func (a *Archive) decodeSectors(block *BlockEntry, sectors []sector, codec *Codec) ([]byte, error) {
	if !block.Compressed() {
		return sectors[0].data, nil
	}

	out := make([]byte, 0, block.FileSize)
	for j, s := range sectors {
		data, err := codec.Decode(s.method, s.data)
		if err != nil {
			return nil, errors.Wrapf(err, "sector %d", j)
		}
		out = append(out, data...)
	}
	return out, nil
}

func (a *Archive) readAt(off, size int64) ([]byte, error) {
	if off < 0 {
		return nil, errors.Wrapf(ErrCorrupt, "negative offset %d", off)
	}
	if a.size >= 0 && off+size > a.size {
		return nil, errors.Wrapf(ErrCorrupt, "%d bytes at offset %d run past end of archive", size, off)
	}
	buf := make([]byte, size)
	if _, err := a.r.ReadAt(buf, off); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(ErrCorrupt, "%d bytes at offset %d run past end of archive", size, off)
		}
		return nil, errors.Wrapf(err, "read %d bytes at offset %d", size, off)
	}
	return buf, nil
}

func writeArtifact(dir, name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return errors.Wrapf(err, "write artifact %s", name)
	}
	return nil
}
