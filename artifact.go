// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ArtifactKind distinguishes the three artifact naming forms.
type ArtifactKind int

const (
	// ArtifactDecoded holds a whole decoded file: {key}.{ext}
	ArtifactDecoded ArtifactKind = iota
	// ArtifactRawSector holds one still-compressed sector, without its method
	// byte: {key}.{sector:4}_{method:2X}_{fileSize:8X}
	ArtifactRawSector
	// ArtifactDeleted marks a deleted hash slot: {key}.deleted
	ArtifactDeleted
	// ArtifactStored holds the on-disk bytes of a file that cannot be read
	// without its name, such as an encrypted one:
	// {key}.stored_{flags:8X}_{fileSize:8X}
	ArtifactStored
)

const (
	deletedSuffix = "deleted"
	storedPrefix  = "stored_"
)

// ArtifactKey is the hash table slot an artifact came from.
type ArtifactKey struct {
	HashIndex uint32
	HashA     uint32
	HashB     uint32
	Locale    uint16
	Platform  uint16
}

func keyOf(index int, e *HashEntry) ArtifactKey {
	return ArtifactKey{
		HashIndex: uint32(index),
		HashA:     e.HashA,
		HashB:     e.HashB,
		Locale:    e.Locale,
		Platform:  e.Platform,
	}
}

func (k ArtifactKey) String() string {
	return fmt.Sprintf("%06d_%08X_%08X_%04X_%04X", k.HashIndex, k.HashA, k.HashB, k.Locale, k.Platform)
}

// Artifact is a parsed artifact file name.
type Artifact struct {
	Key  ArtifactKey
	Kind ArtifactKind
	Ext  string

	// Raw sector fields
	Sector   int
	Method   byte
	FileSize uint32 // also set for stored artifacts

	// Block flags of a stored artifact
	Flags uint32

	Name string
}

// DecodedName names a fully decoded file.
func (k ArtifactKey) DecodedName(ext string) string {
	return k.String() + "." + ext
}

// RawSectorName names one undecoded sector.
func (k ArtifactKey) RawSectorName(sector int, method byte, fileSize uint32) string {
	return fmt.Sprintf("%s.%04d_%02X_%08X", k, sector, method, fileSize)
}

// StoredName names the stored bytes of a block kept as is.
func (k ArtifactKey) StoredName(flags, fileSize uint32) string {
	return fmt.Sprintf("%s.%s%08X_%08X", k, storedPrefix, flags, fileSize)
}

// DeletedName names a deleted slot marker.
func (k ArtifactKey) DeletedName() string {
	return k.String() + "." + deletedSuffix
}

var (
	keyPattern    = regexp.MustCompile(`^(\d{6,})_([0-9A-F]{8})_([0-9A-F]{8})_([0-9A-F]{4})_([0-9A-F]{4})$`)
	rawPattern    = regexp.MustCompile(`^(\d{4,})_([0-9A-F]{2})_([0-9A-F]{8})$`)
	storedPattern = regexp.MustCompile(`^` + storedPrefix + `([0-9A-F]{8})_([0-9A-F]{8})$`)
)

// ParseArtifactName parses an artifact file name. Names that do not follow
// the grammar yield ErrFormatMismatch.
func ParseArtifactName(name string) (*Artifact, error) {
	prefix, suffix, _ := strings.Cut(name, ".")

	m := keyPattern.FindStringSubmatch(prefix)
	if m == nil {
		return nil, errors.Wrapf(ErrFormatMismatch, "%q", name)
	}

	art := &Artifact{Name: name}
	var err error
	if art.Key.HashIndex, err = parseUint32(m[1], 10); err != nil {
		return nil, errors.Wrapf(ErrFormatMismatch, "%q: hash index: %v", name, err)
	}
	art.Key.HashA, _ = parseUint32(m[2], 16)
	art.Key.HashB, _ = parseUint32(m[3], 16)
	locale, _ := parseUint32(m[4], 16)
	platform, _ := parseUint32(m[5], 16)
	art.Key.Locale = uint16(locale)
	art.Key.Platform = uint16(platform)

	raw := rawPattern.FindStringSubmatch(suffix)
	stored := storedPattern.FindStringSubmatch(suffix)
	switch {
	case raw != nil:
		sector, err := strconv.Atoi(raw[1])
		if err != nil {
			return nil, errors.Wrapf(ErrFormatMismatch, "%q: sector index: %v", name, err)
		}
		method, _ := parseUint32(raw[2], 16)
		art.Kind = ArtifactRawSector
		art.Sector = sector
		art.Method = byte(method)
		art.FileSize, _ = parseUint32(raw[3], 16)
	case stored != nil:
		art.Kind = ArtifactStored
		art.Flags, _ = parseUint32(stored[1], 16)
		art.FileSize, _ = parseUint32(stored[2], 16)
	case suffix == deletedSuffix:
		art.Kind = ArtifactDeleted
	default:
		art.Kind = ArtifactDecoded
		art.Ext = suffix
	}

	return art, nil
}

func parseUint32(s string, base int) (uint32, error) {
	v, err := strconv.ParseUint(s, base, 32)
	return uint32(v), err
}
