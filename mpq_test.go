// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namedKey(c *Cipher, name string, index uint32) ArtifactKey {
	h := c.HashName(name)
	return ArtifactKey{HashIndex: index, HashA: h.NameA, HashB: h.NameB}
}

func TestLookup(t *testing.T) {
	c := NewCipher()
	f := newFixture(t, 10, 0)

	// war3map.j hashes to slot 6 and (listfile) to slot 9 of 16.
	f.add(t, namedKey(c, "war3map.j", 6).DecodedName("txt"), scriptText)
	f.add(t, namedKey(c, "(listfile)", 9).DecodedName("txt"), []byte("war3map.j\r\n"))
	path := f.assemble(t)

	a, err := Open(path, c)
	require.NoError(t, err)
	defer a.Close()

	slot, block, err := a.Lookup("war3map.j")
	require.NoError(t, err)
	assert.Equal(t, 6, slot)
	assert.Equal(t, uint32(len(scriptText)), block.FileSize)

	slot, _, err = a.Lookup("(LISTFILE)")
	require.NoError(t, err)
	assert.Equal(t, 9, slot)

	_, _, err = a.Lookup("war3map.w3e")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLookupProbesPastDeletedSlots(t *testing.T) {
	c := NewCipher()
	f := newFixture(t, 10, 0)

	f.add(t, testKey(6).DeletedName(), nil)
	f.add(t, namedKey(c, "war3map.j", 7).DecodedName("txt"), scriptText)
	path := f.assemble(t)

	a, err := Open(path, c)
	require.NoError(t, err)
	defer a.Close()

	slot, _, err := a.Lookup("war3map.j")
	require.NoError(t, err)
	assert.Equal(t, 7, slot)
}

func TestLookupStopsAtEmptySlot(t *testing.T) {
	c := NewCipher()
	f := newFixture(t, 10, 0)

	// Slot 6 stays empty, so the probe ends before slot 7.
	f.add(t, namedKey(c, "war3map.j", 7).DecodedName("txt"), scriptText)
	path := f.assemble(t)

	a, err := Open(path, c)
	require.NoError(t, err)
	defer a.Close()

	_, _, err = a.Lookup("war3map.j")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOpenInvalidHeader(t *testing.T) {
	path := roundTripFixture(t).assemble(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	data[3] = 0x1B
	require.NoError(t, os.WriteFile(path, data, 0644))
	_, err = Open(path, nil)
	assert.True(t, errors.Is(err, ErrInvalidHeader), "%v", err)

	data[3] = 0x1A
	data[12] = 1
	require.NoError(t, os.WriteFile(path, data, 0644))
	_, err = Open(path, nil)
	assert.True(t, errors.Is(err, ErrInvalidHeader), "%v", err)
}

func TestOpenTruncatedTables(t *testing.T) {
	path := roundTripFixture(t).assemble(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, data[:len(data)-8], 0644))
	_, err = Open(path, nil)
	assert.True(t, errors.Is(err, ErrCorrupt), "%v", err)
}

func TestOpenOversizedTable(t *testing.T) {
	header := NewHeader(4, 3)
	header.HashTableSize = 0x80000000
	header.HashTableOffset = headerSizeV1
	header.BlockTableOffset = headerSizeV1
	raw, err := header.MarshalBinary()
	require.NoError(t, err)

	data := append(raw, make([]byte, 18)...)
	path := filepath.Join(t.TempDir(), "huge.mpq")
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = Open(path, nil)
	assert.True(t, errors.Is(err, ErrCorrupt), "%v", err)

	_, err = NewArchive(bytes.NewReader(data), nil)
	assert.True(t, errors.Is(err, ErrCorrupt), "%v", err)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("does-not-exist.mpq", nil)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}
