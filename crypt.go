// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"encoding/binary"
	"strings"
	"sync"
)

// Hash types select a 256-entry column group of the key table.
const (
	hashTypeTableOffset = 0x000
	hashTypeNameA       = 0x100
	hashTypeNameB       = 0x200
	hashTypeFileKey     = 0x300
	hashTypeKeyMix      = 0x400
)

const (
	cryptTableSize = 0x500
	cryptSeed      = 0x00100001
)

// Cipher holds the pseudo-random key table shared by name hashing and table
// encryption. It is never modified after NewCipher returns, so one value can
// serve any number of archives concurrently.
type Cipher struct {
	table [cryptTableSize]uint32
}

var defaultCipher = sync.OnceValue(NewCipher)

// NewCipher builds the key table from the fixed seed.
func NewCipher() *Cipher {
	c := &Cipher{}
	seed := uint32(cryptSeed)

	for index1 := 0; index1 < 0x100; index1++ {
		index2 := index1
		for i := 0; i < 5; i++ {
			seed = (seed*125 + 3) % 0x2AAAAB
			temp1 := (seed & 0xFFFF) << 0x10

			seed = (seed*125 + 3) % 0x2AAAAB
			temp2 := seed & 0xFFFF

			c.table[index2] = temp1 | temp2
			index2 += 0x100
		}
	}

	return c
}

// Table returns a copy of the key table.
func (c *Cipher) Table() [cryptTableSize]uint32 {
	return c.table
}

// HashString computes the hash of s in the space selected by hashType.
// Letters are folded to upper case and '/' is treated as '\'. Bytes are
// unsigned, so names with bytes >= 0x80 hash to stable in-range lookups.
func (c *Cipher) HashString(s string, hashType uint32) uint32 {
	seed1 := uint32(0x7FED7FED)
	seed2 := uint32(0xEEEEEEEE)

	for i := 0; i < len(s); i++ {
		ch := uint32(s[i])
		if ch >= 'a' && ch <= 'z' {
			ch -= 0x20
		}
		if ch == '/' {
			ch = '\\'
		}

		seed1 = c.table[(hashType+ch)%cryptTableSize] ^ (seed1 + seed2)
		seed2 = ch + seed1 + seed2 + (seed2 << 5) + 3
	}

	return seed1
}

// NameHash is the triple stored (or used to probe) for a file name.
type NameHash struct {
	Index uint32 // unreduced table-offset hash
	NameA uint32
	NameB uint32
}

// HashName returns the three lookup hashes of an archive path.
func (c *Cipher) HashName(name string) NameHash {
	name = normalizeName(name)
	return NameHash{
		Index: c.HashString(name, hashTypeTableOffset),
		NameA: c.HashString(name, hashTypeNameA),
		NameB: c.HashString(name, hashTypeNameB),
	}
}

// EncryptBlock encrypts data in place.
func (c *Cipher) EncryptBlock(data []uint32, key uint32) {
	seed := uint32(0xEEEEEEEE)

	for i := range data {
		seed += c.table[hashTypeKeyMix+(key&0xFF)]
		plain := data[i]
		data[i] = plain ^ (key + seed)
		key = ((^key << 0x15) + 0x11111111) | (key >> 0x0B)
		seed = plain + seed + (seed << 5) + 3
	}
}

// DecryptBlock decrypts data in place. The state advances on the recovered
// plaintext, exactly as in EncryptBlock.
func (c *Cipher) DecryptBlock(data []uint32, key uint32) {
	seed := uint32(0xEEEEEEEE)

	for i := range data {
		seed += c.table[hashTypeKeyMix+(key&0xFF)]
		plain := data[i] ^ (key + seed)
		key = ((^key << 0x15) + 0x11111111) | (key >> 0x0B)
		seed = plain + seed + (seed << 5) + 3
		data[i] = plain
	}
}

// tableKey derives the key for one of the fixed metadata tables.
func (c *Cipher) tableKey(name string) uint32 {
	return c.HashString(name, hashTypeFileKey)
}

// bytesToWords reinterprets little-endian bytes as words; len(b) must be a
// multiple of 4.
func bytesToWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

func wordsToBytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func normalizeName(name string) string {
	return strings.ReplaceAll(name, "/", "\\")
}
