// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package mpq extracts MPQ (Mo'PaQ) archives into a directory of anonymous
artifacts and assembles them back into an archive.

MPQ archives do not store file names, only two name hashes per hash table
slot. Extraction therefore names every artifact after its slot:

	{hashIndex:6}_{hashA:8X}_{hashB:8X}_{locale:4X}_{platform:4X}.{ext}

A file whose sectors use a compression method without a registered
transform is written as one artifact per sector instead, still compressed:

	{same prefix}.{sector:4}_{method:2X}_{fileSize:8X}

Deleted slots become empty "{prefix}.deleted" markers. Encrypted files,
whose key derives from the unknown name, are kept as their on-disk bytes:

	{same prefix}.stored_{flags:8X}_{fileSize:8X}

Together with the
header snapshot this is enough to rebuild the hash table, block table and
sector layout, so an archive written by Assemble survives an
Extract/Assemble round trip byte for byte.

# Basic Usage

Extracting an archive:

	stats, err := mpq.Extract("map.w3x", "map_data", nil)
	if err != nil {
		log.Fatal(err)
	}

Assembling it again:

	header, err := mpq.AssembleFile("map_data", "map.w3x", nil)
	if err != nil {
		log.Fatal(err)
	}

Looking a file up by name:

	archive, err := mpq.Open("map.w3x", nil)
	if err != nil {
		log.Fatal(err)
	}
	defer archive.Close()

	slot, block, err := archive.Lookup("war3map.j")

# Limitations

  - Only format version 0 (32-bit tables) is read or written
  - Only zlib is registered; see [Codec.Register] for adding methods
  - Encrypted files are passed through undecrypted; those keyed by their
    position (flag 0x00020000) only decrypt if they keep their original offset
  - Single-unit files are rebuilt as sectored files unless their sector
    could not be decoded
  - Digital signatures are not verified
*/
package mpq
