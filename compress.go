// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// Compression mask bits carried in the first byte of a compressed sector.
const (
	compressionHuffman   = 0x01 // Huffman (used on wave files only)
	compressionZlib      = 0x02 // Zlib compression
	compressionPKWare    = 0x08 // PKWare DCL compression
	compressionBzip2     = 0x10 // BZip2 compression
	compressionSparse    = 0x20 // Sparse/RLE compression (SC2+)
	compressionADPCMMono = 0x40 // ADPCM mono audio
	compressionADPCM     = 0x80 // ADPCM stereo audio
)

// MethodZlib is the mask the assembler compresses new sectors with.
const MethodZlib byte = compressionZlib

// Transform is one reversible sector compression step.
type Transform struct {
	Mask   byte
	Name   string
	Encode func([]byte) ([]byte, error)
	Decode func([]byte) ([]byte, error)
}

// Codec dispatches a sector method mask to its registered transforms.
type Codec struct {
	transforms []Transform
}

// NewCodec returns a codec with the given transforms, in registration order.
func NewCodec(transforms ...Transform) *Codec {
	return &Codec{transforms: transforms}
}

// StandardCodec returns a codec with zlib registered for mask 0x02.
func StandardCodec() *Codec {
	return NewCodec(Transform{
		Mask:   compressionZlib,
		Name:   "zlib",
		Encode: compressZlib,
		Decode: decompressZlib,
	})
}

// Register appends a transform. Masks must not overlap an existing one.
func (c *Codec) Register(t Transform) error {
	for _, have := range c.transforms {
		if have.Mask&t.Mask != 0 {
			return errors.Errorf("mask 0x%02X overlaps %s", t.Mask, have.Name)
		}
	}
	c.transforms = append(c.transforms, t)
	return nil
}

// Supports reports whether every bit of mask has a registered transform.
func (c *Codec) Supports(mask byte) bool {
	_, err := c.resolve(mask)
	return err == nil
}

// resolve returns the transforms selected by mask in registration order.
func (c *Codec) resolve(mask byte) ([]Transform, error) {
	var selected []Transform
	rest := mask
	for _, t := range c.transforms {
		if mask&t.Mask != 0 {
			rest &^= t.Mask
			selected = append(selected, t)
		}
	}
	if rest != 0 {
		return nil, errors.Wrapf(ErrUnsupportedMethod, "mask 0x%02X (unhandled bits 0x%02X: %s)",
			mask, rest, methodNames(rest))
	}
	return selected, nil
}

// Decode undoes every transform named by mask, in registration order.
func (c *Codec) Decode(mask byte, payload []byte) ([]byte, error) {
	selected, err := c.resolve(mask)
	if err != nil {
		return nil, err
	}
	for _, t := range selected {
		if payload, err = t.Decode(payload); err != nil {
			return nil, errors.Wrapf(err, "%s decode", t.Name)
		}
	}
	return payload, nil
}

// Encode applies every transform named by mask, in reverse registration
// order, so that Decode inverts it.
func (c *Codec) Encode(mask byte, payload []byte) ([]byte, error) {
	selected, err := c.resolve(mask)
	if err != nil {
		return nil, err
	}
	for i := len(selected) - 1; i >= 0; i-- {
		t := selected[i]
		if payload, err = t.Encode(payload); err != nil {
			return nil, errors.Wrapf(err, "%s encode", t.Name)
		}
	}
	return payload, nil
}

// compressZlib produces a zlib stream at maximum compression.
func compressZlib(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, errors.Wrap(err, "create zlib writer")
	}

	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, "zlib write")
	}

	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "zlib close")
	}

	return buf.Bytes(), nil
}

func decompressZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "create zlib reader")
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "zlib decompress")
	}
	return out, nil
}

var methodBits = []struct {
	mask byte
	name string
}{
	{compressionHuffman, "huffman"},
	{compressionZlib, "zlib"},
	{0x04, "0x04"},
	{compressionPKWare, "pkware"},
	{compressionBzip2, "bzip2"},
	{compressionSparse, "sparse"},
	{compressionADPCMMono, "adpcm-mono"},
	{compressionADPCM, "adpcm-stereo"},
}

func methodNames(mask byte) string {
	var names []string
	for _, m := range methodBits {
		if mask&m.mask != 0 {
			names = append(names, m.name)
		}
	}
	return strings.Join(names, "+")
}
