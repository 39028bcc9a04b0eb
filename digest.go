// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// DigestFile returns the xxHash64 of a file's contents. Two archives with the
// same digest are taken to be byte-identical.
func DigestFile(path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open file")
	}
	defer file.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, file); err != nil {
		return 0, errors.Wrapf(err, "digest %s", path)
	}
	return h.Sum64(), nil
}
