// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package diskio provides the byte-addressed backing stores under a
// simulated namespace.
package diskio

import (
	"io"
)

type File[A ~int64] interface {
	Name() string
	Size() A
	Close() error
	ReadAt(p []byte, off A) (n int, err error)
	WriteAt(p []byte, off A) (n int, err error)
}

// A Discarder is a File that can drop a region, after which the
// region reads as zeros.
type Discarder[A ~int64] interface {
	Discard(off, n A) error
}

type assertAddr int64

var (
	_ io.WriterAt = File[int64](nil)
	_ io.ReaderAt = File[int64](nil)
)

// zeroChunk is the largest write that Discard issues to a File that
// is not a Discarder.
const zeroChunk = 64 * 1024

// Discard makes the n bytes at off read as zeros, using the File's
// own Discard if it has one.
func Discard[A ~int64](f File[A], off, n A) error {
	if d, ok := f.(Discarder[A]); ok {
		return d.Discard(off, n)
	}
	zeros := make([]byte, zeroChunk)
	for n > 0 {
		chunk := n
		if chunk > zeroChunk {
			chunk = zeroChunk
		}
		if _, err := f.WriteAt(zeros[:chunk], off); err != nil {
			return err
		}
		off += chunk
		n -= chunk
	}
	return nil
}
