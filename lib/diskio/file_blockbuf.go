// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio

import (
	"io"
	"sync"

	"git.lukeshu.com/nvmeconf-ng/lib/containers"
)

type bufferedBlock struct {
	Dat []byte
	Err error
}

// bufferedFile caches blocks of an inner File for reading.  Writes go
// straight through to the inner File and invalidate the blocks they
// touch, so the cache never holds dirty data.
type bufferedFile[A ~int64] struct {
	inner     File[A]
	blockSize A

	mu         sync.Mutex
	blockCache *containers.LRUCache[A, *bufferedBlock]
}

var (
	_ File[assertAddr]      = (*bufferedFile[assertAddr])(nil)
	_ Discarder[assertAddr] = (*bufferedFile[assertAddr])(nil)
)

func NewBufferedFile[A ~int64](file File[A], blockSize A, cacheSize int) *bufferedFile[A] {
	return &bufferedFile[A]{
		inner:      file,
		blockSize:  blockSize,
		blockCache: containers.NewLRUCache[A, *bufferedBlock](cacheSize),
	}
}

func (bf *bufferedFile[A]) Name() string { return bf.inner.Name() }
func (bf *bufferedFile[A]) Size() A      { return bf.inner.Size() }
func (bf *bufferedFile[A]) Close() error { return bf.inner.Close() }

func (bf *bufferedFile[A]) ReadAt(dat []byte, off A) (n int, err error) {
	done := 0
	for done < len(dat) {
		n, err := bf.maybeShortReadAt(dat[done:], off+A(done))
		done += n
		if err != nil {
			return done, err
		}
	}
	return done, nil
}

func (bf *bufferedFile[A]) loadBlock(blockOffset A) *bufferedBlock {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.blockCache.GetOrElse(blockOffset, func() *bufferedBlock {
		buf := make([]byte, bf.blockSize)
		n, err := bf.inner.ReadAt(buf, blockOffset)
		return &bufferedBlock{
			Dat: buf[:n],
			Err: err,
		}
	})
}

func (bf *bufferedFile[A]) maybeShortReadAt(dat []byte, off A) (n int, err error) {
	offsetWithinBlock := off % bf.blockSize
	blockOffset := off - offsetWithinBlock

	cachedBlock := bf.loadBlock(blockOffset)
	if offsetWithinBlock >= A(len(cachedBlock.Dat)) {
		if cachedBlock.Err == nil {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, cachedBlock.Err
	}
	n = copy(dat, cachedBlock.Dat[offsetWithinBlock:])
	if n < len(dat) && A(len(cachedBlock.Dat)) < bf.blockSize {
		return n, cachedBlock.Err
	}
	return n, nil
}

func (bf *bufferedFile[A]) invalidate(off, n A) {
	for blockOffset := off - off%bf.blockSize; blockOffset < off+n; blockOffset += bf.blockSize {
		bf.blockCache.Remove(blockOffset)
	}
}

func (bf *bufferedFile[A]) WriteAt(dat []byte, off A) (n int, err error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	n, err = bf.inner.WriteAt(dat, off)
	bf.invalidate(off, A(len(dat)))
	return n, err
}

func (bf *bufferedFile[A]) Discard(off, n A) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	err := Discard(bf.inner, off, n)
	bf.invalidate(off, n)
	return err
}
