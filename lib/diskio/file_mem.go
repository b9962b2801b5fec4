// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"git.lukeshu.com/nvmeconf-ng/lib/textui"
)

// MemFile is a sparse in-memory File.  Only chunks that have been
// written hold memory; everything else reads as zeros.  It is safe
// for concurrent use.
type MemFile[A ~int64] struct {
	name      string
	size      A
	chunkSize A

	mu     sync.RWMutex
	chunks map[A][]byte
}

var (
	_ File[assertAddr]      = (*MemFile[assertAddr])(nil)
	_ Discarder[assertAddr] = (*MemFile[assertAddr])(nil)
)

func NewMemFile[A ~int64](name string, size A) *MemFile[A] {
	return &MemFile[A]{
		name:      name,
		size:      size,
		chunkSize: textui.Tunable(A(4096)),
		chunks:    make(map[A][]byte),
	}
}

func (f *MemFile[A]) Name() string { return f.name }
func (f *MemFile[A]) Size() A      { return f.size }
func (f *MemFile[A]) Close() error { return nil }

// Allocated returns the number of bytes of memory holding data.
func (f *MemFile[A]) Allocated() A {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return A(len(f.chunks)) * f.chunkSize
}

func (f *MemFile[A]) check(op string, off A, n int) (int, error) {
	if off < 0 || off > f.size {
		return 0, fmt.Errorf("%s %q: offset %v out of range [0, %v]", op, f.name, off, f.size)
	}
	if rest := f.size - off; A(n) > rest {
		return int(rest), io.EOF
	}
	return n, nil
}

func (f *MemFile[A]) ReadAt(dat []byte, off A) (int, error) {
	n, err := f.check("read", off, len(dat))
	if n == 0 {
		return 0, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for done := 0; done < n; {
		pos := off + A(done)
		chunkOff := pos - pos%f.chunkSize
		within := int(pos - chunkOff)
		end := done + int(f.chunkSize) - within
		if end > n {
			end = n
		}
		if chunk, ok := f.chunks[chunkOff]; ok {
			copy(dat[done:end], chunk[within:])
		} else {
			for i := range dat[done:end] {
				dat[done+i] = 0
			}
		}
		done = end
	}
	return n, err
}

func (f *MemFile[A]) WriteAt(dat []byte, off A) (int, error) {
	n, err := f.check("write", off, len(dat))
	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("write %q: %w", f.name, io.ErrShortWrite)
	}
	if n == 0 {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for done := 0; done < n; {
		pos := off + A(done)
		chunkOff := pos - pos%f.chunkSize
		within := int(pos - chunkOff)
		chunk, ok := f.chunks[chunkOff]
		if !ok {
			chunk = make([]byte, f.chunkSize)
			f.chunks[chunkOff] = chunk
		}
		done += copy(chunk[within:], dat[done:n])
	}
	return n, err
}

// Discard drops n bytes at off.  Whole chunks in the region are
// freed.
func (f *MemFile[A]) Discard(off, n A) error {
	if off < 0 || n < 0 || off+n > f.size {
		return fmt.Errorf("discard %q: region [%v, %v) out of range [0, %v)", f.name, off, off+n, f.size)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	end := off + n
	for pos := off; pos < end; {
		chunkOff := pos - pos%f.chunkSize
		chunkEnd := chunkOff + f.chunkSize
		if chunkEnd > end {
			chunkEnd = end
		}
		if chunk, ok := f.chunks[chunkOff]; ok {
			if pos == chunkOff && chunkEnd == chunkOff+f.chunkSize {
				delete(f.chunks, chunkOff)
			} else {
				for i := pos - chunkOff; i < chunkEnd-chunkOff; i++ {
					chunk[i] = 0
				}
			}
		}
		pos = chunkEnd
	}
	return nil
}
