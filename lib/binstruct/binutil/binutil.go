// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package binutil provides utilities for implementing the interfaces
// consumed by binstruct.
package binutil

import (
	"fmt"
)

func NeedNBytes(dat []byte, n int) error {
	if len(dat) < n {
		return fmt.Errorf("need at least %v bytes, only have %v", n, len(dat))
	}
	return nil
}

// NeedRecord checks that a buffer holds a whole fixed-size record of
// `size` bytes starting at byte offset `off`.
func NeedRecord(dat []byte, off, size int) error {
	if off < 0 {
		return fmt.Errorf("negative offset %#x", off)
	}
	if len(dat) < off+size {
		return fmt.Errorf("record at %#x needs %v bytes, buffer is only %v bytes", off, size, len(dat))
	}
	return nil
}
