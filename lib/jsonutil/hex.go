// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package jsonutil provides utilities for implementing the interfaces
// consumed by the "git.lukeshu.com/go/lowmemjson" package.
package jsonutil

import (
	"fmt"
	"io"
	"math"

	"git.lukeshu.com/go/lowmemjson"
)

// EncodeHexString writes str to w as a JSON string of lower-case hex
// digits.
func EncodeHexString[T ~[]byte | ~string](w io.Writer, str T) error {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 0, 2*len(str)+2)
	buf = append(buf, '"')
	for i := 0; i < len(str); i++ {
		buf = append(buf, hextable[str[i]>>4], hextable[str[i]&0x0f])
	}
	buf = append(buf, '"')
	_, err := w.Write(buf)
	return err
}

// DecodeHexString reads a JSON string of hex digits (of either case)
// and writes the bytes it encodes to dst.
func DecodeHexString(r io.RuneScanner, dst io.ByteWriter) error {
	dec := &hexDecoder{dst: dst}
	if err := lowmemjson.DecodeString(r, dec); err != nil {
		return err
	}
	if dec.half {
		return fmt.Errorf("jsonutil: odd number of hex digits: %w", io.ErrUnexpectedEOF)
	}
	return nil
}

type invalidHexRuneError rune

func (e invalidHexRuneError) Error() string {
	return fmt.Sprintf("jsonutil: invalid hex digit: %q", rune(e))
}

func unhex(r rune) (byte, bool) {
	if r > math.MaxUint8 {
		return 0, false
	}
	//nolint:gomnd // Hex conversion.
	switch c := byte(r); {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// hexDecoder is the io.RuneWriter that lowmemjson.DecodeString pushes
// the string's runes into.
type hexDecoder struct {
	dst io.ByteWriter

	hi   byte
	half bool
}

func (d *hexDecoder) WriteRune(r rune) (int, error) {
	v, ok := unhex(r)
	if !ok {
		return 0, invalidHexRuneError(r)
	}
	if !d.half {
		d.hi = v
		d.half = true
		return 1, nil
	}
	d.half = false
	return 1, d.dst.WriteByte(d.hi<<4 | v)
}
