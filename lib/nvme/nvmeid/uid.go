// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvmeid

import (
	"encoding"
	"encoding/hex"
	"fmt"

	"git.lukeshu.com/nvmeconf-ng/lib/fmtutil"
)

// NGUID is a Namespace Globally Unique Identifier.
type NGUID [16]byte

// EUI64 is an IEEE Extended Unique Identifier.
type EUI64 [8]byte

var (
	_ fmt.Stringer             = NGUID{}
	_ fmt.Formatter            = NGUID{}
	_ encoding.TextMarshaler   = NGUID{}
	_ encoding.TextUnmarshaler = (*NGUID)(nil)
	_ fmt.Stringer             = EUI64{}
	_ fmt.Formatter            = EUI64{}
	_ encoding.TextMarshaler   = EUI64{}
	_ encoding.TextUnmarshaler = (*EUI64)(nil)
)

func (id NGUID) String() string { return hex.EncodeToString(id[:]) }
func (id EUI64) String() string { return hex.EncodeToString(id[:]) }

func (id NGUID) Format(f fmt.State, verb rune) { fmtutil.FormatByteArrayStringer(id, id[:], f, verb) }
func (id EUI64) Format(f fmt.State, verb rune) { fmtutil.FormatByteArrayStringer(id, id[:], f, verb) }

func (id NGUID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id EUI64) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func unmarshalHex(dst, text []byte) error {
	if hex.DecodedLen(len(text)) != len(dst) {
		return fmt.Errorf("expected %d hex digits, got %d", 2*len(dst), len(text))
	}
	_, err := hex.Decode(dst, text)
	return err
}

func (id *NGUID) UnmarshalText(text []byte) error { return unmarshalHex(id[:], text) }
func (id *EUI64) UnmarshalText(text []byte) error { return unmarshalHex(id[:], text) }

// IsZero reports whether the identifier is unset.
func (id NGUID) IsZero() bool { return id == NGUID{} }

// IsZero reports whether the identifier is unset.
func (id EUI64) IsZero() bool { return id == EUI64{} }
