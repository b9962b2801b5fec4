// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package nvmeid decodes the Identify data structures that describe
// a namespace's geometry.
package nvmeid

import (
	"fmt"

	"git.lukeshu.com/nvmeconf-ng/lib/binstruct"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

// Size is the size of every Identify data structure.
const Size = 0x1000

// CNS is the Controller or Namespace Structure selector of an
// Identify command.
type CNS uint8

const (
	CNSNamespace       = CNS(0x00)
	CNSController      = CNS(0x01)
	CNSZonedNamespace  = CNS(0x05) // with CSI=02h
	CNSZonedController = CNS(0x06) // with CSI=02h
)

func (c CNS) String() string {
	switch c {
	case CNSNamespace:
		return "namespace"
	case CNSController:
		return "controller"
	case CNSZonedNamespace:
		return "zoned-namespace"
	case CNSZonedController:
		return "zoned-controller"
	default:
		return fmt.Sprintf("CNS(%#02x)", uint8(c))
	}
}

func decode(buf []byte, dst any) error {
	if _, err := binstruct.UnmarshalAt(buf, 0, dst); err != nil {
		return fmt.Errorf("nvmeid: %w: %v", nvmeprim.ErrDecode, err)
	}
	return nil
}

// Encode serializes an identify structure into a fresh Size-byte
// buffer.
func Encode(obj any) ([]byte, error) {
	buf := make([]byte, Size)
	if err := binstruct.MarshalAt(buf, 0, obj); err != nil {
		return nil, err
	}
	return buf, nil
}
