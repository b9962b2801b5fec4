// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvmeprim

import (
	"fmt"
)

// Opcode is an NVM command set I/O opcode, or the one admin opcode
// that the command models issue.
type Opcode uint8

const (
	OpcodeFlush                 = Opcode(0x00)
	OpcodeWrite                 = Opcode(0x01)
	OpcodeRead                  = Opcode(0x02)
	OpcodeWriteZeroes           = Opcode(0x08)
	OpcodeDatasetManagement     = Opcode(0x09)
	OpcodeZoneManagementSend    = Opcode(0x79)
	OpcodeZoneManagementReceive = Opcode(0x7A)
	OpcodeZoneAppend            = Opcode(0x7D)

	// OpcodeIdentify is on the admin queue.
	OpcodeIdentify = Opcode(0x06)
)

func (op Opcode) String() string {
	names := map[Opcode]string{
		OpcodeFlush:                 "flush",
		OpcodeWrite:                 "write",
		OpcodeRead:                  "read",
		OpcodeWriteZeroes:           "write-zeroes",
		OpcodeDatasetManagement:     "dsm",
		OpcodeZoneManagementSend:    "zns-mgmt-send",
		OpcodeZoneManagementReceive: "zns-mgmt-receive",
		OpcodeZoneAppend:            "zone-append",
		OpcodeIdentify:              "identify",
	}
	if name, ok := names[op]; ok {
		return name
	}
	return fmt.Sprintf("opcode(%#02x)", uint8(op))
}
