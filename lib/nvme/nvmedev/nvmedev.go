// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package nvmedev is the boundary between the command models and
// whatever carries commands to a namespace.
package nvmedev

import (
	"context"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/dsm"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeid"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
)

// Namespace is one NVMe namespace reached through some transport.
//
// Each method submits one command and waits for its completion.  A
// command that completes with an error status returns a
// *nvmeprim.StatusError.  The caller must not touch buf while the
// command is outstanding.
type Namespace interface {
	ID() nvmeprim.NSID
	Supports(nvmeprim.Opcode) bool

	Identify(ctx context.Context, cns nvmeid.CNS, buf []byte) error

	Read(ctx context.Context, slba nvmeprim.LBA, nlb nvmeprim.LBACount, buf []byte) error
	Write(ctx context.Context, slba nvmeprim.LBA, nlb nvmeprim.LBACount, buf []byte) error

	// DatasetManagement sends the range list in buf, which
	// should be dsm.BufferSize bytes.
	DatasetManagement(ctx context.Context, cmd dsm.Command, buf []byte) error

	ZoneManagementSend(ctx context.Context, cmd zns.SendCommand) error
	// ZoneManagementReceive fills buf with a report; the size of
	// buf bounds how many descriptors are returned.
	ZoneManagementReceive(ctx context.Context, cmd zns.ReceiveCommand, buf []byte) error
}
