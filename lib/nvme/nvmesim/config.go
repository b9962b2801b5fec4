// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvmesim

import (
	"errors"
	"fmt"

	"git.lukeshu.com/nvmeconf-ng/lib/containers"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
)

// Config describes the namespace to simulate.
type Config struct {
	NSID      nvmeprim.NSID     `json:"nsid"`
	BlockSize uint32            `json:"block_size"` // 512 or 4096
	Capacity  nvmeprim.LBACount `json:"capacity"`   // in blocks

	// Opcodes overrides the set of supported I/O commands.
	Opcodes containers.Set[nvmeprim.Opcode] `json:"opcodes"`

	Zoned        bool              `json:"zoned"`
	ZoneSize     nvmeprim.LBACount `json:"zone_size"`
	ZoneCapacity nvmeprim.LBACount `json:"zone_capacity"`
	MaxOpen      int               `json:"max_open"`   // 0 for no limit
	MaxActive    int               `json:"max_active"` // 0 for no limit
	// Policy is the zone state machine that the controller
	// follows.
	Policy containers.Optional[zns.Policy] `json:"policy"`
}

// Conventional returns the configuration of a plain namespace with
// 512-byte blocks.
func Conventional(nsid nvmeprim.NSID, capacity nvmeprim.LBACount) Config {
	return Config{
		NSID:      nsid,
		BlockSize: 512,
		Capacity:  capacity,
	}
}

// Zoned returns the configuration of a zoned namespace with 4KiB
// blocks and numZones zones.
func Zoned(nsid nvmeprim.NSID, numZones int, zoneSize, zoneCap nvmeprim.LBACount) Config {
	return Config{
		NSID:         nsid,
		BlockSize:    4096,
		Capacity:     zoneSize * nvmeprim.LBACount(numZones),
		Zoned:        true,
		ZoneSize:     zoneSize,
		ZoneCapacity: zoneCap,
	}
}

func (cfg Config) defaultOpcodes() containers.Set[nvmeprim.Opcode] {
	ret := containers.Set[nvmeprim.Opcode]{}
	ret.Insert(nvmeprim.OpcodeFlush)
	ret.Insert(nvmeprim.OpcodeRead)
	ret.Insert(nvmeprim.OpcodeWrite)
	if cfg.Zoned {
		ret.Insert(nvmeprim.OpcodeZoneManagementSend)
		ret.Insert(nvmeprim.OpcodeZoneManagementReceive)
	} else {
		ret.Insert(nvmeprim.OpcodeDatasetManagement)
	}
	return ret
}

func (cfg Config) Validate() error {
	if cfg.NSID == 0 || cfg.NSID == 0xffffffff {
		return fmt.Errorf("invalid nsid %d", cfg.NSID)
	}
	if cfg.BlockSize != 512 && cfg.BlockSize != 4096 {
		return fmt.Errorf("block_size must be 512 or 4096, not %d", cfg.BlockSize)
	}
	if cfg.Capacity == 0 {
		return errors.New("capacity must be nonzero")
	}
	if !cfg.Zoned {
		return nil
	}
	switch {
	case cfg.ZoneSize == 0:
		return errors.New("zone_size must be nonzero")
	case cfg.Capacity%cfg.ZoneSize != 0:
		return fmt.Errorf("capacity %v is not a multiple of zone_size %v", cfg.Capacity, cfg.ZoneSize)
	case cfg.ZoneCapacity == 0 || cfg.ZoneCapacity > cfg.ZoneSize:
		return fmt.Errorf("zone_capacity %v not in (0, zone_size=%v]", cfg.ZoneCapacity, cfg.ZoneSize)
	case cfg.MaxOpen < 0 || cfg.MaxActive < 0:
		return errors.New("zone resource limits must not be negative")
	case cfg.MaxActive > 0 && cfg.MaxOpen > cfg.MaxActive:
		return fmt.Errorf("max_open %d exceeds max_active %d", cfg.MaxOpen, cfg.MaxActive)
	}
	return nil
}
