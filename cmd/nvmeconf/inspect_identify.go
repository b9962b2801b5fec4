// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"

	"git.lukeshu.com/go/lowmemjson"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"git.lukeshu.com/nvmeconf-ng/lib/containers"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeid"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

type namespaceJSON struct {
	Size      nvmeprim.LBACount                 `json:"nsze"`
	Capacity  nvmeprim.LBACount                 `json:"ncap"`
	Util      nvmeprim.LBACount                 `json:"nuse"`
	BlockSize uint32                            `json:"block_size"`
	Format    int                               `json:"lba_format"`
	DLFEAT    uint8                             `json:"dlfeat"`
	NGUID     containers.Optional[nvmeid.NGUID] `json:"nguid"`
	EUI64     containers.Optional[nvmeid.EUI64] `json:"eui64"`
}

type zonedNamespaceJSON struct {
	ZoneSizes        []nvmeprim.LBACount      `json:"zone_sizes"`
	MaxOpen          containers.Optional[int] `json:"max_open"`
	MaxActive        containers.Optional[int] `json:"max_active"`
	VariableCapacity bool                     `json:"variable_capacity"`
}

func optionalLimit(n int, ok bool) containers.Optional[int] {
	if !ok {
		return containers.Optional[int]{}
	}
	return containers.Some(n)
}

func optionalID[T interface{ IsZero() bool }](id T) containers.Optional[T] {
	if id.IsZero() {
		return containers.Optional[T]{}
	}
	return containers.Some(id)
}

func init() {
	cns := cnsFlag{CNS: nvmeid.CNSNamespace}
	cmd := subcommand{
		Command: cobra.Command{
			Use:   "identify IDENTIFY.bin",
			Short: "Summarize an Identify data structure",
			Long: "" +
				"Give '-' to read the 4KiB structure from stdin.  --cns " +
				"selects which structure it is.",
			Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := readInput(args[0])
			if err != nil {
				return err
			}
			var out any
			switch cns.CNS {
			case nvmeid.CNSNamespace:
				id, err := nvmeid.DecodeNamespace(buf)
				if err != nil {
					return err
				}
				out = namespaceJSON{
					Size:      id.Size,
					Capacity:  id.Capacity,
					Util:      id.Util,
					BlockSize: id.BlockSize(),
					Format:    id.FormatIndex(),
					DLFEAT:    id.DeallocFeature,
					NGUID:     optionalID(id.NGUID),
					EUI64:     optionalID(id.EUI64),
				}
			case nvmeid.CNSZonedNamespace:
				id, err := nvmeid.DecodeZonedNamespace(buf)
				if err != nil {
					return err
				}
				zj := zonedNamespaceJSON{
					MaxOpen:          optionalLimit(id.OpenLimit()),
					MaxActive:        optionalLimit(id.ActiveLimit()),
					VariableCapacity: id.ZoneOpCaps&nvmeid.ZoneCapVariableCapacity != 0,
				}
				for i := range id.ZoneFormats {
					if sz := id.ZoneSize(i); sz != 0 {
						zj.ZoneSizes = append(zj.ZoneSizes, sz)
					}
				}
				out = zj
			}
			return writeJSONFile(os.Stdout, out, lowmemjson.ReEncoder{
				Indent:                "\t",
				ForceTrailingNewlines: true,
			})
		},
	}
	cmd.Flags().Var(&cns, "cns", "which Identify structure the file holds (namespace or zoned-namespace)")
	inspectors = append(inspectors, cmd)
}
