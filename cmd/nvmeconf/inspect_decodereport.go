// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"os"

	"git.lukeshu.com/go/lowmemjson"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"git.lukeshu.com/nvmeconf-ng/lib/jsonutil"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
)

type descriptorJSON struct {
	Index        int                             `json:"index"`
	Type         string                          `json:"type"`
	State        string                          `json:"state"`
	Attrs        string                          `json:"attrs"`
	StartLBA     nvmeprim.LBA                    `json:"zslba"`
	WritePointer nvmeprim.LBA                    `json:"wp"`
	Capacity     nvmeprim.LBACount               `json:"zcap"`
	Error        string                          `json:"error,omitempty"`
	Raw          jsonutil.Binary[zns.Descriptor] `json:"raw"`
}

type reportJSON struct {
	NumZones    uint64           `json:"nr_zones"`
	Descriptors []descriptorJSON `json:"descriptors"`
}

func init() {
	var spewFlag bool
	cmd := subcommand{
		Command: cobra.Command{
			Use:   "decode-report REPORT.bin",
			Short: "Decode a Zone Management Receive report buffer",
			Long: "" +
				"Descriptors of zones that are not sequential-write-required " +
				"are still printed, with an error.  Decoding stops at the " +
				"first descriptor that cannot be parsed at all.\n" +
				"\n" +
				"Give '-' to read the buffer from stdin.",
			Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			buf, err := readInput(args[0])
			if err != nil {
				return err
			}
			hdr, err := zns.DecodeHeader(buf)
			if err != nil {
				return err
			}
			n := (len(buf) - zns.HeaderSize) / zns.DescriptorSize
			if hdr.NumZones < uint64(n) {
				n = int(hdr.NumZones)
			} else if hdr.NumZones > uint64(n) {
				dlog.Infof(ctx, "report claims %d zones but only has room for %d (partial report?)", hdr.NumZones, n)
			}
			out := reportJSON{NumZones: hdr.NumZones}
			var descs []zns.Descriptor
			for i := 0; i < n; i++ {
				desc, err := zns.DecodeDescriptor(buf, i)
				var typeErr *zns.ZoneTypeError
				if err != nil && !errors.As(err, &typeErr) {
					return err
				}
				descs = append(descs, desc)
				dj := descriptorJSON{
					Index:        i,
					Type:         desc.Type.String(),
					State:        desc.State.String(),
					Attrs:        desc.Attrs.String(),
					StartLBA:     desc.StartLBA,
					WritePointer: desc.WritePointer,
					Capacity:     desc.Capacity,
					Raw:          jsonutil.Binary[zns.Descriptor]{Val: desc},
				}
				if err != nil {
					dlog.Errorf(ctx, "%v", err)
					dj.Error = err.Error()
				}
				out.Descriptors = append(out.Descriptors, dj)
			}
			if spewFlag {
				spew.Fdump(os.Stdout, hdr.NumZones, descs)
				return nil
			}
			return writeJSONFile(os.Stdout, out, lowmemjson.ReEncoder{
				Indent:                "\t",
				ForceTrailingNewlines: true,
			})
		},
	}
	cmd.Flags().BoolVar(&spewFlag, "spew", false, "dump the decoded Go structures instead of JSON")
	inspectors = append(inspectors, cmd)
}
