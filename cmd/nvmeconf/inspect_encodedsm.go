// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/dsm"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

func init() {
	var (
		rangesFlag rangeListFlag
		nsidFlag   uint32
		outputFlag string
	)
	cmd := subcommand{
		Command: cobra.Command{
			Use:   "encode-dsm --range=ATTR:LEN:LBA...",
			Short: "Build the range buffer of a Dataset Management deallocate command",
			Long: "" +
				"The buffer is written to --output (stdout by default), and " +
				"the command dwords that go with it are logged.",
			Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			if rangesFlag.Ranges.Len() == 0 {
				return errors.New("at least one --range is required")
			}
			dsmCmd := dsm.Deallocate(nvmeprim.NSID(nsidFlag), rangesFlag.Ranges.Len())
			cdw10, err := dsmCmd.CDW10()
			if err != nil {
				return err
			}
			dlog.Infof(ctx, "nsid=%v cdw10=%#08x cdw11=%#08x", dsmCmd.NSID, cdw10, dsmCmd.CDW11())
			for i, r := range rangesFlag.Ranges.Ranges() {
				dlog.Debugf(ctx, "range[%d] = %v", i, r)
			}

			out := os.Stdout
			if outputFlag != "" && outputFlag != "-" {
				out, err = os.Create(outputFlag)
				if err != nil {
					return err
				}
				defer func() {
					if _err := out.Close(); _err != nil && err == nil {
						err = _err
					}
				}()
			}
			_, err = out.Write(dsm.Encode(&rangesFlag.Ranges))
			return err
		},
	}
	cmd.Flags().Var(&rangesFlag, "range", "add a range to the command (may be given up to 256 times)")
	cmd.Flags().Uint32Var(&nsidFlag, "nsid", 1, "namespace ID to put in the command")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "write the buffer to `file` instead of stdout")
	if err := cmd.MarkFlagFilename("output"); err != nil {
		panic(err)
	}
	inspectors = append(inspectors, cmd)
}
