// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/dsm"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeid"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

// rangeListFlag collects "ATTR:LEN:LBA" ranges, in order.  Numbers
// may be written in any base that strconv accepts with a prefix.
type rangeListFlag struct {
	Ranges dsm.RangeSet
}

var _ pflag.Value = (*rangeListFlag)(nil)

// Type implements pflag.Value.
func (*rangeListFlag) Type() string { return "attr:len:lba" }

// Set implements pflag.Value.
func (f *rangeListFlag) Set(str string) error {
	parts := strings.Split(str, ":")
	if len(parts) != 3 {
		return fmt.Errorf("invalid range %q: expected ATTR:LEN:LBA", str)
	}
	attr, err := strconv.ParseUint(parts[0], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid range %q: attributes: %w", str, err)
	}
	length, err := strconv.ParseUint(parts[1], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid range %q: length: %w", str, err)
	}
	lba, err := strconv.ParseUint(parts[2], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid range %q: lba: %w", str, err)
	}
	return f.Ranges.Append(dsm.Range{
		ContextAttributes: uint32(attr),
		Length:            uint32(length),
		StartingLBA:       nvmeprim.LBA(lba),
	})
}

// String implements pflag.Value.
func (f *rangeListFlag) String() string {
	parts := make([]string, 0, f.Ranges.Len())
	for _, r := range f.Ranges.Ranges() {
		parts = append(parts, fmt.Sprintf("%#x:%d:%#x", r.ContextAttributes, r.Length, uint64(r.StartingLBA)))
	}
	return strings.Join(parts, ",")
}

type cnsFlag struct {
	CNS nvmeid.CNS
}

var _ pflag.Value = (*cnsFlag)(nil)

// Type implements pflag.Value.
func (*cnsFlag) Type() string { return "cns" }

// Set implements pflag.Value.
func (f *cnsFlag) Set(str string) error {
	switch str {
	case nvmeid.CNSNamespace.String():
		f.CNS = nvmeid.CNSNamespace
	case nvmeid.CNSZonedNamespace.String():
		f.CNS = nvmeid.CNSZonedNamespace
	default:
		n, err := strconv.ParseUint(str, 0, 8)
		if err != nil {
			return fmt.Errorf("invalid CNS %q", str)
		}
		if cns := nvmeid.CNS(n); cns != nvmeid.CNSNamespace && cns != nvmeid.CNSZonedNamespace {
			return fmt.Errorf("CNS %v is not supported", cns)
		}
		f.CNS = nvmeid.CNS(n)
	}
	return nil
}

// String implements pflag.Value.
func (f *cnsFlag) String() string { return f.CNS.String() }
