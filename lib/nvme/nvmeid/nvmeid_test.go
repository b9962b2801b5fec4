// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvmeid_test

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/nvmeconf-ng/lib/binstruct"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeid"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

func TestSizes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, nvmeid.Size, binstruct.StaticSize(nvmeid.Namespace{}))
	assert.Equal(t, nvmeid.Size, binstruct.StaticSize(nvmeid.ZonedNamespace{}))
	assert.Equal(t, 4, binstruct.StaticSize(nvmeid.LBAFormat{}))
	assert.Equal(t, 16, binstruct.StaticSize(nvmeid.ZoneFormat{}))
}

func TestDecodeNamespace(t *testing.T) {
	t.Parallel()
	buf := make([]byte, nvmeid.Size)
	binary.LittleEndian.PutUint64(buf[0x0:], 0x1000000)
	binary.LittleEndian.PutUint64(buf[0x8:], 0xF00000)
	binary.LittleEndian.PutUint64(buf[0x10:], 0x1234)
	buf[0x19] = 1    // two formats
	buf[0x1a] = 0x01 // using format 1
	buf[0x80+2] = 9  // format 0: 512B
	buf[0x84+2] = 12 // format 1: 4KiB
	binary.LittleEndian.PutUint16(buf[0x84:], 8)

	ns, err := nvmeid.DecodeNamespace(buf)
	require.NoError(t, err)
	assert.Equal(t, nvmeprim.LBACount(0x1000000), ns.Size)
	assert.Equal(t, nvmeprim.LBACount(0xF00000), ns.Capacity)
	assert.Equal(t, nvmeprim.LBACount(0x1234), ns.Util)
	assert.Equal(t, 1, ns.FormatIndex())
	assert.Equal(t, uint32(4096), ns.BlockSize())
	assert.Equal(t, uint16(8), ns.Format().MetadataSize)
	assert.Equal(t, uint32(512), ns.LBAFormats[0].BlockSize())
	assert.Equal(t, uint32(0), ns.LBAFormats[2].BlockSize())
	assert.False(t, ns.ExtendedMetadata())

	back, err := nvmeid.Encode(ns)
	require.NoError(t, err)
	assert.Equal(t, buf, back)

	_, err = nvmeid.DecodeNamespace(buf[:nvmeid.Size-1])
	assert.ErrorIs(t, err, nvmeprim.ErrDecode)
}

func TestDecodeZonedNamespace(t *testing.T) {
	t.Parallel()
	buf := make([]byte, nvmeid.Size)
	binary.LittleEndian.PutUint32(buf[0x4:], 13)
	binary.LittleEndian.PutUint32(buf[0x8:], 0xffffffff)
	binary.LittleEndian.PutUint64(buf[0xe00+0x10:], 0x8000)

	zn, err := nvmeid.DecodeZonedNamespace(buf)
	require.NoError(t, err)
	n, ok := zn.ActiveLimit()
	assert.True(t, ok)
	assert.Equal(t, 14, n)
	_, ok = zn.OpenLimit()
	assert.False(t, ok)
	assert.Equal(t, nvmeprim.LBACount(0x8000), zn.ZoneSize(1))
	assert.Equal(t, nvmeprim.LBACount(0), zn.ZoneSize(0))
	assert.Equal(t, nvmeprim.LBACount(0), zn.ZoneSize(99))

	zn.SetLimits(14, 0)
	assert.Equal(t, uint32(13), zn.MaxOpen)
	assert.Equal(t, uint32(nvmeid.NoLimit), zn.MaxActive)
}

func TestCNSString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "zoned-namespace", nvmeid.CNSZonedNamespace.String())
	assert.Equal(t, "CNS(0x10)", nvmeid.CNS(0x10).String())
}

func TestIdentifiers(t *testing.T) {
	t.Parallel()
	var id nvmeid.NGUID
	assert.True(t, id.IsZero())
	id[0] = 0xab
	id[15] = 0x01
	assert.Equal(t, "ab000000000000000000000000000001", id.String())
	assert.Equal(t, "ab000000000000000000000000000001", fmt.Sprintf("%v", id))
	assert.Equal(t, "nvmeid.NGUID{0xab, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x1}", fmt.Sprintf("%#v", id))

	var eui nvmeid.EUI64
	require.NoError(t, eui.UnmarshalText([]byte("0011223344556677")))
	assert.Equal(t, nvmeid.EUI64{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}, eui)
	assert.Error(t, eui.UnmarshalText([]byte("0011")))
}
