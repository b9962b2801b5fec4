// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package dsm_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/dsm"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

func TestEncodeThreeRanges(t *testing.T) {
	t.Parallel()
	var rs dsm.RangeSet
	require.NoError(t, rs.Append(dsm.Range{Length: 1, StartingLBA: 1}))
	require.NoError(t, rs.Append(dsm.Range{Length: 1, StartingLBA: 2}))
	require.NoError(t, rs.Append(dsm.Range{Length: 1, StartingLBA: 3}))

	buf := dsm.Encode(&rs)
	require.Len(t, buf, dsm.BufferSize)
	for i, lba := range []uint64{1, 2, 3} {
		rec := buf[16*i : 16*i+16]
		assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(rec[0:4]), "range %d attr", i)
		assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(rec[4:8]), "range %d len", i)
		assert.Equal(t, lba, binary.LittleEndian.Uint64(rec[8:16]), "range %d lba", i)
	}
	assert.Equal(t, make([]byte, dsm.BufferSize-48), buf[48:])
}

func TestEncodeFieldOrder(t *testing.T) {
	t.Parallel()
	var rs dsm.RangeSet
	require.NoError(t, rs.Set(1, dsm.Range{
		ContextAttributes: 0x04030201,
		Length:            0x08070605,
		StartingLBA:       0x100f0e0d0c0b0a09,
	}))
	buf := dsm.Encode(&rs)
	assert.Equal(t, make([]byte, 16), buf[:16], "gap slot is zero")
	assert.Equal(t, []byte{
		0x01, 0x02, 0x03, 0x04,
		0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	}, buf[16:32])
	assert.Equal(t, 2, rs.Len())
}

func TestCapacity(t *testing.T) {
	t.Parallel()
	var rs dsm.RangeSet
	for i := 0; i < dsm.MaxRanges; i++ {
		require.NoError(t, rs.SetDeallocate(i, nvmeprim.LBA(i), 1))
	}
	assert.Equal(t, 256, rs.Len())

	err := rs.SetDeallocate(256, 256, 1)
	assert.ErrorIs(t, err, nvmeprim.ErrCapacityExceeded)
	var ie *dsm.IndexError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 256, ie.Index)
	assert.ErrorIs(t, rs.Append(dsm.Range{Length: 1}), nvmeprim.ErrCapacityExceeded)
	assert.Equal(t, 256, rs.Len(), "failed append must not change the set")

	assert.Error(t, rs.Set(-1, dsm.Range{}))
}

func TestCapacityIndependentOfContent(t *testing.T) {
	t.Parallel()
	for _, prefill := range []int{0, 1, 17, 255, 256} {
		var rs dsm.RangeSet
		for i := 0; i < prefill; i++ {
			require.NoError(t, rs.Append(dsm.Range{Length: uint32(i + 1), StartingLBA: nvmeprim.LBA(i * 7)}))
		}
		assert.ErrorIs(t, rs.Set(256, dsm.Range{Length: 1}), nvmeprim.ErrCapacityExceeded, "prefill=%d", prefill)
	}
}

func TestEncodeDoesNotAlias(t *testing.T) {
	t.Parallel()
	var rs dsm.RangeSet
	require.NoError(t, rs.SetDeallocate(0, 10, 1))
	buf := dsm.Encode(&rs)
	require.NoError(t, rs.SetDeallocate(0, 20, 1))
	assert.Equal(t, uint64(10), binary.LittleEndian.Uint64(buf[8:16]))
}

func TestDecodeShortBuffer(t *testing.T) {
	t.Parallel()
	_, err := dsm.Decode(make([]byte, 40), 3)
	assert.ErrorIs(t, err, nvmeprim.ErrDecode)
	_, err = dsm.Decode(make([]byte, dsm.BufferSize), 257)
	assert.ErrorIs(t, err, nvmeprim.ErrCapacityExceeded)
}

func FuzzRoundTrip(f *testing.F) {
	f.Add(uint8(1), uint32(0), uint32(1), uint64(1))
	f.Add(uint8(0), uint32(0xffffffff), uint32(0xffffffff), uint64(0xffffffffffffffff))
	f.Add(uint8(255), uint32(7), uint32(0x18), uint64(0x8000))
	f.Fuzz(func(t *testing.T, k uint8, attr, length uint32, lba uint64) {
		n := int(k) + 1
		var rs dsm.RangeSet
		for i := 0; i < n; i++ {
			require.NoError(t, rs.Append(dsm.Range{
				ContextAttributes: attr ^ uint32(i),
				Length:            length + uint32(i),
				StartingLBA:       nvmeprim.LBA(lba + uint64(i)),
			}))
		}
		back, err := dsm.Decode(dsm.Encode(&rs), n)
		require.NoError(t, err)
		assert.Equal(t, rs.Ranges(), back.Ranges())
	})
}

func TestCommand(t *testing.T) {
	t.Parallel()
	cmd := dsm.Deallocate(1, 256)
	cdw10, err := cmd.CDW10()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xff), cdw10)
	assert.Equal(t, uint32(0x4), cmd.CDW11())
	assert.Equal(t, "AD", cmd.Attributes.String())
	assert.Equal(t, cmd, dsm.ParseCDW(1, cdw10, cmd.CDW11()))

	cmd = dsm.Deallocate(1, 1)
	cdw10, err = cmd.CDW10()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), cdw10)

	_, err = dsm.Deallocate(1, 257).CDW10()
	assert.ErrorIs(t, err, nvmeprim.ErrCapacityExceeded)

	_, err = dsm.Deallocate(1, 0).CDW10()
	var ece *dsm.EntryCountError
	assert.ErrorAs(t, err, &ece)
	assert.False(t, errors.Is(err, nvmeprim.ErrCapacityExceeded))
}
