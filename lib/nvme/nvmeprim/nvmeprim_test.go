// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvmeprim_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

func TestLBAFormat(t *testing.T) {
	t.Parallel()
	type TestCase struct {
		InputFmt string
		Output   string
	}
	addr := nvmeprim.LBA(0x8018)
	testcases := map[string]TestCase{
		"v": {InputFmt: "%v", Output: "0x8018"},
		"s": {InputFmt: "%s", Output: "0x8018"},
		"q": {InputFmt: "%q", Output: `"0x8018"`},
		"x": {InputFmt: "%x", Output: "8018"},
		"d": {InputFmt: "%d", Output: "32792"},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.Output, fmt.Sprintf(tc.InputFmt, addr))
		})
	}
}

func TestLBAArithmetic(t *testing.T) {
	t.Parallel()
	start := nvmeprim.LBA(0x8000)
	assert.Equal(t, nvmeprim.LBA(0x8018), start.Add(0x18))
	assert.Equal(t, nvmeprim.LBACount(0x18), nvmeprim.LBA(0x8018).Sub(start))
	assert.Equal(t, int64(96*1024), nvmeprim.LBACount(24).Bytes(4096))
}

func TestStatus(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "00/80", nvmeprim.StatusLBAOutOfRange.String())
	assert.Equal(t, "01/b9", nvmeprim.StatusZoneIsFull.String())
	assert.Equal(t, nvmeprim.SCTCommandSpecific, nvmeprim.StatusZoneIsFull.SCT())
	assert.Equal(t, uint8(0xB9), nvmeprim.StatusZoneIsFull.SC())
	assert.True(t, nvmeprim.StatusSuccess.OK())
	assert.Equal(t, "LBA Out of Range", nvmeprim.StatusLBAOutOfRange.Name())
	assert.Equal(t, "unknown status", nvmeprim.MkStatus(nvmeprim.SCTVendorSpecific, 0x12).Name())
}

func TestStatusError(t *testing.T) {
	t.Parallel()
	var err error = &nvmeprim.StatusError{
		Opcode: nvmeprim.OpcodeDatasetManagement,
		Status: nvmeprim.StatusLBAOutOfRange,
	}
	err = fmt.Errorf("deallocate: %w", err)
	assert.Equal(t, "deallocate: dsm: ERROR status: 00/80 (LBA Out of Range)", err.Error())
	assert.True(t, errors.Is(err, &nvmeprim.StatusError{Status: nvmeprim.StatusLBAOutOfRange}))
	assert.False(t, errors.Is(err, &nvmeprim.StatusError{Status: nvmeprim.StatusZoneIsFull}))
	assert.False(t, errors.Is(err, &nvmeprim.StatusError{
		Opcode: nvmeprim.OpcodeWrite,
		Status: nvmeprim.StatusLBAOutOfRange,
	}))

	status, ok := nvmeprim.AsStatus(err)
	assert.True(t, ok)
	assert.Equal(t, nvmeprim.StatusLBAOutOfRange, status)

	_, ok = nvmeprim.AsStatus(errors.New("link down"))
	assert.False(t, ok)
}
