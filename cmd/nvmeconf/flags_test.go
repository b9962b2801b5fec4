// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/dsm"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeid"
)

func TestRangeListFlag(t *testing.T) {
	t.Parallel()
	var f rangeListFlag
	require.NoError(t, f.Set("0:8:0x100"))
	require.NoError(t, f.Set("0x1:0x10:4096"))
	assert.Equal(t, []dsm.Range{
		{ContextAttributes: 0, Length: 8, StartingLBA: 0x100},
		{ContextAttributes: 1, Length: 16, StartingLBA: 4096},
	}, f.Ranges.Ranges())
	assert.Equal(t, "0x0:8:0x100,0x1:16:0x1000", f.String())

	for _, bad := range []string{"", "1:2", "1:2:3:4", "x:1:1", "0:0x100000000:0", "0:1:-1"} {
		assert.Error(t, f.Set(bad), bad)
	}
	assert.Equal(t, 2, f.Ranges.Len())
}

func TestRangeListFlagFull(t *testing.T) {
	t.Parallel()
	var f rangeListFlag
	for i := 0; i < dsm.MaxRanges; i++ {
		require.NoError(t, f.Set("0:1:0"))
	}
	assert.Error(t, f.Set("0:1:0"))
}

func TestCNSFlag(t *testing.T) {
	t.Parallel()
	type TestCase struct {
		In     string
		Out    nvmeid.CNS
		ExpErr bool
	}
	testcases := map[string]TestCase{
		"name":       {In: "namespace", Out: nvmeid.CNSNamespace},
		"zoned-name": {In: "zoned-namespace", Out: nvmeid.CNSZonedNamespace},
		"number":     {In: "5", Out: nvmeid.CNSZonedNamespace},
		"hex":        {In: "0x0", Out: nvmeid.CNSNamespace},
		"controller": {In: "controller", ExpErr: true},
		"unsupp":     {In: "1", ExpErr: true},
		"garbage":    {In: "ns", ExpErr: true},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			f := cnsFlag{CNS: 0xff}
			err := f.Set(tc.In)
			if tc.ExpErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.Out, f.CNS)
		})
	}
}

func TestSelectChecks(t *testing.T) {
	t.Parallel()
	all, err := selectChecks(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	dsmChecks, err := selectChecks([]string{"dsm"})
	require.NoError(t, err)
	assert.Len(t, dsmChecks, 6)

	both, err := selectChecks([]string{"dsm/", "dsm/out-of-range", "zns/identify"})
	require.NoError(t, err)
	assert.Len(t, both, 7)

	_, err = selectChecks([]string{"nope"})
	assert.Error(t, err)
}
