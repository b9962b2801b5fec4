// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmesim"
)

func TestRunNamespaceBacked(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()
	checks, err := selectChecks([]string{"dsm"})
	require.NoError(t, err)

	nsCfg := nvmesim.Conventional(3, 0x100000)
	results, err := runNamespace(ctx, defaultRunConfig(), nsCfg, dir, checks)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(results), len(checks))
	for _, res := range results {
		assert.Equal(t, "PASS", res.Outcome, res.Name)
		assert.Equal(t, uint32(3), res.Namespace)
	}

	fi, err := os.Stat(filepath.Join(dir, "ns3.img"))
	require.NoError(t, err)
	assert.Equal(t, nsCfg.Capacity.Bytes(nsCfg.BlockSize), fi.Size())
}

func TestRunNamespaceInvalid(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()
	checks, err := selectChecks(nil)
	require.NoError(t, err)

	bad := nvmesim.Zoned(4, 2, 0x100, 0x200) // capacity larger than the zone
	_, err = runNamespace(ctx, defaultRunConfig(), bad, dir, checks)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, errChecksFailed))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
