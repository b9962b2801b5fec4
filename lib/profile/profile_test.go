// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package profile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/nvmeconf-ng/lib/profile"
)

func TestProfileFlags(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	stop := profile.AddProfileFlags(flags, "pprof.")
	for _, name := range []string{"cpu", "trace", "goroutine", "heap", "allocs", "block", "mutex", "threadcreate"} {
		assert.NotNil(t, flags.Lookup("pprof."+name), name)
	}

	heap := filepath.Join(dir, "heap.pprof")
	require.NoError(t, flags.Parse([]string{"--pprof.heap=" + heap}))
	require.NoError(t, stop())

	fi, err := os.Stat(heap)
	require.NoError(t, err)
	assert.NotZero(t, fi.Size())

	// Stopping again does nothing.
	assert.NoError(t, stop())
}

func TestUnknownProfile(t *testing.T) {
	t.Parallel()
	_, err := profile.Profile(nil, "no-such-profile")
	assert.Error(t, err)
}
