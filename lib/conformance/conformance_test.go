// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package conformance_test

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/nvmeconf-ng/lib/conformance"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeid"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmesim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
)

func checkNames(t *testing.T, prefix string) []*conformance.Check {
	t.Helper()
	var ret []*conformance.Check
	for _, c := range conformance.Checks() {
		if strings.HasPrefix(c.Name, prefix) {
			ret = append(ret, c)
		}
	}
	require.NotEmpty(t, ret)
	return ret
}

func TestChecksRegistered(t *testing.T) {
	t.Parallel()
	var names []string
	for _, c := range conformance.Checks() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{
		"dsm/correct-range",
		"dsm/deallocate-and-read",
		"dsm/deallocate-and-write",
		"dsm/multiple-range",
		"dsm/nr-maximum",
		"dsm/out-of-range",
		"zns/identify",
		"zns/management-receive",
		"zns/management-send",
		"zns/state-machine",
		"zns/write-1",
		"zns/write-192k",
		"zns/write-2",
		"zns/write-full-zone",
		"zns/write-implicitly-open",
		"zns/write-twice",
	}, names)

	c, ok := conformance.Lookup("zns/state-machine")
	require.True(t, ok)
	assert.Equal(t, "zns/state-machine", c.Name)
}

func TestConventional(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns, err := nvmesim.New(nvmesim.Conventional(1, 0x100000), nil)
	require.NoError(t, err)
	env := &conformance.Env{Namespace: ns, Repeat: 4}
	require.NoError(t, env.Setup(ctx))

	report, err := conformance.Run(ctx, env, conformance.Checks())
	require.NoError(t, err)
	assert.NoError(t, report.Err())
	assert.Equal(t, 0, report.Count(conformance.Fail))
	// 4+4 repeated instances and 4 single ones.
	assert.Equal(t, 12, report.Count(conformance.Pass))
	// Every zns check is skipped, once.
	assert.Equal(t, 10, report.Count(conformance.Skip))
}

func TestZoned(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	cfg := nvmesim.Zoned(1, 128, 0x8000, 0x4800)
	cfg.MaxOpen = 14
	cfg.MaxActive = 14
	ns, err := nvmesim.New(cfg, nil)
	require.NoError(t, err)
	env := &conformance.Env{
		Namespace: ns,
		Policy:    zns.ControllerPolicy,
		Seed:      1,
		Repeat:    2,
	}
	require.NoError(t, env.Setup(ctx))
	assert.Equal(t, 128, env.Geometry().NumZones())

	report, err := conformance.Run(ctx, env, checkNames(t, "zns/"))
	require.NoError(t, err)
	assert.NoError(t, report.Err())
	assert.Equal(t, 0, report.Count(conformance.Fail))

	report, err = conformance.Run(ctx, env, checkNames(t, "dsm/"))
	require.NoError(t, err)
	assert.Equal(t, 6, report.Count(conformance.Skip))
}

// partialZone reports a capacity that ends inside the first zone.
type partialZone struct {
	*nvmesim.Namespace
	ncap nvmeprim.LBACount
}

func (ns partialZone) Identify(ctx context.Context, cns nvmeid.CNS, buf []byte) error {
	if err := ns.Namespace.Identify(ctx, cns, buf); err != nil {
		return err
	}
	if cns == nvmeid.CNSNamespace {
		binary.LittleEndian.PutUint64(buf[0x8:], uint64(ns.ncap))
	}
	return nil
}

func TestNoWholeZones(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	sim, err := nvmesim.New(nvmesim.Zoned(1, 4, 0x100, 0x80), nil)
	require.NoError(t, err)
	env := &conformance.Env{
		Namespace: partialZone{Namespace: sim, ncap: 0x80},
		Policy:    zns.ControllerPolicy,
		Seed:      7,
	}
	require.NoError(t, env.Setup(ctx))
	require.Equal(t, 0, env.Geometry().NumZones())

	var checks []*conformance.Check
	for _, c := range checkNames(t, "zns/") {
		if c.Params != nil {
			checks = append(checks, c)
		}
	}
	require.Len(t, checks, 8)
	report, err := conformance.Run(ctx, env, checks)
	require.NoError(t, err)
	assert.Equal(t, 8, report.Count(conformance.Skip))
	assert.NoError(t, report.Err())
	for _, res := range report.Results {
		assert.ErrorIs(t, res.Err, conformance.ErrSkip, res.Name)
	}
}

func TestFailureIsReported(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns, err := nvmesim.New(nvmesim.Zoned(1, 4, 0x100, 0x80), nil)
	require.NoError(t, err)
	env := &conformance.Env{Namespace: ns, Policy: zns.ControllerPolicy}
	require.NoError(t, env.Setup(ctx))

	// The device ignores the first finish of zone 0.
	ns.InjectDroppedAction(0, zns.ActionFinish, 1)
	c, ok := conformance.Lookup("zns/management-send")
	require.True(t, ok)
	report, err := conformance.Run(ctx, env, []*conformance.Check{c})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, "zns/management-send[zone=0]", res.Name)
	assert.Equal(t, conformance.Fail, res.Outcome)
	assert.True(t, errors.Is(res.Err, nvmeprim.ErrModelDeviceDivergence), "err: %v", res.Err)
	assert.Error(t, report.Err())
}

func TestPanicIsFailure(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns, err := nvmesim.New(nvmesim.Conventional(1, 0x1000), nil)
	require.NoError(t, err)
	env := &conformance.Env{Namespace: ns}
	require.NoError(t, env.Setup(ctx))

	boom := &conformance.Check{
		Name: "boom",
		Fn: func(_ context.Context, _ *conformance.Env, _ conformance.Param) error {
			panic("boom")
		},
	}
	report, err := conformance.Run(ctx, env, []*conformance.Check{boom})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, conformance.Fail, report.Results[0].Outcome)
}
