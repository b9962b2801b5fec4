// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package conformance is a suite of checks of how a namespace handles
// Dataset Management and Zoned Namespace commands.
package conformance

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"

	"git.lukeshu.com/nvmeconf-ng/lib/containers"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmedev"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeid"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
	"git.lukeshu.com/nvmeconf-ng/lib/znscheck"
)

var (
	// ErrSkip is returned by a check that does not apply to the
	// namespace.
	ErrSkip = errors.New("skipped")
	// ErrFailed is wrapped by every assertion failure.
	ErrFailed = errors.New("check failed")
)

func failf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFailed, fmt.Sprintf(format, args...))
}

// Env is everything a check may depend on.
type Env struct {
	Namespace nvmedev.Namespace
	// Policy is how the zone model treats actions that
	// controllers disagree on.
	Policy zns.Policy
	// Seed picks the zones that checks use when the zone does not
	// matter.
	Seed int64
	// Repeat overrides how many times repeated checks run.
	Repeat int

	id      nvmeid.Namespace
	geom    nvmedev.Geometry
	tracker *znscheck.Tracker
	bufs    containers.SlicePool[byte]
}

// Setup reads the namespace's identity; it must be called before
// any check runs.
func (env *Env) Setup(ctx context.Context) error {
	var err error
	env.id, err = nvmedev.IdentifyNamespace(ctx, env.Namespace)
	if err != nil {
		return fmt.Errorf("namespace %d: identify: %w", env.Namespace.ID(), err)
	}
	env.geom, err = nvmedev.Probe(ctx, env.Namespace)
	if err != nil {
		return fmt.Errorf("namespace %d: %w", env.Namespace.ID(), err)
	}
	if env.geom.Zoned {
		env.tracker, err = znscheck.NewTracker(env.Namespace, env.geom, env.Policy)
		if err != nil {
			return err
		}
	}
	return nil
}

func (env *Env) Geometry() nvmedev.Geometry { return env.geom }

func (env *Env) repeat(dflt int) int {
	if env.Repeat > 0 {
		return env.Repeat
	}
	return dflt
}

// randomZone picks a zone among the first 100 for the named check,
// the same one every run with the same seed.  It returns false if
// the namespace has no whole zones.
func (env *Env) randomZone(name string) (int, bool) {
	n := env.geom.NumZones()
	if n <= 0 {
		return 0, false
	}
	if n > 100 {
		n = 100
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	rnd := rand.New(rand.NewSource(env.Seed ^ int64(h.Sum64())))
	return rnd.Intn(n), true
}

// getBuf returns a buffer for nlb blocks; its contents are
// unspecified.
func (env *Env) getBuf(nlb nvmeprim.LBACount) []byte {
	return env.bufs.Get(int(nlb.Bytes(env.geom.BlockSize)))
}

func (env *Env) putBuf(buf []byte) {
	env.bufs.Put(buf)
}

func (env *Env) zone(ctx context.Context, i int) (*znscheck.TrackedZone, error) {
	return env.tracker.ZoneIndex(ctx, i)
}
