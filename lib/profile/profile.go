// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package profile implements a uniform interface for getting
// profiling information from the Go runtime.
package profile

import (
	"fmt"
	"io"
	"runtime/pprof"
	"runtime/trace"
)

type StopFunc = func() error

type startFunc = func(io.Writer) (StopFunc, error)

// CPU starts writing a CPU profile to w.
func CPU(w io.Writer) (StopFunc, error) {
	if err := pprof.StartCPUProfile(w); err != nil {
		return nil, err
	}
	return func() error {
		pprof.StopCPUProfile()
		return nil
	}, nil
}

var _ startFunc = CPU

// Profile arranges to write the named profile (see
// runtime/pprof.Lookup) to w at shutdown.  Unknown names are an
// error.
func Profile(w io.Writer, name string) (StopFunc, error) {
	prof := pprof.Lookup(name)
	if prof == nil {
		return nil, fmt.Errorf("no profile named %q", name)
	}
	return func() error {
		return prof.WriteTo(w, 0)
	}, nil
}

// The Go runtime's built-in named profiles.
const (
	ProfileGoroutine    = "goroutine"
	ProfileThreadCreate = "threadcreate"
	ProfileHeap         = "heap"
	ProfileAllocs       = "allocs"
	ProfileBlock        = "block"
	ProfileMutex        = "mutex"
)

var builtinProfiles = []string{
	ProfileGoroutine,
	ProfileThreadCreate,
	ProfileHeap,
	ProfileAllocs,
	ProfileBlock,
	ProfileMutex,
}

// Trace starts writing an execution trace to w.
func Trace(w io.Writer) (StopFunc, error) {
	if err := trace.Start(w); err != nil {
		return nil, err
	}
	return func() error {
		trace.Stop()
		return nil
	}, nil
}

var _ startFunc = Trace
