// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package profile

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/datawire/dlib/derror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type flagSet struct {
	shutdown []StopFunc
}

func (fs *flagSet) Stop() error {
	var errs derror.MultiError
	// Stop in the reverse order of starting, so that a trace covers
	// the writing of the other profiles.
	for i := len(fs.shutdown) - 1; i >= 0; i-- {
		if err := fs.shutdown[i](); err != nil {
			errs = append(errs, err)
		}
	}
	fs.shutdown = nil
	if len(errs) > 0 {
		return errs
	}
	return nil
}

type flagValue struct {
	parent *flagSet
	start  startFunc
	curVal string
}

var _ pflag.Value = (*flagValue)(nil)

// String implements pflag.Value.
func (fv *flagValue) String() string { return fv.curVal }

// Type implements pflag.Value.
func (*flagValue) Type() string { return "filename" }

// Set implements pflag.Value.
func (fv *flagValue) Set(filename string) error {
	if filename == "" {
		return nil
	}
	if fv.curVal != "" {
		return fmt.Errorf("already writing to %q", fv.curVal)
	}
	w, err := os.Create(filename)
	if err != nil {
		return err
	}
	shutdown, err := fv.start(w)
	if err != nil {
		_ = w.Close()
		return err
	}
	fv.curVal = filename
	fv.parent.shutdown = append(fv.parent.shutdown, func() error {
		err1 := shutdown()
		err2 := w.Close()
		if err1 != nil {
			return err1
		}
		return err2
	})
	return nil
}

// named returns a startFunc for a named profile.  The block and
// mutex profiles record nothing unless sampling is turned on, so
// that is done here.
func named(name string) startFunc {
	return func(w io.Writer) (StopFunc, error) {
		switch name {
		case ProfileBlock:
			runtime.SetBlockProfileRate(1)
		case ProfileMutex:
			runtime.SetMutexProfileFraction(1)
		}
		return Profile(w, name)
	}
}

// AddProfileFlags adds a "{prefix}{name}=FILE" flag to write each
// standard profile (plus a CPU profile and an execution trace), and
// returns a function that writes them out; it must be called at
// program shutdown.
func AddProfileFlags(flags *pflag.FlagSet, prefix string) StopFunc {
	var root flagSet
	add := func(name string, start startFunc, what string) {
		flags.Var(&flagValue{parent: &root, start: start}, prefix+name,
			fmt.Sprintf("write %s to the file `%s`", what, name+".pprof"))
		_ = cobra.MarkFlagFilename(flags, prefix+name)
	}
	add("cpu", CPU, "a CPU profile")
	add("trace", Trace, "an execution trace (see https://pkg.go.dev/runtime/trace)")
	for _, name := range builtinProfiles {
		add(name, named(name), "a "+name+" profile")
	}
	return root.Stop
}
