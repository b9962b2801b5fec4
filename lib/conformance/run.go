// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package conformance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/nvmeconf-ng/lib/textui"
)

type Outcome int

const (
	Pass Outcome = iota
	Fail
	Skip
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	case Skip:
		return "SKIP"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

type Result struct {
	Name     string
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

type Report struct {
	Results []Result
}

// Count returns how many results had the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Err returns every failure, or nil if nothing failed.
func (r *Report) Err() error {
	var errs derror.MultiError
	for _, res := range r.Results {
		if res.Outcome == Fail {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (r *Report) String() string {
	return textui.Sprintf("%d passed, %d failed, %d skipped",
		r.Count(Pass), r.Count(Fail), r.Count(Skip))
}

type runStats struct {
	Done   textui.Portion[int]
	Failed int
}

func (s runStats) String() string {
	return textui.Sprintf("ran %v checks, %d failed", s.Done, s.Failed)
}

// parallelism is how many instances may run at once without their
// zones competing for the device's open and active zone resources.
func (env *Env) parallelism() int {
	n := textui.Tunable(8)
	if env.geom.MaxOpen > 0 && env.geom.MaxOpen < n {
		n = env.geom.MaxOpen
	}
	if env.geom.MaxActive > 0 && env.geom.MaxActive < n {
		n = env.geom.MaxActive
	}
	return n
}

// Run runs the given checks against env, which must have been Setup.
// Instances that share a zone run one after another; the rest run
// concurrently.  A failed check does not stop the others; the
// returned error is only for a canceled run.
func Run(ctx context.Context, env *Env, checks []*Check) (*Report, error) {
	ctx = dlog.WithField(ctx, "nvmeconf.run.ns", env.Namespace.ID())
	report := new(Report)
	var mu sync.Mutex
	record := func(res Result) {
		mu.Lock()
		defer mu.Unlock()
		report.Results = append(report.Results, res)
	}

	lanes := make(map[string][]Instance)
	total := 0
	for _, c := range checks {
		insts, err := c.Instances(env)
		if err != nil {
			if !errors.Is(err, ErrSkip) {
				return nil, err
			}
			dlog.Infof(ctx, "SKIP %s: %v", c.Name, err)
			record(Result{Name: c.Name, Outcome: Skip, Err: err})
			continue
		}
		for _, inst := range insts {
			lanes[inst.lane()] = append(lanes[inst.lane()], inst)
		}
		total += len(insts)
	}

	progress := textui.NewProgress[runStats](ctx, dlog.LogLevelInfo, textui.Tunable(1*time.Second))
	var stats runStats
	stats.Done.D = total
	progress.Set(stats)

	sema := make(chan struct{}, env.parallelism())
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	for name, insts := range lanes {
		insts := insts
		grp.Go(name, func(ctx context.Context) error {
			for _, inst := range insts {
				select {
				case sema <- struct{}{}:
				case <-ctx.Done():
					return ctx.Err()
				}
				res := runInstance(ctx, env, inst)
				<-sema
				record(res)

				mu.Lock()
				stats.Done.N++
				if res.Outcome == Fail {
					stats.Failed++
				}
				progress.Set(stats)
				mu.Unlock()
			}
			return nil
		})
	}
	err := grp.Wait()
	progress.Done()

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Name < report.Results[j].Name
	})
	return report, err
}

func runInstance(ctx context.Context, env *Env, inst Instance) (res Result) {
	res.Name = inst.Name()
	kind, _, _ := strings.Cut(inst.Check.Name, "/")
	ctx = dlog.WithField(ctx, "nvmeconf.run.substep", kind)
	ctx = dlog.WithField(ctx, "nvmeconf.run.check", res.Name)
	if inst.Param.Zone >= 0 {
		ctx = dlog.WithField(ctx, "nvmeconf.run.zone", env.geom.ZoneStart(inst.Param.Zone))
	}

	start := time.Now()
	defer func() {
		if err := derror.PanicToError(recover()); err != nil {
			res.Outcome = Fail
			res.Err = err
		}
		res.Duration = time.Since(start)
		switch res.Outcome {
		case Fail:
			dlog.Errorf(ctx, "%v: %v", res.Outcome, res.Err)
		case Skip:
			dlog.Infof(ctx, "%v: %v", res.Outcome, res.Err)
		default:
			dlog.Debugf(ctx, "%v (%v)", res.Outcome, res.Duration)
		}
	}()

	err := inst.Check.Fn(ctx, env, inst.Param)
	switch {
	case err == nil:
		res.Outcome = Pass
	case errors.Is(err, ErrSkip):
		res.Outcome = Skip
		res.Err = err
	default:
		res.Outcome = Fail
		res.Err = err
	}
	return res
}
