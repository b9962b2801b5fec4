// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package conformance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

// Param is what one instance of a parameterized check varies.
type Param struct {
	Zone   int // -1 if the instance is not about one zone
	Repeat int // -1 if the check is not repeated
}

func (p Param) String() string {
	var parts []string
	if p.Zone >= 0 {
		parts = append(parts, fmt.Sprintf("zone=%d", p.Zone))
	}
	if p.Repeat >= 0 {
		parts = append(parts, fmt.Sprintf("repeat=%d", p.Repeat))
	}
	return strings.Join(parts, ",")
}

type Check struct {
	Name     string
	Requires []nvmeprim.Opcode
	Zoned    bool
	// Params lists the instances to run.  If nil, the check
	// runs once, with no zone.
	Params func(*Env) []Param
	Fn     func(ctx context.Context, env *Env, p Param) error
}

// Instance is one run of a check.
type Instance struct {
	Check *Check
	Param Param
}

func (inst Instance) Name() string {
	if p := inst.Param.String(); p != "" {
		return inst.Check.Name + "[" + p + "]"
	}
	return inst.Check.Name
}

// lane is the name of the group of instances that must not run
// concurrently with this one.
func (inst Instance) lane() string {
	switch {
	case inst.Param.Zone >= 0:
		return fmt.Sprintf("zone-%d", inst.Param.Zone)
	case inst.Check.Zoned:
		return "zns"
	default:
		return "nvm"
	}
}

var registry = map[string]*Check{}

func register(c *Check) {
	if _, dup := registry[c.Name]; dup {
		panic(fmt.Errorf("conformance: duplicate check %q", c.Name))
	}
	registry[c.Name] = c
}

// Checks returns every check, sorted by name.
func Checks() []*Check {
	ret := make([]*Check, 0, len(registry))
	for _, c := range registry {
		ret = append(ret, c)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Name < ret[j].Name
	})
	return ret
}

// Lookup returns the named check.
func Lookup(name string) (*Check, bool) {
	c, ok := registry[name]
	return c, ok
}

func once(*Env) []Param { return []Param{{Zone: -1, Repeat: -1}} }

func repeated(n int) func(*Env) []Param {
	return func(env *Env) []Param {
		ret := make([]Param, env.repeat(n))
		for i := range ret {
			ret[i] = Param{Zone: -1, Repeat: i}
		}
		return ret
	}
}

// inZones runs once per repeat in each of the given zones, ignoring
// any the namespace does not have.
func inZones(repeat int, zones ...int) func(*Env) []Param {
	return func(env *Env) []Param {
		var ret []Param
		for _, z := range zones {
			if z >= env.geom.NumZones() {
				continue
			}
			if repeat == 0 {
				ret = append(ret, Param{Zone: z, Repeat: -1})
				continue
			}
			for r := 0; r < env.repeat(repeat); r++ {
				ret = append(ret, Param{Zone: z, Repeat: r})
			}
		}
		return ret
	}
}

// inRandomZone runs once, in a zone picked by the seed.
func inRandomZone(name string) func(*Env) []Param {
	return func(env *Env) []Param {
		z, ok := env.randomZone(name)
		if !ok {
			return nil
		}
		return []Param{{Zone: z, Repeat: -1}}
	}
}

// Instances expands a check into its instances, or returns ErrSkip
// if it does not apply to env's namespace.
func (c *Check) Instances(env *Env) ([]Instance, error) {
	if c.Zoned && !env.geom.Zoned {
		return nil, fmt.Errorf("%w: namespace %d is not zoned", ErrSkip, env.Namespace.ID())
	}
	for _, op := range c.Requires {
		if !env.Namespace.Supports(op) {
			return nil, fmt.Errorf("%w: %v is not supported", ErrSkip, op)
		}
	}
	params := once
	if c.Params != nil {
		params = c.Params
	}
	var ret []Instance
	for _, p := range params(env) {
		ret = append(ret, Instance{Check: c, Param: p})
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("%w: namespace %d has no zones for it to use", ErrSkip, env.Namespace.ID())
	}
	return ret, nil
}
