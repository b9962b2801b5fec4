// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.lukeshu.com/go/lowmemjson"
	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"git.lukeshu.com/nvmeconf-ng/lib/conformance"
	"git.lukeshu.com/nvmeconf-ng/lib/containers"
	"git.lukeshu.com/nvmeconf-ng/lib/diskio"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmesim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
	"git.lukeshu.com/nvmeconf-ng/lib/textui"
)

type runConfig struct {
	Namespaces []nvmesim.Config                `json:"namespaces"`
	Policy     containers.Optional[zns.Policy] `json:"policy"`
	Seed       int64                           `json:"seed"`
	Repeat     int                             `json:"repeat"`
}

// defaultRunConfig is a conventional namespace and a zoned namespace
// shaped like a small ZNS drive: 128 zones of 128MiB with 72MiB
// writable.
func defaultRunConfig() runConfig {
	zoned := nvmesim.Zoned(2, 128, 0x8000, 0x4800)
	zoned.MaxOpen = 14
	zoned.MaxActive = 14
	return runConfig{
		Namespaces: []nvmesim.Config{
			nvmesim.Conventional(1, 0x1000000),
			zoned,
		},
		Seed: 1,
	}
}

type resultJSON struct {
	Namespace uint32        `json:"nsid"`
	Name      string        `json:"name"`
	Outcome   string        `json:"outcome"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

var errChecksFailed = errors.New("checks failed")

// runNamespace simulates one namespace, backed by a sparse file in
// backingDir if that is set, and runs checks against it.  Failed
// checks are reported in the results and as an error wrapping
// errChecksFailed.
func runNamespace(ctx context.Context, cfg runConfig, nsCfg nvmesim.Config, backingDir string, checks []*conformance.Check) ([]resultJSON, error) {
	ctx = dlog.WithField(ctx, "nvmeconf.run.ns", nsCfg.NSID)
	if err := nsCfg.Validate(); err != nil {
		return nil, fmt.Errorf("namespace %d: %w", nsCfg.NSID, err)
	}
	var media diskio.File[int64]
	if backingDir != "" {
		path := filepath.Join(backingDir, fmt.Sprintf("ns%d.img", nsCfg.NSID))
		file, err := diskio.CreateSparse(path, nsCfg.Capacity.Bytes(nsCfg.BlockSize))
		if err != nil {
			return nil, err
		}
		media = diskio.NewBufferedFile[int64](file, int64(nsCfg.BlockSize), textui.Tunable(4096))
		defer func() {
			if err := media.Close(); err != nil {
				dlog.Errorf(ctx, "closing %q: %v", path, err)
			}
		}()
		dlog.Infof(ctx, "backing namespace with %q", path)
	}
	dlog.Infof(ctx, "namespace %v: %v (%v blocks of %v bytes)",
		nsCfg.NSID, textui.IEC(nsCfg.Capacity.Bytes(nsCfg.BlockSize), "B"),
		textui.Humanized(uint64(nsCfg.Capacity)), nsCfg.BlockSize)
	ns, err := nvmesim.New(nsCfg, media)
	if err != nil {
		return nil, err
	}

	env := &conformance.Env{
		Namespace: ns,
		Policy:    cfg.Policy.Or(zns.ControllerPolicy),
		Seed:      cfg.Seed,
		Repeat:    cfg.Repeat,
	}
	if err := env.Setup(ctx); err != nil {
		return nil, err
	}
	ctx = dlog.WithField(ctx, "nvmeconf.run.step", "checks")
	report, err := conformance.Run(ctx, env, checks)
	if err != nil {
		return nil, err
	}
	dlog.Infof(ctx, "%v", report)
	results := make([]resultJSON, 0, len(report.Results))
	for _, res := range report.Results {
		rj := resultJSON{
			Namespace: uint32(nsCfg.NSID),
			Name:      res.Name,
			Outcome:   res.Outcome.String(),
			Duration:  res.Duration,
		}
		if res.Err != nil {
			rj.Error = res.Err.Error()
		}
		results = append(results, rj)
	}
	if err := report.Err(); err != nil {
		return results, fmt.Errorf("%w: %v", errChecksFailed, err)
	}
	return results, nil
}

func init() {
	var (
		configFlag     string
		backingDirFlag string
		seedFlag       int64
		repeatFlag     int
		checkFlag      []string
		jsonFlag       bool
	)
	cmd := subcommand{
		Command: cobra.Command{
			Use:   "run",
			Short: "Run the conformance checks against simulated namespaces",
			Long: "" +
				"Each namespace described by the --config file (by default, " +
				"one conventional and one zoned namespace) is simulated in " +
				"memory, or in sparse files under --backing-dir, and every " +
				"check that applies to it is run.\n" +
				"\n" +
				"The exit status is non-zero if any check failed.",
			Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ctx = dlog.WithField(ctx, "nvmeconf.run.step", "setup")

			cfg := defaultRunConfig()
			if configFlag != "" {
				var err error
				cfg, err = readJSONFile(ctx, configFlag, cfg)
				if err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seedFlag
			}
			if cmd.Flags().Changed("repeat") {
				cfg.Repeat = repeatFlag
			}
			checks, err := selectChecks(checkFlag)
			if err != nil {
				return err
			}

			var results []resultJSON
			var errs derror.MultiError
			for _, nsCfg := range cfg.Namespaces {
				nsResults, err := runNamespace(ctx, cfg, nsCfg, backingDirFlag, checks)
				if err != nil {
					if !errors.Is(err, errChecksFailed) {
						return err
					}
					errs = append(errs, fmt.Errorf("namespace %d: %w", nsCfg.NSID, err))
				}
				results = append(results, nsResults...)
			}

			if jsonFlag {
				if err := writeJSONFile(os.Stdout, results, lowmemjson.ReEncoder{
					Indent:                "\t",
					ForceTrailingNewlines: true,
				}); err != nil {
					return err
				}
			} else {
				for _, res := range results {
					textui.Fprintf(os.Stdout, "%s\tns%d\t%s\t%.3v\n",
						res.Outcome, res.Namespace, res.Name, textui.Metric(res.Duration.Seconds(), "s"))
				}
			}
			if len(errs) > 0 {
				return errs
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configFlag, "config", "", "load the namespace geometry and zone policy from the JSON file `config.json`")
	if err := cmd.MarkFlagFilename("config", "json"); err != nil {
		panic(err)
	}
	cmd.Flags().StringVar(&backingDirFlag, "backing-dir", "", "store namespace media in sparse files in `dir` instead of in memory")
	if err := cmd.MarkFlagDirname("backing-dir"); err != nil {
		panic(err)
	}
	cmd.Flags().Int64Var(&seedFlag, "seed", 0, "seed for choosing the zones that zone checks use")
	cmd.Flags().IntVar(&repeatFlag, "repeat", 0, "how many times to run repeated checks")
	cmd.Flags().StringArrayVar(&checkFlag, "check", nil, "run only the check `name` (or every check under the prefix `name/`)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the results as JSON")
	commands = append(commands, cmd)

	commands = append(commands, subcommand{
		Command: cobra.Command{
			Use:   "list-checks",
			Short: "List the conformance checks",
			Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(*cobra.Command, []string) error {
			for _, c := range conformance.Checks() {
				var needs []string
				if c.Zoned {
					needs = append(needs, "zoned")
				}
				for _, op := range c.Requires {
					needs = append(needs, op.String())
				}
				textui.Fprintf(os.Stdout, "%s\t%s\n", c.Name, strings.Join(needs, ","))
			}
			return nil
		},
	})
}

func selectChecks(names []string) ([]*conformance.Check, error) {
	all := conformance.Checks()
	if len(names) == 0 {
		return all, nil
	}
	var ret []*conformance.Check
	seen := make(containers.Set[string])
	for _, name := range names {
		n := 0
		for _, c := range all {
			if c.Name == name || strings.HasPrefix(c.Name, strings.TrimSuffix(name, "/")+"/") {
				if !seen.Has(c.Name) {
					seen.Insert(c.Name)
					ret = append(ret, c)
				}
				n++
			}
		}
		if n == 0 {
			return nil, fmt.Errorf("no check named %q", name)
		}
	}
	return ret, nil
}
