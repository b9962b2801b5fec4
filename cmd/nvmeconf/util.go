// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"context"
	"io"
	"os"

	"git.lukeshu.com/go/lowmemjson"
	"github.com/datawire/dlib/dlog"
)

func readJSONFile[T any](ctx context.Context, filename string, into T) (T, error) {
	dlog.Debugf(dlog.WithField(ctx, "nvmeconf.read-json-file", filename), "reading")
	fh, err := os.Open(filename)
	if err != nil {
		return into, err
	}
	defer func() {
		_ = fh.Close()
	}()
	if err := lowmemjson.DecodeThenEOF(bufio.NewReader(fh), &into); err != nil {
		return into, err
	}
	return into, nil
}

func writeJSONFile(w io.Writer, obj any, cfg lowmemjson.ReEncoder) (err error) {
	buffer := bufio.NewWriter(w)
	defer func() {
		if _err := buffer.Flush(); err == nil && _err != nil {
			err = _err
		}
	}()
	cfg.Out = buffer
	return lowmemjson.Encode(&cfg, obj)
}

func readInput(filename string) ([]byte, error) {
	if filename == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(filename)
}
