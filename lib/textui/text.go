// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package textui implements utilities for emitting human-friendly
// text on stdout and stderr.
package textui

import (
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"golang.org/x/exp/constraints"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"git.lukeshu.com/nvmeconf-ng/lib/fmtutil"
)

var printer = message.NewPrinter(language.English)

// Fprintf is fmt.Fprintf with the x/text/message extensions (digit
// grouping, mostly).  Use it for output that is meant for a person.
func Fprintf(w io.Writer, key string, a ...any) (n int, err error) {
	return printer.Fprintf(w, key, a...)
}

// Sprintf is the string-returning form of Fprintf.
func Sprintf(key string, a ...any) string {
	return printer.Sprintf(key, a...)
}

////////////////////////////////////////////////////////////////////////////////

// Humanized wraps x so that plain fmt formats it through the
// x/text/message printer; a block count of 345243543 prints as
// "345,243,543".
func Humanized(x any) any {
	return humanized{val: x}
}

type humanized struct {
	val any
}

var (
	_ fmt.Formatter = humanized{}
	_ fmt.Stringer  = humanized{}
)

func (h humanized) Format(f fmt.State, verb rune) {
	_, _ = printer.Fprintf(f, fmtutil.FmtStateString(f, verb), h.val)
}

func (h humanized) String() string {
	return fmt.Sprint(h)
}

////////////////////////////////////////////////////////////////////////////////

// Portion is a count of done-out-of-total, such as checks run out of
// checks selected.  It prints as a percentage followed by the exact
// counts:
//
//	fmt.Sprint(Portion[int]{N: 1, D: 12345}) ⇒ "0% (1/12,345)"
type Portion[T constraints.Integer] struct {
	N, D T
}

var _ fmt.Stringer = Portion[int]{}

func (p Portion[T]) String() string {
	pct := uint64(100)
	if p.D > 0 {
		pct = (uint64(p.N) * 100) / uint64(p.D)
	}
	return printer.Sprintf("%d%% (%v/%v)", pct, uint64(p.N), uint64(p.D))
}

////////////////////////////////////////////////////////////////////////////////

var (
	metricSmallPrefixes = []string{"m", "μ", "n", "p", "f", "a", "z", "y", "r", "q"}
	metricBigPrefixes   = []string{"k", "M", "G", "T", "P", "E", "Z", "Y", "R", "Q"}
	iecPrefixes         = []string{"Ki", "Mi", "Gi", "Ti", "Pi", "Ei", "Zi", "Yi"}
)

// scaled is a quantity that prints with a unit prefix chosen so that
// the number part is in [1, base).
type scaled struct {
	Val    float64
	Unit   string
	Binary bool
}

var (
	_ fmt.Formatter = scaled{}
	_ fmt.Stringer  = scaled{}
)

// Metric formats x with an SI prefix on unit: Metric(1500, "B") is
// "1.5kB" and Metric(0.002, "s") is "2ms".
func Metric[T constraints.Integer | constraints.Float](x T, unit string) fmt.Stringer {
	return scaled{Val: float64(x), Unit: unit}
}

// IEC formats x with a binary prefix on unit: IEC(128<<20, "B") is
// "128MiB".  Quantities below 1 are not scaled.
func IEC[T constraints.Integer | constraints.Float](x T, unit string) fmt.Stringer {
	return scaled{Val: float64(x), Unit: unit, Binary: true}
}

func (v scaled) scale() (float64, string) {
	val := math.Abs(v.Val)
	var prefix string
	switch {
	case math.IsNaN(val) || math.IsInf(val, 0) || val == 0:
	case v.Binary:
		for i := 0; val >= 1024 && i < len(iecPrefixes); i++ {
			val /= 1024
			prefix = iecPrefixes[i]
		}
	case val < 1:
		for i := 0; val < 1 && i < len(metricSmallPrefixes); i++ {
			val *= 1000
			prefix = metricSmallPrefixes[i]
		}
	default:
		for i := 0; val >= 1000 && i < len(metricBigPrefixes); i++ {
			val /= 1000
			prefix = metricBigPrefixes[i]
		}
	}
	return math.Copysign(val, v.Val), prefix
}

func (v scaled) Format(f fmt.State, verb rune) {
	val, prefix := v.scale()
	suffix := prefix + v.Unit

	var wrapped any = val
	format := fmtutil.FmtStateString(f, verb)
	if !math.IsNaN(val) {
		var options []number.Option
		if width, ok := f.Width(); ok {
			width -= utf8.RuneCountInString(suffix)
			options = append(options, number.FormatWidth(width))
			format = fmtutil.FmtStateStringWidth(f, verb, width)
		}
		if prec, ok := f.Precision(); ok {
			options = append(options, number.Precision(prec))
		}
		wrapped = number.Decimal(val, options...)
	}
	_, _ = printer.Fprintf(f, format+"%s", wrapped, suffix)
}

func (v scaled) String() string {
	return fmt.Sprint(v)
}
