// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package textui_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/textui"
)

func TestFprintf(t *testing.T) {
	t.Parallel()
	var out strings.Builder
	textui.Fprintf(&out, "%d", 12345)
	assert.Equal(t, "12,345", out.String())
}

func TestHumanized(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "12,345", fmt.Sprint(textui.Humanized(12345)))
	assert.Equal(t, "12,345  ", fmt.Sprintf("%-8d", textui.Humanized(12345)))

	lba := nvmeprim.LBA(345243543)
	assert.Equal(t, "0x1493ff97", fmt.Sprintf("%v", textui.Humanized(lba)))
	assert.Equal(t, "345243543", fmt.Sprintf("%d", textui.Humanized(lba)))
	assert.Equal(t, "345,243,543", fmt.Sprintf("%d", textui.Humanized(uint64(lba))))
}

func TestPortion(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "100% (0/0)", fmt.Sprint(textui.Portion[int]{}))
	assert.Equal(t, "0% (1/12,345)", fmt.Sprint(textui.Portion[int]{N: 1, D: 12345}))
	assert.Equal(t, "100% (0/0)", fmt.Sprint(textui.Portion[nvmeprim.LBACount]{}))
	assert.Equal(t, "0% (1/12,345)", fmt.Sprint(textui.Portion[nvmeprim.LBACount]{N: 1, D: 12345}))
}

func TestUnits(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "128MiB", fmt.Sprint(textui.IEC(int64(128<<20), "B")))
	assert.Equal(t, "512B", fmt.Sprint(textui.IEC(512, "B")))
	assert.Equal(t, "1.5kB", fmt.Sprint(textui.Metric(1500, "B")))
	assert.Equal(t, "2ms", fmt.Sprint(textui.Metric(0.002, "s")))
	assert.Equal(t, "0s", fmt.Sprint(textui.Metric(0, "s")))
	assert.Equal(t, "999B", fmt.Sprint(textui.Metric(uint32(999), "B")))
	assert.Equal(t, "-1.5kB", fmt.Sprint(textui.Metric(-1500, "B")))
	assert.Equal(t, "1.5KiB", fmt.Sprint(textui.IEC(nvmeprim.LBACount(3).Bytes(512), "B")))
	assert.Equal(t, "0.5B", fmt.Sprint(textui.IEC(0.5, "B")))
}
