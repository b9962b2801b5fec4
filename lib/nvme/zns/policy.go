// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package zns

// Policy selects how the model treats actions whose outcome
// controllers disagree on.  The zero Policy accepts exactly the
// transitions in the base table, which includes finish on a Full
// zone as a no-op.
type Policy struct {
	// RepeatOpenClose accepts open on an Explicitly Opened zone
	// and close on a Closed zone, leaving the zone unchanged.
	RepeatOpenClose bool `json:"repeat_open_close"`
	// StrictFinish rejects finish on a zone that is already Full.
	StrictFinish bool `json:"strict_finish"`
	// ExplicitOpenFromImplicit accepts open on an Implicitly
	// Opened zone, which then becomes Explicitly Opened.
	ExplicitOpenFromImplicit bool `json:"explicit_open_from_implicit"`
}

// ControllerPolicy is how a typical ZNS controller behaves: every
// open or close whose target state is already reached succeeds.
var ControllerPolicy = Policy{
	RepeatOpenClose:          true,
	ExplicitOpenFromImplicit: true,
}
