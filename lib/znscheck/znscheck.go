// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package znscheck drives zones on a device in lockstep with the zone
// state model, and reports any point where the two disagree.
package znscheck

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/datawire/dlib/dlog"
	"github.com/davecgh/go-spew/spew"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmedev"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
)

// DivergenceError is a command whose outcome, or whose effect on the
// zone, is not what the model predicted.
type DivergenceError struct {
	StartLBA nvmeprim.LBA
	Op       string
	Model    zns.Zone
	ModelErr error
	// Device is the zone as reported after the command.
	Device    zns.Descriptor
	DeviceErr error
}

func (e *DivergenceError) Error() string {
	switch {
	case e.ModelErr == nil && e.DeviceErr != nil:
		return fmt.Sprintf("zone %v: %s: model predicted success, device failed: %v",
			e.StartLBA, e.Op, e.DeviceErr)
	case e.ModelErr != nil && e.DeviceErr == nil:
		return fmt.Sprintf("zone %v: %s: device succeeded, model predicted failure: %v",
			e.StartLBA, e.Op, e.ModelErr)
	default:
		return fmt.Sprintf("zone %v: after %s: model has %v, device reports %v",
			e.StartLBA, e.Op, e.Model, e.Device)
	}
}

func (e *DivergenceError) Unwrap() error { return nvmeprim.ErrModelDeviceDivergence }

// RejectedError is a command that the model and the device both
// refused.  It matches the model's error kind (ErrIllegalTransition,
// ErrSequentialityViolation, ErrCapacityExceeded) as well as the
// device's status.
type RejectedError struct {
	StartLBA nvmeprim.LBA
	Op       string
	Model    error
	Device   error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("zone %v: %s: %v (device: %v)", e.StartLBA, e.Op, e.Model, e.Device)
}

func (e *RejectedError) Unwrap() error { return e.Device }

func (e *RejectedError) Is(target error) bool { return errors.Is(e.Model, target) }

func (e *RejectedError) As(target any) bool { return errors.As(e.Model, target) }

// resourceStatus reports whether status is a device refusal that the
// model has no way to predict, because it depends on other zones.
func resourceStatus(err error) bool {
	status, ok := nvmeprim.AsStatus(err)
	return ok && (status == nvmeprim.StatusTooManyActiveZones || status == nvmeprim.StatusTooManyOpenZones)
}

// TrackedZone is one zone of a device together with the model's
// belief about it.  At most one command is outstanding per
// TrackedZone.
type TrackedZone struct {
	ns        nvmedev.Namespace
	blockSize uint32

	mu   sync.Mutex
	zone zns.Zone
}

// Track builds the model of the zone that starts at zslba from the
// device's report of it.
func Track(ctx context.Context, ns nvmedev.Namespace, geom nvmedev.Geometry, zslba nvmeprim.LBA, policy zns.Policy) (*TrackedZone, error) {
	desc, err := nvmedev.ReportZone(ctx, ns, zslba)
	if err != nil {
		return nil, err
	}
	zone, err := zns.NewZone(desc, geom.ZoneSize, policy)
	if err != nil {
		return nil, err
	}
	return &TrackedZone{
		ns:        ns,
		blockSize: geom.BlockSize,
		zone:      zone,
	}, nil
}

// Zone returns the model's current view of the zone.
func (tz *TrackedZone) Zone() zns.Zone {
	tz.mu.Lock()
	defer tz.mu.Unlock()
	return tz.zone
}

// Apply sends action to the zone.  If the model and the device agree
// that the action is invalid, a *RejectedError is returned.
func (tz *TrackedZone) Apply(ctx context.Context, action zns.Action) error {
	tz.mu.Lock()
	defer tz.mu.Unlock()
	ctx = dlog.WithField(ctx, "nvmeconf.zone.action", action)

	next, modelErr := tz.zone.Apply(action)
	devErr := nvmedev.SendZoneAction(ctx, tz.ns, tz.zone.StartLBA, action)
	return tz.settle(ctx, action.String(), next, modelErr, devErr)
}

// Write writes the first n blocks of buf at offset blocks into the
// zone.  If the model and the device agree that the write is invalid,
// a *RejectedError is returned.
func (tz *TrackedZone) Write(ctx context.Context, offset, n nvmeprim.LBACount, buf []byte) error {
	tz.mu.Lock()
	defer tz.mu.Unlock()
	op := fmt.Sprintf("write offset=%#x nlb=%d", uint64(offset), uint64(n))
	ctx = dlog.WithField(ctx, "nvmeconf.zone.action", op)

	next, modelErr := tz.zone.Write(offset, n)
	devErr := tz.ns.Write(ctx, tz.zone.StartLBA.Add(offset), n, buf)
	return tz.settle(ctx, op, next, modelErr, devErr)
}

// settle reconciles the predicted and actual outcome of a command,
// then checks the device's view of the zone against the model.
// tz.mu must be held.
func (tz *TrackedZone) settle(ctx context.Context, op string, next zns.Zone, modelErr, devErr error) error {
	var status nvmeprim.Status
	if devErr != nil {
		var ok bool
		if status, ok = nvmeprim.AsStatus(devErr); !ok {
			// Transport failure; there is nothing to compare.
			return devErr
		}
	}
	switch {
	case modelErr == nil && devErr == nil:
		tz.zone = next
	case modelErr == nil && resourceStatus(devErr):
		dlog.Debugf(ctx, "zone %v: %s: refused for lack of resources: %v", tz.zone.StartLBA, op, status)
	case (modelErr == nil) != (devErr == nil):
		return tz.diverged(ctx, &DivergenceError{
			StartLBA:  tz.zone.StartLBA,
			Op:        op,
			Model:     next,
			ModelErr:  modelErr,
			DeviceErr: devErr,
		})
	}
	if err := tz.verify(ctx, op); err != nil {
		return err
	}
	if modelErr != nil && devErr != nil {
		return &RejectedError{
			StartLBA: tz.zone.StartLBA,
			Op:       op,
			Model:    modelErr,
			Device:   devErr,
		}
	}
	return devErr
}

// Verify re-reads the zone from the device and checks it against
// the model.
func (tz *TrackedZone) Verify(ctx context.Context) error {
	tz.mu.Lock()
	defer tz.mu.Unlock()
	return tz.verify(ctx, "verify")
}

func (tz *TrackedZone) verify(ctx context.Context, op string) error {
	desc, err := nvmedev.ReportZone(ctx, tz.ns, tz.zone.StartLBA)
	if err != nil {
		return fmt.Errorf("zone %v: after %s: %w", tz.zone.StartLBA, op, err)
	}
	if !tz.zone.Agrees(desc) {
		return tz.diverged(ctx, &DivergenceError{
			StartLBA: tz.zone.StartLBA,
			Op:       op,
			Model:    tz.zone,
			Device:   desc,
		})
	}
	return nil
}

var spewConfig = func() *spew.ConfigState {
	cfg := spew.NewDefaultConfig()
	cfg.DisablePointerAddresses = true
	cfg.DisableCapacities = true
	return cfg
}()

func (tz *TrackedZone) diverged(ctx context.Context, err *DivergenceError) error {
	dlog.Errorf(ctx, "%v", err)
	dlog.Debugf(ctx, "model:\n%s", spewConfig.Sdump(err.Model))
	dlog.Debugf(ctx, "device:\n%s", spewConfig.Sdump(err.Device))
	return err
}

// IsDivergence reports whether err is, or wraps, a model/device
// disagreement.
func IsDivergence(err error) bool {
	return errors.Is(err, nvmeprim.ErrModelDeviceDivergence)
}
