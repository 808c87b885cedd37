// Package resource provides typed clients for the three appliance resource
// types a zone owns: VLAN devices (and their interface assignments), DHCP
// ranges, and firewall rules. Clients list live state, and create or delete
// by match key; deciding whether something already exists is the caller's
// job. Clients never retry.
package resource

import (
	"context"
	"fmt"

	"github.com/TAPPaaS/TAPPaaS/internal/appliance"
	"github.com/TAPPaaS/TAPPaaS/internal/logging"
)

// base holds what every client shares. All writes go through write.
type base struct {
	inv    appliance.Invoker
	dryRun bool
	log    *logging.Logger
}

func newBase(inv appliance.Invoker, dryRun bool, log *logging.Logger, component string) base {
	if log == nil {
		log = logging.Discard()
	}
	return base{inv: inv, dryRun: dryRun, log: log.WithComponent(component)}
}

// write encodes params once and runs a mutating operation.
func (b base) write(ctx context.Context, op appliance.OperationName, resource string, params any) (*appliance.Result, error) {
	wire, err := appliance.Encode(params)
	if err != nil {
		return nil, err
	}
	res, err := b.inv.Invoke(ctx, op, wire, b.dryRun)
	if err != nil {
		return nil, err
	}
	action := "write"
	if s := appliance.AsString(wire[appliance.ParamState]); s == appliance.StateAbsent {
		action = "delete"
	}
	if res.Changed {
		b.log.Audit(action, resource, map[string]any{"op": string(op), "dry_run": b.dryRun})
	}
	return res, nil
}

// rawWrite runs a mutating raw call; Data is encoded by the same pass.
func (b base) rawWrite(ctx context.Context, call appliance.RawCall, resource string) (*appliance.Result, error) {
	call.Method = appliance.MethodPost
	if call.Data != nil {
		wire, err := appliance.Encode(call.Data)
		if err != nil {
			return nil, err
		}
		call.Data = wire
	} else {
		call.Data = map[string]any{}
	}
	res, err := b.inv.Invoke(ctx, appliance.OpRaw, call, b.dryRun)
	if err != nil {
		return nil, err
	}
	b.log.Audit(call.Command, resource, map[string]any{"path": call.Path(), "dry_run": b.dryRun})
	return res, nil
}

// read runs a raw GET. Reads happen in dry-run too.
func (b base) read(ctx context.Context, module, controller, command string) (*appliance.Result, error) {
	call := appliance.RawCall{Module: module, Controller: controller, Command: command, Method: appliance.MethodGet}
	res, err := b.inv.Invoke(ctx, appliance.OpRaw, call, b.dryRun)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", call.Path(), err)
	}
	return res, nil
}
