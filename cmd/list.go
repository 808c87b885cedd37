package cmd

import (
	"context"
	"errors"

	"github.com/TAPPaaS/TAPPaaS/internal/report"
)

// ErrConfigDiffers is returned by RunDiff when live state has drifted.
var ErrConfigDiffers = errors.New("configuration differs")

// RunList prints the live VLANs, interfaces, DHCP ranges and zone rules.
func RunList(ctx context.Context, opts Options) error {
	s, err := opts.connect(ctx, true, false)
	if err != nil {
		return err
	}
	live, err := s.manager.CurrentConfig(ctx)
	if err != nil {
		return err
	}
	if opts.JSON {
		return report.JSON(opts.out(), live)
	}
	opts.writer().CurrentConfig(live)
	return nil
}

// RunDiff compares the resources the catalog asks for with the appliance.
func RunDiff(ctx context.Context, opts Options) error {
	s, err := opts.connect(ctx, true, false)
	if err != nil {
		return err
	}
	live, err := s.manager.CurrentConfig(ctx)
	if err != nil {
		return err
	}

	changed, err := report.Diff(opts.out(), s.manager.Catalog(), live, report.DiffOptions{
		Parent:    s.manager.ParentInterface,
		LeaseTime: s.cfg.LeaseTime,
	})
	if err != nil {
		return err
	}
	if changed {
		return ErrConfigDiffers
	}
	return nil
}
