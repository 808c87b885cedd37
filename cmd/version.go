package cmd

import "github.com/TAPPaaS/TAPPaaS/internal/brand"

// RunVersion prints build information.
func RunVersion(opts Options) {
	Printer.Fprintf(opts.out(), "%s %s\n", brand.Name, brand.Version)
	if brand.GitCommit != "" {
		Printer.Fprintf(opts.out(), "commit: %s\n", brand.GitCommit)
	}
	if brand.BuildTime != "" {
		Printer.Fprintf(opts.out(), "built:  %s\n", brand.BuildTime)
	}
}
