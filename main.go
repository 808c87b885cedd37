package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/TAPPaaS/TAPPaaS/cmd"
	"github.com/TAPPaaS/TAPPaaS/internal/brand"
	"github.com/TAPPaaS/TAPPaaS/internal/i18n"
	"github.com/TAPPaaS/TAPPaaS/internal/reconcile"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "summary":
		fs := flag.NewFlagSet("summary", flag.ExitOnError)
		opts := catalogFlags(fs)
		fs.BoolVar(&opts.JSON, "json", false, "Print JSON")
		parse(fs, opts)
		err = cmd.RunSummary(*opts)

	case "check":
		fs := flag.NewFlagSet("check", flag.ExitOnError)
		opts := catalogFlags(fs)
		verbose := fs.Bool("verbose", false, "Print zone summary and compiled rules")
		fs.BoolVar(verbose, "v", false, "Verbose output (short)")
		parse(fs, opts)
		err = cmd.RunCheck(*opts, *verbose)

	case "rules":
		fs := flag.NewFlagSet("rules", flag.ExitOnError)
		opts := catalogFlags(fs)
		zoneName := fs.String("zone", "", "Only this zone")
		reach := fs.Bool("reach", false, "Print a reachability matrix")
		parse(fs, opts)
		err = cmd.RunRules(*opts, *zoneName, *reach)

	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		opts := applianceFlags(fs)
		parse(fs, opts)
		err = cmd.RunList(ctx, *opts)

	case "diff":
		fs := flag.NewFlagSet("diff", flag.ExitOnError)
		opts := applianceFlags(fs)
		parse(fs, opts)
		err = cmd.RunDiff(ctx, *opts)

	case "plan", "apply":
		fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
		opts := applianceFlags(fs)
		fs.StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")

		var phases cmd.PhaseFlags
		fs.BoolVar(&phases.VLANsOnly, "vlans-only", false, "Only configure VLANs")
		fs.BoolVar(&phases.DHCPOnly, "dhcp-only", false, "Only configure DHCP ranges and interface bindings")
		fs.BoolVar(&phases.FirewallRulesOnly, "firewall-rules-only", false, "Only configure firewall rules")
		fs.BoolVar(&phases.NoFirewallRules, "no-firewall-rules", false, "Skip firewall rules")
		fs.BoolVar(&phases.NoAssign, "no-assign", false, "Do not assign new VLANs to interfaces")
		verify := fs.Bool("verify", false, "List the live configuration after apply")
		parse(fs, opts)

		if os.Args[1] == "plan" {
			err = cmd.RunPlan(ctx, *opts, phases)
		} else {
			err = cmd.RunApply(ctx, *opts, phases, *verify)
		}

	case "hosts":
		err = runHosts(ctx)

	case "firewall":
		err = runFirewall(ctx)

	case "version", "--version", "-V":
		cmd.RunVersion(cmd.Options{})

	case "help", "--help", "-h":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if !errors.Is(err, cmd.ErrConfigDiffers) {
			printer.Fprintf(os.Stderr, "%s %s failed: %v\n", brand.BinaryName, os.Args[1], err)
		}
		stop()
		os.Exit(1)
	}
}

// runHosts dispatches "hosts list|add|delete".
func runHosts(ctx context.Context) error {
	sub := subcommand("hosts", "list", "add", "delete")
	fs := flag.NewFlagSet("hosts "+sub, flag.ExitOnError)
	opts := applianceFlags(fs)
	dryRun := fs.Bool("check-mode", false, "Show the change without making it")
	description := fs.String("description", "", "Entry description (default: host.domain)")
	mac := fs.String("mac", "", "Hardware address to pin the DHCP lease to")
	fs.Parse(os.Args[3:])
	args := fs.Args()

	switch sub {
	case "add":
		if len(args) != 3 {
			return fmt.Errorf("usage: %s hosts add <host> <zone|domain> <ip>", brand.BinaryName)
		}
		return cmd.RunHostAdd(ctx, *opts, reconcile.HostRequest{
			Host: args[0], Zone: args[1], IP: args[2], HardwareAddr: *mac, Description: *description,
		}, *dryRun)
	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s hosts delete <host> <zone|domain>", brand.BinaryName)
		}
		return cmd.RunHostDelete(ctx, *opts, args[0], args[1], *dryRun)
	}
	return cmd.RunHostList(ctx, *opts)
}

// runFirewall dispatches "firewall list|delete|apply".
func runFirewall(ctx context.Context) error {
	sub := subcommand("firewall", "list", "delete", "apply")
	fs := flag.NewFlagSet("firewall "+sub, flag.ExitOnError)
	opts := applianceFlags(fs)
	search := fs.String("search", "", "Only rules whose description contains this text")
	noApply := fs.Bool("no-apply", false, "Stage the delete without applying it")
	dryRun := fs.Bool("check-mode", false, "Show the change without making it")
	fs.Parse(os.Args[3:])
	args := fs.Args()

	switch sub {
	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s firewall delete <description>", brand.BinaryName)
		}
		return cmd.RunFirewallDelete(ctx, *opts, args[0], *noApply, *dryRun)
	case "apply":
		return cmd.RunFirewallApply(ctx, *opts)
	}
	return cmd.RunFirewallList(ctx, *opts, *search)
}

// subcommand returns the action after a command group, exiting with usage
// when it is missing or unknown.
func subcommand(group string, valid ...string) string {
	if len(os.Args) < 3 || !slices.Contains(valid, os.Args[2]) {
		printer.Fprintf(os.Stderr, "Usage: %s %s <%s> [options]\n", brand.BinaryName, group, strings.Join(valid, "|"))
		os.Exit(1)
	}
	return os.Args[2]
}

// catalogFlags registers the flags of commands that only read the catalog.
func catalogFlags(fs *flag.FlagSet) *cmd.Options {
	opts := &cmd.Options{}
	fs.StringVar(&opts.ZonesFile, "zones-file", "", "Zone catalog (JSON, YAML or HCL)")
	fs.StringVar(&opts.ConfigFile, "config", "", "Configuration file (default "+brand.DefaultConfigPath()+")")
	fs.StringVar(&opts.ConfigFile, "c", "", "Configuration file (short)")
	fs.BoolVar(&opts.Debug, "debug", false, "Debug logging")
	fs.BoolVar(&opts.LogJSON, "log-json", false, "Log as JSON")
	return opts
}

// applianceFlags adds connection flags to catalogFlags.
func applianceFlags(fs *flag.FlagSet) *cmd.Options {
	opts := catalogFlags(fs)
	fs.StringVar(&opts.Host, "firewall", "", "Appliance host name")
	fs.IntVar(&opts.Port, "port", 0, "Appliance API port")
	fs.StringVar(&opts.CredentialFile, "credential-file", "", "API credential file")
	fs.BoolVar(&opts.NoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification")
	fs.StringVar(&opts.Interface, "interface", "", "Default VLAN parent interface")
	fs.BoolVar(&opts.JSON, "json", false, "Print JSON")
	return opts
}

// parse parses the command's arguments. A single positional argument names
// the zones file.
func parse(fs *flag.FlagSet, opts *cmd.Options) {
	fs.Parse(os.Args[2:])
	if fs.NArg() > 0 && opts.ZonesFile == "" {
		opts.ZonesFile = fs.Arg(0)
	}
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options] [zones-file]

Offline Commands:
  summary   Print the zone catalog as a table
            Options: --json
  check     Validate the zone catalog
            Options: --verbose (-v)
  rules     Print compiled firewall rules
            Options: --zone <name>, --reach

Appliance Commands:
  list      Show live VLANs, interfaces, DHCP ranges and zone rules
  diff      Compare the catalog with the live configuration
  plan      Show what apply would change (nothing is written)
  apply     Converge the appliance to the catalog
            Options: --vlans-only, --dhcp-only, --firewall-rules-only,
                     --no-firewall-rules, --no-assign, --verify, --metrics-file <file>
  hosts     Manage dnsmasq host entries ({host}.{zone}.internal)
            hosts list | hosts add <host> <zone|domain> <ip> | hosts delete <host> <zone|domain>
            Options: --mac <addr>, --description <text>, --check-mode
  firewall  Inspect and edit live filter rules
            firewall list [--search <text>] | firewall delete <description> | firewall apply
            Options: --no-apply, --check-mode

Common Options:
  --zones-file <file>   Zone catalog (default: auto-detected zones.json)
  --config (-c) <file>  Configuration file
  --debug, --log-json   Logging

Appliance Options:
  --firewall <host>, --port <n>, --credential-file <file>,
  --no-ssl-verify, --interface <name>, --json

Environment:
  OPNSENSE_HOST, OPNSENSE_PORT, OPNSENSE_TOKEN, OPNSENSE_SECRET,
  OPNSENSE_CREDENTIAL_FILE, OPNSENSE_SSL_VERIFY, OPNSENSE_SSL_CA_FILE,
  OPNSENSE_DEBUG, OPNSENSE_API_TIMEOUT, OPNSENSE_API_RETRIES

Examples:
  %s check -v zones.json
  %s plan --firewall firewall.mgmt.internal
  %s apply --vlans-only --no-assign
  %s hosts add backup mgmt 10.0.0.12
  %s version
`, brand.Name, brand.Description, brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName)
}
