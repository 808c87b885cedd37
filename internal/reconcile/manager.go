// Package reconcile converges the appliance to a zone catalog. A run walks
// the phases VLAN, DHCP, dnsmasq interface bindings, then firewall, each
// against a fresh snapshot of live state. Every per-zone failure becomes an
// error outcome in the report; nothing short of an unreachable appliance at
// connect time aborts a run.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TAPPaaS/TAPPaaS/internal/appliance"
	"github.com/TAPPaaS/TAPPaaS/internal/logging"
	"github.com/TAPPaaS/TAPPaaS/internal/metrics"
	"github.com/TAPPaaS/TAPPaaS/internal/resource"
	"github.com/TAPPaaS/TAPPaaS/internal/zone"
)

// Defaults for the bridge-to-parent-interface mapping.
const (
	DefaultInterface = "vtnet0"
	BaseDHCPIface    = "lan"
)

// DefaultBridgeMap maps logical bridges to physical parent interfaces.
func DefaultBridgeMap() map[string]string {
	return map[string]string{"lan": "vtnet0", "wan": "vtnet1"}
}

// Options configure a Manager.
type Options struct {
	DryRun bool
	// AssignVLANs chains interface assignment and reload after VLAN creation.
	AssignVLANs bool
	// BridgeMap maps a zone's bridge (lower case) to the VLAN parent.
	BridgeMap map[string]string
	// DefaultInterface is the parent for bridges missing from BridgeMap.
	DefaultInterface string
	LeaseTime        int

	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// Phases selects which phases ConfigureAll runs.
type Phases struct {
	VLANs    bool
	DHCP     bool
	Bindings bool
	Firewall bool
}

// AllPhases runs everything.
func AllPhases() Phases {
	return Phases{VLANs: true, DHCP: true, Bindings: true, Firewall: true}
}

// Manager reconciles one catalog against one appliance session.
type Manager struct {
	catalog *zone.Catalog
	inv     appliance.Invoker
	opts    Options
	runID   string
	log     *logging.Logger

	vlans *resource.VLANClient
	dhcp  *resource.DHCPClient
	fw    *resource.FirewallClient
}

// New creates a manager. A nil catalog must be filled with Load or
// SetCatalog before a run.
func New(cat *zone.Catalog, inv appliance.Invoker, opts Options) *Manager {
	return newManager(cat, inv, opts, uuid.NewString())
}

func newManager(cat *zone.Catalog, inv appliance.Invoker, opts Options, runID string) *Manager {
	if opts.BridgeMap == nil {
		opts.BridgeMap = DefaultBridgeMap()
	}
	if opts.DefaultInterface == "" {
		opts.DefaultInterface = DefaultInterface
	}
	if opts.LeaseTime == 0 {
		opts.LeaseTime = resource.DefaultLeaseTime
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Metrics != nil {
		inv = opts.Metrics.Instrument(inv)
	}

	log := opts.Logger.WithFields(map[string]any{"run_id": runID})
	m := &Manager{catalog: cat, inv: inv, opts: opts, runID: runID, log: log.WithComponent("reconcile")}
	m.vlans = resource.NewVLANClient(inv, opts.DryRun, log)
	m.dhcp = resource.NewDHCPClient(inv, opts.DryRun, log)
	m.fw = resource.NewFirewallClient(inv, opts.DryRun, log)
	return m
}

// RunID identifies this manager's run in logs and reports.
func (m *Manager) RunID() string { return m.runID }

// DryRun reports whether writes are suppressed.
func (m *Manager) DryRun() bool { return m.opts.DryRun }

// Catalog returns the loaded catalog.
func (m *Manager) Catalog() *zone.Catalog { return m.catalog }

// SetCatalog replaces the catalog.
func (m *Manager) SetCatalog(cat *zone.Catalog) { m.catalog = cat }

// Load reads and validates a catalog file.
func (m *Manager) Load(path string) error {
	cat, err := zone.LoadFile(path)
	if err != nil {
		return err
	}
	m.catalog = cat
	m.log.Info("loaded zones", "file", path, "zones", len(cat.Zones))
	return nil
}

// Connect checks that the appliance answers. Failure here is fatal.
func (m *Manager) Connect(ctx context.Context) error {
	if _, err := m.inv.Invoke(ctx, appliance.OpPing, nil, false); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// ParentInterface returns the VLAN parent for a bridge.
func (m *Manager) ParentInterface(bridge string) string {
	if p, ok := m.opts.BridgeMap[strings.ToLower(bridge)]; ok {
		return p
	}
	return m.opts.DefaultInterface
}

// ZoneInterface resolves the routed interface identifier for a zone from
// the live assignment list. VLAN zones match by tag, then by interface
// description equal to the zone name; untagged zones use their bridge.
// Returns "" when a VLAN zone has no assignment.
func ZoneInterface(z *zone.Zone, assigned []resource.AssignedInterface) string {
	if !z.NeedsVLAN() {
		return strings.ToLower(z.Bridge)
	}
	for _, a := range assigned {
		if a.VLANTag == z.VLANTag {
			return a.Identifier
		}
	}
	for _, a := range assigned {
		if strings.EqualFold(a.Description, z.Name) {
			return a.Identifier
		}
	}
	return ""
}

// ConfigureAll runs the selected phases in dependency order and returns the
// full report.
func (m *Manager) ConfigureAll(ctx context.Context, phases Phases) (*Report, error) {
	if m.catalog == nil {
		return nil, fmt.Errorf("no zone catalog loaded")
	}
	rep := newReport(m.runID, m.opts.DryRun)
	m.log.Info("starting run", "dry_run", m.opts.DryRun, "zones", len(m.catalog.Zones))

	if phases.VLANs {
		rep.Phases[PhaseVLAN] = m.timed(PhaseVLAN, func() []ZoneResult { return m.ConfigureVLANs(ctx) })
	}
	if phases.DHCP {
		rep.Phases[PhaseDHCP] = m.timed(PhaseDHCP, func() []ZoneResult { return m.ConfigureDHCP(ctx) })
	}
	if phases.Bindings {
		b := m.UpdateInterfaceBindings(ctx)
		rep.Bindings = &b
		m.recordOutcome(PhaseBindings, b.Outcome)
	}
	if phases.Firewall {
		var apply StepResult
		rep.Phases[PhaseFirewall] = m.timed(PhaseFirewall, func() []ZoneResult {
			var results []ZoneResult
			results, apply = m.ConfigureFirewall(ctx)
			return results
		})
		rep.FirewallApply = &apply
	}

	rep.Finished = time.Now()
	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordRun(rep.Started, rep.Finished.Sub(rep.Started), rep.ErrorCount())
	}
	m.log.Info("run finished", "errors", rep.ErrorCount(), "duration", rep.Finished.Sub(rep.Started).String())
	return rep, nil
}

// Plan is ConfigureAll with writes suppressed, regardless of Options.DryRun.
func (m *Manager) Plan(ctx context.Context, phases Phases) (*Report, error) {
	if m.opts.DryRun {
		return m.ConfigureAll(ctx, phases)
	}
	opts := m.opts
	opts.DryRun = true
	opts.Metrics = nil
	return newManager(m.catalog, m.inv, opts, m.runID).ConfigureAll(ctx, phases)
}

func (m *Manager) timed(phase Phase, run func() []ZoneResult) []ZoneResult {
	start := time.Now()
	results := run()
	if m.opts.Metrics != nil {
		m.opts.Metrics.ObservePhase(string(phase), time.Since(start))
	}
	for _, r := range results {
		m.recordOutcome(phase, r.Outcome)
	}
	return results
}

func (m *Manager) recordOutcome(phase Phase, o Outcome) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordOutcome(string(phase), string(o))
	}
}

// LiveConfig is a snapshot of everything zonectl manages on the appliance.
type LiveConfig struct {
	VLANs             []resource.VLAN              `json:"vlans"`
	Assigned          []resource.AssignedInterface `json:"assigned_interfaces"`
	Ranges            []resource.DHCPRange         `json:"dhcp_ranges"`
	Rules             []resource.FirewallRule      `json:"firewall_rules"`
	DnsmasqInterfaces []string                     `json:"dnsmasq_interfaces"`
}

// CurrentConfig fetches the live configuration.
func (m *Manager) CurrentConfig(ctx context.Context) (*LiveConfig, error) {
	var (
		live LiveConfig
		err  error
	)
	if live.VLANs, err = m.vlans.List(ctx); err != nil {
		return nil, err
	}
	if live.Assigned, err = m.vlans.ListAssigned(ctx); err != nil {
		return nil, err
	}
	if live.Ranges, err = m.dhcp.List(ctx); err != nil {
		return nil, err
	}
	if live.Rules, err = m.fw.List(ctx); err != nil {
		return nil, err
	}
	if live.DnsmasqInterfaces, err = m.dhcp.Interfaces(ctx); err != nil {
		return nil, err
	}
	return &live, nil
}

// skipped reports zones that a phase never touches: manual zones always,
// and untagged zones for the VLAN and DHCP phases.
func (m *Manager) skipped(phase Phase, untagged bool) []ZoneResult {
	var out []ZoneResult
	for _, z := range m.catalog.Manual() {
		out = append(out, ZoneResult{Zone: z.Name, Phase: phase, Outcome: OutcomeSkippedManual})
	}
	if !untagged {
		return out
	}
	for i := range m.catalog.Zones {
		z := &m.catalog.Zones[i]
		if z.IsManual() || z.NeedsVLAN() {
			continue
		}
		out = append(out, ZoneResult{Zone: z.Name, Phase: phase, Outcome: OutcomeSkippedUntagged, Detail: "vlantag=0"})
	}
	return out
}

func fetchFailed(phase Phase, zones []*zone.Zone, err error) []ZoneResult {
	out := make([]ZoneResult, 0, len(zones))
	for _, z := range zones {
		out = append(out, ZoneResult{Zone: z.Name, Phase: phase, Outcome: OutcomeError, Step: StepFetch, Message: err.Error()})
	}
	return out
}

func (m *Manager) zoneLog(phase Phase, z *zone.Zone) *logging.Logger {
	return m.log.WithFields(map[string]any{"phase": string(phase), "zone": z.Name})
}
