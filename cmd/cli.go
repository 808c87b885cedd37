package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/TAPPaaS/TAPPaaS/internal/appliance"
	"github.com/TAPPaaS/TAPPaaS/internal/brand"
	"github.com/TAPPaaS/TAPPaaS/internal/config"
	"github.com/TAPPaaS/TAPPaaS/internal/i18n"
	"github.com/TAPPaaS/TAPPaaS/internal/logging"
	"github.com/TAPPaaS/TAPPaaS/internal/metrics"
	"github.com/TAPPaaS/TAPPaaS/internal/reconcile"
	"github.com/TAPPaaS/TAPPaaS/internal/report"
	"github.com/TAPPaaS/TAPPaaS/internal/zone"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

// ErrRunFailed is returned when a run finished but some zone failed.
var ErrRunFailed = errors.New("reconciliation finished with errors")

// Options carries the flags shared by commands that read the catalog or
// talk to the appliance. Zero values defer to the config file and
// environment.
type Options struct {
	ConfigFile string
	ZonesFile  string

	Host           string
	Port           int
	CredentialFile string
	NoSSLVerify    bool
	Interface      string

	Debug       bool
	LogJSON     bool
	JSON        bool
	MetricsFile string

	// Out receives command output; nil means stdout.
	Out io.Writer
	// Invoker replaces the HTTP client, for tests.
	Invoker appliance.Invoker
}

func (o *Options) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

func (o *Options) writer() *report.Writer {
	return report.New(o.out(), Printer)
}

// loadConfig layers flags over the config file and environment.
func (o *Options) loadConfig() (*config.Config, error) {
	path := o.ConfigFile
	if path == "" {
		if _, err := os.Stat(brand.DefaultConfigPath()); err == nil {
			path = brand.DefaultConfigPath()
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if o.Host != "" {
		cfg.Appliance.Host = o.Host
	}
	if o.Port != 0 {
		cfg.Appliance.Port = o.Port
	}
	if o.CredentialFile != "" {
		cfg.Appliance.CredentialFile = o.CredentialFile
	}
	if o.NoSSLVerify {
		cfg.Appliance.SSLVerify = false
	}
	if o.Interface != "" {
		cfg.DefaultInterface = o.Interface
	}
	if o.Debug {
		cfg.Debug = true
	}
	if o.MetricsFile != "" {
		cfg.MetricsFile = o.MetricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration invalid: %w", err)
	}
	return cfg, nil
}

func (o *Options) logger(cfg *config.Config) *logging.Logger {
	lc := logging.DefaultConfig()
	lc.JSON = o.LogJSON
	if cfg.Debug {
		lc.Level = logging.LevelDebug
	}
	logging.SetProcessName(brand.BinaryName)
	l := logging.New(lc)
	logging.SetDefault(l)
	return l
}

func (o *Options) loadCatalog(cfg *config.Config, log *logging.Logger) (*zone.Catalog, error) {
	path, err := cfg.ResolveZonesFile(o.ZonesFile)
	if err != nil {
		return nil, err
	}
	cat, err := zone.LoadFile(path)
	if err != nil {
		return nil, err
	}
	log.WithComponent("zone").Info("loaded zones", "file", path, "zones", len(cat.Zones))
	return cat, nil
}

// invoker builds the appliance client from the resolved configuration.
func (o *Options) invoker(cfg *config.Config, log *logging.Logger) (appliance.Invoker, error) {
	if o.Invoker != nil {
		return o.Invoker, nil
	}
	creds, err := cfg.Appliance.Credentials()
	if err != nil {
		return nil, err
	}

	retry := appliance.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Appliance.Retries + 1

	opts := []appliance.ClientOption{
		appliance.WithCredentials(creds.Key, creds.Secret),
		appliance.WithTimeout(cfg.Appliance.Timeout),
		appliance.WithRetry(retry),
		appliance.WithUserAgent(brand.UserAgent(brand.Version)),
		appliance.WithLogger(log.WithComponent("appliance")),
	}
	if !cfg.Appliance.SSLVerify {
		log.Warn("TLS certificate verification disabled", "host", cfg.Appliance.Host)
		opts = append(opts, appliance.WithInsecureSkipVerify())
	} else if cfg.Appliance.CAFile != "" {
		opts = append(opts, appliance.WithCAFile(cfg.Appliance.CAFile))
	}
	return appliance.NewHTTPClient(cfg.Appliance.BaseURL(), opts...)
}

// session is everything a command needs to reconcile.
type session struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *metrics.Registry
	manager *reconcile.Manager
}

// connect loads config and catalog, builds the manager and checks that the
// appliance answers.
func (o *Options) connect(ctx context.Context, dryRun, assign bool) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	log := o.logger(cfg)
	cat, err := o.loadCatalog(cfg, log)
	if err != nil {
		return nil, err
	}
	inv, err := o.invoker(cfg, log)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, log: log}
	if cfg.MetricsFile != "" {
		s.metrics = metrics.Get()
	}
	s.manager = reconcile.New(cat, inv, reconcile.Options{
		DryRun:           dryRun,
		AssignVLANs:      assign && cfg.AssignVLANs,
		BridgeMap:        cfg.BridgeMap,
		DefaultInterface: cfg.DefaultInterface,
		LeaseTime:        cfg.LeaseTime,
		Logger:           log,
		Metrics:          s.metrics,
	})

	log.Info("connecting to appliance", "host", cfg.Appliance.Host, "port", cfg.Appliance.Port)
	if err := s.manager.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// writeMetrics exports the registry when a metrics file is configured.
func (s *session) writeMetrics() {
	if s.metrics == nil {
		return
	}
	if err := s.metrics.WriteTextfile(s.cfg.MetricsFile); err != nil {
		s.log.Warn("failed to write metrics", "file", s.cfg.MetricsFile, "error", err)
	}
}
