package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-kit/log/level"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/promlog"
	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"
)

// Print program usage
func printUsage(fs ff.Flags) {
	fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
	os.Exit(1)
}

// Print program version
func printVersion() {
	fmt.Printf("tsn_exporter %v %v\n", version.Info(), version.BuildContext())
	os.Exit(0)
}

func main() {
	fs := ff.NewFlagSet("tsn_exporter")
	displayVersion := fs.BoolLong("version", "Print version")
	listenAddr := fs.StringSetLong(
		"web.listen-address",
		"Addresses on which to expose the TSN metrics and landing page. Repeatable for multiple addresses. (default: :9813)",
	)
	metricsPath := fs.StringLong(
		"web.telemetry-path",
		"/metrics",
		"Path under which to expose qdisc, time sync daemon and NIC feature metrics.",
	)
	webConfigFile := fs.StringLong(
		"web.config.file",
		"",
		"Path to configuration file that can enable TLS or authentication. See: https://github.com/prometheus/exporter-toolkit/blob/master/docs/web-configuration.md",
	)
	ifaceNames := fs.StringSetLong(
		"interface",
		"Interface to report qdiscs and the hw-tc-offload NIC feature for. Repeatable. Without it qdiscs of every interface are reported and NIC features are skipped.",
	)
	logLevel := fs.StringEnumLong(
		"log.level",
		"Only log messages with the given severity or above.",
		promlog.LevelFlagOptions...,
	)
	logFormat := fs.StringEnumLong(
		"log.format",
		"Output format of log messages.",
		promlog.FormatFlagOptions...,
	)

	err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("TSN_EXPORTER"),
		ff.WithEnvVarSplit(" "),
	)

	if err != nil {
		printUsage(fs)
	}

	if *displayVersion {
		printVersion()
	}

	promlogConfig := &promlog.Config{
		Level:  &promlog.AllowedLevel{},
		Format: &promlog.AllowedFormat{},
	}
	if err := promlogConfig.Level.Set(*logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting log level: %v\n", err)
	}
	if err := promlogConfig.Format.Set(*logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting log format: %v\n", err)
	}
	logger := promlog.New(promlogConfig)

	if len(*listenAddr) == 0 {
		// Set default value
		listenAddr = &[]string{":9813"}
	}

	webConfig := web.FlagConfig{
		WebListenAddresses: listenAddr,
		WebConfigFile:      webConfigFile,
	}

	// nolint:errcheck
	level.Info(logger).Log("msg", "Starting tsn_exporter", "version", version.Info())
	// nolint:errcheck
	level.Info(logger).Log("build_context", version.BuildContext())

	versionCollector := versioncollector.NewCollector("tsn")
	prometheus.MustRegister(versionCollector)

	tsnCollector := newTsnCollector(logger, *ifaceNames)
	prometheus.MustRegister(tsnCollector)

	http.Handle(*metricsPath, promhttp.Handler())
	if *metricsPath != "/" {
		landingPage, err := web.NewLandingPage(landingConfig(*metricsPath))
		if err != nil {
			// nolint:errcheck
			level.Error(logger).Log("msg", "Error creating landing page", "err", err)
			os.Exit(1)
		}
		http.Handle("/", landingPage)
	}

	srv := &http.Server{}
	if err := web.ListenAndServe(srv, &webConfig, logger); err != nil {
		// nolint:errcheck
		level.Error(logger).Log("msg", "Error starting HTTP server", "err", err)
		os.Exit(1)
	}
}
