package main

import (
	"slices"

	"github.com/adaricorp/tsn-setup/host"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/maps"
)

const (
	namespace = "tsn"
)

var (
	up = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "up"),
		"Was the last qdisc listing successful.",
		nil,
		nil,
	)

	qdiscInfo = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "qdisc", "info"),
		"Installed qdiscs.",
		[]string{"interface", "kind", "handle", "parent"},
		nil,
	)

	daemonRunning = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "daemon", "running"),
		"Number of running processes of a time sync or traffic daemon.",
		[]string{"daemon"},
		nil,
	)

	nicFeatureEnabled = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "nic_feature", "enabled"),
		"Is a TSN related NIC feature enabled.",
		[]string{"interface", "feature"},
		nil,
	)

	nicFeatures = []string{host.HwTcOffload}
)

type tsnCollector struct {
	logger log.Logger
	ifaces []string

	// Replaced in tests
	qdiscs   func(iface string) ([]host.Qdisc, error)
	daemons  func(names ...string) ([]host.Daemon, error)
	features func(iface string, names ...string) (map[string]bool, error)

	up                *prometheus.Desc
	qdiscInfo         *prometheus.Desc
	daemonRunning     *prometheus.Desc
	nicFeatureEnabled *prometheus.Desc
}

func newTsnCollector(logger log.Logger, ifaces []string) *tsnCollector {
	return &tsnCollector{
		logger:            logger,
		ifaces:            ifaces,
		qdiscs:            host.Qdiscs,
		daemons:           host.Daemons,
		features:          host.Features,
		up:                up,
		qdiscInfo:         qdiscInfo,
		daemonRunning:     daemonRunning,
		nicFeatureEnabled: nicFeatureEnabled,
	}
}

func (collector *tsnCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.up
	ch <- collector.qdiscInfo
	ch <- collector.daemonRunning
	ch <- collector.nicFeatureEnabled
}

func (collector *tsnCollector) Collect(ch chan<- prometheus.Metric) {
	collector.collectQdiscs(ch)
	collector.collectDaemons(ch)
	collector.collectNicFeatures(ch)
}

func (collector *tsnCollector) collectQdiscs(ch chan<- prometheus.Metric) {
	var qdiscs []host.Qdisc

	ifaces := collector.ifaces
	if len(ifaces) == 0 {
		// Every interface
		ifaces = []string{""}
	}

	success := 1.0
	for _, iface := range ifaces {
		found, err := collector.qdiscs(iface)
		if err != nil {
			// nolint:errcheck
			level.Error(collector.logger).Log(
				"msg", "Error listing qdiscs",
				"interface", iface,
				"err", err,
			)
			success = 0
			continue
		}
		qdiscs = append(qdiscs, found...)
	}

	for _, q := range qdiscs {
		ch <- prometheus.MustNewConstMetric(
			collector.qdiscInfo,
			prometheus.GaugeValue,
			float64(1),
			q.Interface,
			q.Kind,
			q.HandleString(),
			q.ParentString(),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		collector.up,
		prometheus.GaugeValue,
		success,
	)
}

func (collector *tsnCollector) collectDaemons(ch chan<- prometheus.Metric) {
	daemons, err := collector.daemons(host.TimeSyncDaemons...)
	if err != nil {
		// nolint:errcheck
		level.Error(collector.logger).Log("msg", "Error getting process list", "err", err)
		return
	}

	for _, d := range daemons {
		ch <- prometheus.MustNewConstMetric(
			collector.daemonRunning,
			prometheus.GaugeValue,
			float64(len(d.Pids)),
			d.Name,
		)
	}
}

func (collector *tsnCollector) collectNicFeatures(ch chan<- prometheus.Metric) {
	for _, iface := range collector.ifaces {
		features, err := collector.features(iface, nicFeatures...)
		if err != nil {
			// nolint:errcheck
			level.Error(collector.logger).Log(
				"msg", "Error reading NIC features",
				"interface", iface,
				"err", err,
			)
			continue
		}

		names := maps.Keys(features)
		slices.Sort(names)

		for _, name := range names {
			enabled := 0.0
			if features[name] {
				enabled = 1
			}
			ch <- prometheus.MustNewConstMetric(
				collector.nicFeatureEnabled,
				prometheus.GaugeValue,
				enabled,
				iface,
				name,
			)
		}
	}
}
