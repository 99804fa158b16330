package main

import (
	"fmt"
	"strings"

	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"
)

var exportedMetrics = []struct {
	name string
	help string
}{
	{"tsn_up", "1 when the qdisc listing over netlink succeeded"},
	{"tsn_qdisc_info", "one series per installed qdisc (mqprio, taprio, cbs, etf, ingress) with its handle and parent"},
	{"tsn_daemon_running", "running processes of ptp4l, phc2sys and iperf3"},
	{"tsn_nic_feature_enabled", "whether " + strings.Join(nicFeatures, ", ") + " is on for each --interface"},
}

func landingConfig(metricsPath string) web.LandingConfig {
	var b strings.Builder
	b.WriteString("<h3>Exported metrics</h3>\n<ul>\n")
	for _, m := range exportedMetrics {
		fmt.Fprintf(&b, "<li><code>%s</code>: %s</li>\n", m.name, m.help)
	}
	b.WriteString("</ul>\n")

	return web.LandingConfig{
		Name: "TSN Exporter",
		Description: "Reports the traffic shaping qdiscs, time sync daemons and NIC offload " +
			"state left behind by tsn_setup and tsn_scheduler",
		Version: version.Info(),
		Links: []web.LandingLinks{
			{
				Address:     metricsPath,
				Text:        "Metrics",
				Description: "qdisc, daemon and NIC feature metrics",
			},
		},
		ExtraHTML: b.String(),
	}
}
