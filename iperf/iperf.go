package iperf

import (
	"github.com/adaricorp/tsn-setup/script"
)

const (
	DefaultCpuAffinity   = "3"
	DefaultRuntime       = "5000"
	DefaultBandwidthMbps = "1"
	DefaultClientLog     = "/var/log/iperf3_client.log"
)

// Server starts a daemonised iperf3 server pinned to cpu.
func Server(cpu string) script.Line {
	return script.Line{
		Args:       []string{"iperf3", "-s", "-D", "--affinity", or(cpu, DefaultCpuAffinity)},
		Background: true,
	}
}

// Client is a UDP iperf3 client run.
type Client struct {
	Target        string
	Cpu           string
	RuntimeSec    string
	BandwidthMbps string
	LogFile       string
}

func (c Client) Line() script.Line {
	return script.Command(
		"iperf3",
		"-c", c.Target,
		"--affinity", or(c.Cpu, DefaultCpuAffinity),
		"-u",
		"-t", or(c.RuntimeSec, DefaultRuntime),
		"--logfile", or(c.LogFile, DefaultClientLog),
		"-b", or(c.BandwidthMbps, DefaultBandwidthMbps)+"M",
	)
}

func or(s string, def string) string {
	if s == "" {
		return def
	}
	return s
}
