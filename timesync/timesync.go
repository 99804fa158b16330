// Package timesync builds the ptp4l, phc2sys and pmc invocations used to
// bring up gPTP on TSN interfaces.
package timesync

import (
	"fmt"
	"path"

	"github.com/adaricorp/tsn-setup/script"
)

const (
	DefaultConfigDir = "common"
	DefaultGptpFile  = "gPTP.cfg"
	DefaultCpu       = "1"

	Ptp4lLog   = "/var/log/ptp4l.log"
	Ptp4l2Log  = "/var/log/ptp4l2.log"
	PmcLog     = "/var/log/pmc.log"
	Phc2sysLog = "/var/log/phc2sys.log"
)

// Ptp4l describes one ptp4l instance.
type Ptp4l struct {
	Interface string
	// Second port, turns the instance into a JBOD boundary clock
	BoundaryInterface string
	ConfigFile        string
	SocketPriority    string
	Cpu               string
	LogFile           string
}

func (p Ptp4l) Args() []string {
	args := []string{"taskset", "-c", or(p.Cpu, DefaultCpu), "ptp4l", "-mP2Hi", p.Interface}

	if p.BoundaryInterface != "" {
		args = append(args,
			"-i", p.BoundaryInterface,
			"-f", p.ConfigFile,
			"--step_threshold=2",
			"--socket_priority", p.SocketPriority,
			"--boundary_clock_jbod=1",
		)
		return args
	}

	return append(args,
		"--step_threshold=2",
		"-f", p.ConfigFile,
		"--socket_priority", p.SocketPriority,
	)
}

// Line starts ptp4l in the background.
func (p Ptp4l) Line() script.Line {
	return script.Async(or(p.LogFile, Ptp4lLog), p.Args()...)
}

// GrandmasterSettings are pushed through pmc before phc2sys starts.
type GrandmasterSettings struct {
	CurrentUtcOffset      int
	CurrentUtcOffsetValid bool
}

var (
	// Used alongside phc2sys following a single ptp4l port
	DefaultGrandmaster = GrandmasterSettings{CurrentUtcOffset: 37}
	// Used by the boundary clock setup
	BoundaryGrandmaster = GrandmasterSettings{CurrentUtcOffsetValid: true}
)

func (g GrandmasterSettings) message() string {
	valid := 0
	if g.CurrentUtcOffsetValid {
		valid = 1
	}

	return fmt.Sprintf(
		"SET GRANDMASTER_SETTINGS_NP clockClass 248 clockAccuracy 0xfe "+
			"offsetScaledLogVariance 0xffff currentUtcOffset %d leap61 0 leap59 0 "+
			"currentUtcOffsetValid %d ptpTimescale 1 timeTraceable 1 "+
			"frequencyTraceable 0 timeSource 0xa0",
		g.CurrentUtcOffset,
		valid,
	)
}

// Line sends the settings to the local ptp4l via pmc.
func (g GrandmasterSettings) Line() script.Line {
	return script.Async(PmcLog, "pmc", "-u", "-b", "0", "-t", "1", script.Quote(g.message()))
}

// Phc2sys describes one phc2sys instance.
type Phc2sys struct {
	// Clock to discipline, e.g. CLOCK_REALTIME
	Clock string
	// Source PHC interface
	Interface string
	// Automatic mode using the ptp4l configuration file
	ConfigFile string
	Cpu        string
}

func (p Phc2sys) Args() []string {
	args := []string{"taskset", "-c", or(p.Cpu, DefaultCpu), "phc2sys"}

	if p.Interface == "" {
		return append(args, "-arrml", "7", "-f", p.ConfigFile)
	}

	return append(args,
		"-c", or(p.Clock, "CLOCK_REALTIME"),
		"--step_threshold=1",
		"-s", p.Interface,
		"--transportSpecific=1",
		"-O", "0",
		"-w",
		"-ml", "7",
	)
}

func (p Phc2sys) Line() script.Line {
	return script.Async(Phc2sysLog, p.Args()...)
}

// ConfigPath joins the gPTP configuration directory and file, falling back to
// the defaults.
func ConfigPath(dir string, file string) string {
	return path.Join(or(dir, DefaultConfigDir), or(file, DefaultGptpFile))
}

func or(s string, def string) string {
	if s == "" {
		return def
	}
	return s
}
