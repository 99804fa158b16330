// Package generator turns a validated configuration into the ordered list of
// commands that set up traffic shaping and time synchronisation.
package generator

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/adaricorp/tsn-setup/config"
	"github.com/adaricorp/tsn-setup/iperf"
	"github.com/adaricorp/tsn-setup/script"
	"github.com/adaricorp/tsn-setup/tc"
	"github.com/adaricorp/tsn-setup/timesync"

	"github.com/pkg/errors"
)

type Mode int

const (
	// Time sync first, then qdiscs, then iperf3
	ModeDefault Mode = iota
	// Qdiscs first, then time sync; iperf3 is left alone
	ModeReInit
	// Only iperf3
	ModeIperf3
)

const (
	// Shell variable holding the root qdisc major for etf parents
	handleVariable = "HANDLE_ID"

	defaultTimeElapsed = 5
	ptpSocketPriority  = "2"
	syncSocketPriority = "1"
)

// Settle holds the pauses that let the driver and the time sync daemons
// settle between steps.
type Settle struct {
	// After deleting the root qdisc
	QdiscDelete time.Duration
	// After installing cbs
	Cbs time.Duration
	// After starting ptp4l, before pmc and phc2sys
	PtpSync time.Duration
	// Around the pmc call when only phc2sys is restarted
	Phc2sys time.Duration
}

func DefaultSettle() Settle {
	return Settle{
		QdiscDelete: 5 * time.Second,
		Cbs:         5 * time.Second,
		PtpSync:     30 * time.Second,
		Phc2sys:     2 * time.Second,
	}
}

// Apply overrides s with the values set in c.
func (s Settle) Apply(c *config.Settle) Settle {
	if c == nil {
		return s
	}

	seconds := func(v *float64, d *time.Duration) {
		if v != nil {
			*d = time.Duration(*v * float64(time.Second))
		}
	}
	seconds(c.QdiscDelete, &s.QdiscDelete)
	seconds(c.Cbs, &s.Cbs)
	seconds(c.PtpSync, &s.PtpSync)
	seconds(c.Phc2sys, &s.Phc2sys)

	return s
}

type Options struct {
	Mode Mode
	// Zero value means DefaultSettle
	Settle Settle
	Logger *slog.Logger
}

type Result struct {
	Script *script.Script
	// Separate client command, nil unless iperf3 has a client target
	Iperf3Client *script.Line
}

type generator struct {
	logger *slog.Logger
	settle Settle
	out    *script.Script
	result *Result
}

// Check validates cfg for the given mode. Only the sections the mode reads
// are checked; iperf3 has no required keys.
func Check(cfg *config.Config, mode Mode) error {
	if mode == ModeIperf3 {
		return nil
	}

	if err := config.EnsureKeys(
		"config",
		config.Key{Name: "tc_group", Present: cfg.TcGroup != nil},
	); err != nil {
		return err
	}

	return cfg.Validate()
}

// Generate validates cfg and assembles the commands. Nothing is assembled
// when validation fails.
func Generate(cfg *config.Config, opts Options) (*Result, error) {
	if err := Check(cfg, opts.Mode); err != nil {
		return nil, err
	}

	settle := opts.Settle
	if settle == (Settle{}) {
		settle = DefaultSettle()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &generator{
		logger: logger,
		settle: settle.Apply(cfg.Settle),
		out:    script.New(),
	}
	g.result = &Result{Script: g.out}

	switch opts.Mode {
	case ModeIperf3:
		g.iperf3(cfg.Iperf3)
	case ModeReInit:
		if err := g.tcGroup(cfg.TcGroup); err != nil {
			return nil, err
		}
		g.timeSync(cfg)
	default:
		g.timeSync(cfg)
		if err := g.tcGroup(cfg.TcGroup); err != nil {
			return nil, err
		}
		g.iperf3(cfg.Iperf3)
	}

	return g.result, nil
}

func (g *generator) timeSync(cfg *config.Config) {
	g.ptp(cfg.Ptp)
	g.phc2sys(cfg.Phc2sys)
	g.customSyncA(cfg.CustomSyncA)
	g.customSyncB(cfg.CustomSyncB)
}

func (g *generator) tcGroup(sections []config.TcSection) error {
	for i, section := range sections {
		if err := g.tcSection(section); err != nil {
			return errors.Wrapf(err, "tc_group[%d]", i)
		}
	}
	return nil
}

func (g *generator) tcSection(s config.TcSection) error {
	if s.IsEmpty() {
		return nil
	}

	iface := config.Str(s.Interface)
	g.logger.Debug("Generating tc commands", "interface", iface)

	g.out.Append(script.Line{Args: tc.DeleteRootCommand(iface), Stderr: "/dev/null"})
	g.out.Sleep(g.settle.QdiscDelete)

	// taprio wins when both schedulers are configured
	switch {
	case s.Taprio != nil:
		if err := g.taprio(iface, s.Taprio); err != nil {
			return err
		}
	case s.Mqprio != nil:
		if err := g.mqprio(iface, s.Mqprio); err != nil {
			return err
		}
	}

	if s.Cbs != nil {
		if err := g.cbs(iface, s.Cbs); err != nil {
			return err
		}
	}

	if len(s.Etf) > 0 {
		g.out.Append(script.Raw(tc.HandleProbe(iface, handleVariable)))
		for _, e := range s.Etf {
			if err := g.etf(iface, e); err != nil {
				return err
			}
		}
	}

	if len(s.VlanRx) > 0 {
		for _, args := range tc.IngressCommands(iface) {
			g.out.Run(args...)
		}
		for _, v := range s.VlanRx {
			args, err := tc.VlanRx{
				Interface:    iface,
				VlanPriority: v.VlanPriority.String(),
				RxHwQueue:    v.RxHwQueue.String(),
			}.Command()
			if err != nil {
				return err
			}
			g.out.Run(args...)
		}
	}

	for _, cmd := range s.RunSh {
		g.logger.Warn("Adding raw shell command", "command", cmd)
		g.out.Append(script.Raw(cmd))
	}

	return nil
}

func mapping(sched *config.Scheduler) (tc.PriorityMap, error) {
	def, _ := sched.Mapping.Default()
	overrides, err := sched.Mapping.Overrides()
	if err != nil {
		return tc.PriorityMap{}, err
	}
	return tc.BuildMapping(def, overrides)
}

func numTc(s config.Scalar) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s.String())
	if err != nil {
		return 0, errors.Wrapf(err, "Invalid num_tc %q", s)
	}
	return n, nil
}

// Handles are optional here, the qdisc builders report missing ones
func checkHandles(handles ...config.Scalar) error {
	for _, h := range handles {
		if h == "" {
			continue
		}
		if _, err := tc.ParseHandle(h.String()); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) taprio(iface string, sched *config.Scheduler) error {
	if err := checkHandles(sched.Handle); err != nil {
		return err
	}

	m, err := mapping(sched)
	if err != nil {
		return err
	}
	n, err := numTc(sched.NumTc)
	if err != nil {
		return err
	}

	elapsed := defaultTimeElapsed
	if sched.TimeElapsed != nil {
		elapsed = int(*sched.TimeElapsed)
	}

	taprio := tc.Taprio{
		Interface: iface,
		Handle:    sched.Handle.String(),
		NumTc:     n,
		Map:       m,
		Queues:    sched.Queues.String(),
		BaseTime:  fmt.Sprintf("$(expr $(date +%%s) + %d)000000000", elapsed),
		Flags:     sched.Flags.String(),
	}

	if sched.TxtimeDelay != "" {
		// txtime-delay only exists in txtime-assist mode
		if taprio.Flags == "" {
			taprio.Flags = "0x1"
		}
		taprio.TxtimeDelay = sched.TxtimeDelay.String()
		taprio.ClockID = tc.ClockTAI
	} else if taprio.Flags == "" {
		taprio.Flags = "0x2"
	}

	for _, e := range sched.Schedule {
		taprio.Schedule = append(taprio.Schedule, tc.GateEntry{
			Command:  e.Command.String(),
			GateMask: e.GateMask.String(),
			Interval: e.Duration.String(),
		})
	}

	args, err := taprio.Command()
	if err != nil {
		return err
	}

	g.logger.Debug("Base time set in the future", "seconds", elapsed)
	g.out.Run(args...)

	return nil
}

func (g *generator) mqprio(iface string, sched *config.Scheduler) error {
	if err := checkHandles(sched.Handle); err != nil {
		return err
	}

	m, err := mapping(sched)
	if err != nil {
		return err
	}
	n, err := numTc(sched.NumTc)
	if err != nil {
		return err
	}

	// Unlike the immediate variant, generated scripts always name the handle
	if sched.Handle == "" {
		return errors.Wrap(tc.ErrMissingParameter, "mqprio handle")
	}

	args, err := tc.Mqprio{
		Interface: iface,
		Handle:    sched.Handle.String(),
		NumTc:     n,
		Map:       m,
		Queues:    sched.Queues.String(),
	}.Command()
	if err != nil {
		return err
	}

	g.out.Run(args...)

	return nil
}

func (g *generator) cbs(iface string, c *config.Cbs) error {
	if err := checkHandles(*c.Handle, *c.Parent); err != nil {
		return err
	}

	args, err := tc.Cbs{
		Interface: iface,
		Handle:    c.Handle.String(),
		Parent:    c.Parent.String(),
		Queue:     *c.Queue,
		IdleSlope: c.IdleSlope.String(),
		SendSlope: c.SendSlope.String(),
		HiCredit:  c.HiCredit.String(),
		LoCredit:  c.LoCredit.String(),
		Offload:   c.Offload.String(),
	}.Command()
	if err != nil {
		return err
	}

	g.out.Run(args...)
	g.out.Sleep(g.settle.Cbs)

	return nil
}

func (g *generator) etf(iface string, e config.Etf) error {
	args, err := tc.Etf{
		Interface:     iface,
		Parent:        "$" + handleVariable + ":",
		Queue:         *e.Queue,
		ClockID:       tc.ClockTAI,
		Delta:         e.Delta.String(),
		Offload:       bool(e.Offload),
		DeadlineMode:  bool(e.DeadlineMode),
		SkipSockCheck: bool(e.SkipSock),
	}.Command()
	if err != nil {
		return err
	}

	g.out.Run(args...)

	return nil
}

func (g *generator) ptp(c *config.Ptp) {
	// Running daemons are only replaced when asked to
	if c == nil || !c.IgnoreExisting {
		return
	}

	g.out.Append(script.Kill("ptp4l"))
	g.out.Append(timesync.Ptp4l{
		Interface:      config.Str(c.Interface),
		ConfigFile:     timesync.ConfigPath(c.ConfigDir, c.GptpFile),
		SocketPriority: c.SocketPrio.Or(ptpSocketPriority),
		Cpu:            c.CpuAffinity.String(),
	}.Line())
	g.out.Sleep(g.settle.PtpSync)
}

func (g *generator) phc2sys(c *config.Phc2sys) {
	if c == nil || !c.IgnoreExisting {
		return
	}

	g.out.Append(script.Kill("phc2sys"))
	g.out.Sleep(g.settle.Phc2sys)
	g.out.Append(timesync.DefaultGrandmaster.Line())
	g.out.Sleep(g.settle.Phc2sys)
	g.out.Append(timesync.Phc2sys{
		Clock:     config.Str(c.Clock),
		Interface: config.Str(c.Interface),
		Cpu:       c.CpuAffinity.String(),
	}.Line())
}

// customSyncA runs ptp4l on two ports independently and disciplines the
// system clock from the first.
func (g *generator) customSyncA(c *config.CustomSync) {
	if c == nil || !c.IgnoreExisting {
		return
	}

	configFile := timesync.ConfigPath(c.ConfigDir, c.GptpFile)
	priority := c.SocketPrio.Or(syncSocketPriority)

	g.out.Append(script.Kill("phc2sys"), script.Kill("ptp4l"))
	g.out.Append(
		timesync.Ptp4l{
			Interface:      config.Str(c.Interface),
			ConfigFile:     configFile,
			SocketPriority: priority,
			Cpu:            c.CpuAffinity.String(),
			LogFile:        timesync.Ptp4lLog,
		}.Line(),
		timesync.Ptp4l{
			Interface:      config.Str(c.Interface2),
			ConfigFile:     configFile,
			SocketPriority: priority,
			Cpu:            c.CpuAffinity.String(),
			LogFile:        timesync.Ptp4l2Log,
		}.Line(),
	)
	g.out.Sleep(g.settle.PtpSync)
	g.out.Append(timesync.DefaultGrandmaster.Line())
	g.out.Append(timesync.Phc2sys{
		Clock:     "CLOCK_REALTIME",
		Interface: config.Str(c.Interface),
		Cpu:       c.CpuAffinity.String(),
	}.Line())
}

// customSyncB runs a single ptp4l boundary clock across both ports.
func (g *generator) customSyncB(c *config.CustomSync) {
	if c == nil || !c.IgnoreExisting {
		return
	}

	configFile := timesync.ConfigPath(c.ConfigDir, c.GptpFile)

	g.out.Append(script.Kill("phc2sys"), script.Kill("ptp4l"))
	g.out.Append(timesync.Ptp4l{
		Interface:         config.Str(c.Interface),
		BoundaryInterface: config.Str(c.Interface2),
		ConfigFile:        configFile,
		SocketPriority:    c.SocketPrio.Or(syncSocketPriority),
		Cpu:               c.CpuAffinity.String(),
	}.Line())
	g.out.Sleep(g.settle.PtpSync)
	g.out.Append(timesync.BoundaryGrandmaster.Line())
	g.out.Append(timesync.Phc2sys{
		ConfigFile: configFile,
		Cpu:        c.CpuAffinity.String(),
	}.Line())
}

func (g *generator) iperf3(c *config.Iperf3) {
	if c == nil {
		return
	}

	g.out.Append(script.Kill("iperf3"))

	if c.RunServer {
		g.out.Append(iperf.Server(c.CpuAffinity.String()))
	}

	if c.ClientTargetAddress != "" {
		client := iperf.Client{
			Target:        c.ClientTargetAddress.String(),
			Cpu:           c.CpuAffinity.String(),
			RuntimeSec:    c.ClientRuntimeInSec.String(),
			BandwidthMbps: c.ClientBandwidthInMbps.String(),
			LogFile:       c.LogFile,
		}.Line()
		g.result.Iperf3Client = &client
	}
}
