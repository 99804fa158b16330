package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/adaricorp/tsn-setup/host"
	"github.com/adaricorp/tsn-setup/script"
	"github.com/adaricorp/tsn-setup/tc"

	"github.com/danjacques/gofslock/fslock"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var (
	version = "dev"
	date    = "unknown"

	lockPath         = "/var/lock/tsn_scheduler"
	ifaceName        *string
	queueMapPath     *string
	timeElapsed      *int
	gateSchedulePath *string
	delta            *string
	baseTimePath     *string
	hwTcOffload      *bool
	logLevel         *string
	slogLevel        *slog.LevelVar = new(slog.LevelVar)
)

// Print program usage
func printUsage(fs ff.Flags) {
	fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
	os.Exit(1)
}

// Print program version
func printVersion() {
	fmt.Printf("tsn_scheduler v%s built on %s\n", version, date)
	os.Exit(0)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func init() {
	fs := ff.NewFlagSet("tsn_scheduler")
	displayVersion := fs.BoolLong("version", "Print version")
	logLevel = fs.StringEnumLong(
		"log-level",
		"Log level: debug, info, warn, error",
		"info",
		"debug",
		"error",
		"warn",
	)
	ifaceName = fs.String('i', "interface", "", "Interface to schedule")
	queueMapPath = fs.String('q', "queue-map", "", "Priority to queue mapping file")
	timeElapsed = fs.Int(
		'e',
		"time-elapsed",
		5,
		"Seconds in the future to start the schedule, at least 3",
	)
	gateSchedulePath = fs.String(
		'g',
		"gate-schedule",
		"",
		"Gate schedule file, installs taprio instead of mqprio",
	)
	delta = fs.StringLong("delta", "200000", "Default etf delta in nanoseconds")
	baseTimePath = fs.StringLong("base-time-file", "base_time", "File to write the base time to")
	hwTcOffload = fs.BoolLong("hw-tc-offload", "Enable the hw-tc-offload NIC feature first")

	err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("TSN_SCHEDULER"),
	)
	if err != nil {
		printUsage(fs)
	}

	if *displayVersion {
		printVersion()
	}

	if *ifaceName == "" {
		fmt.Fprintf(os.Stderr, "No network interface specified\n")
		printUsage(fs)
	}
	if _, err := net.InterfaceByName(*ifaceName); err != nil {
		fmt.Fprintf(os.Stderr, "Interface %v does not exist\n", *ifaceName)
		printUsage(fs)
	}

	if !isFile(*queueMapPath) {
		fmt.Fprintf(os.Stderr, "%v is not a valid file\n", *queueMapPath)
		printUsage(fs)
	}

	if *gateSchedulePath != "" && !isFile(*gateSchedulePath) {
		fmt.Fprintf(os.Stderr, "%v is not a valid file\n", *gateSchedulePath)
		printUsage(fs)
	}

	if *timeElapsed < 3 {
		fmt.Fprintf(os.Stderr, "Time elapsed must be at least 3 seconds\n")
		printUsage(fs)
	}

	switch *logLevel {
	case "debug":
		slogLevel.Set(slog.LevelDebug)
	case "info":
		slogLevel.Set(slog.LevelInfo)
	case "warn":
		slogLevel.Set(slog.LevelWarn)
	case "error":
		slogLevel.Set(slog.LevelError)
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slogLevel,
		}),
	)
	slog.SetDefault(logger)
}

// Base time in nanoseconds on CLOCK_TAI, elapsed seconds from now and
// rounded down to the second
func baseTime(elapsed int) (int64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_TAI, &ts); err != nil {
		return 0, errors.Wrap(err, "Couldn't read CLOCK_TAI")
	}
	return tc.BaseTime(ts.Nano(), elapsed), nil
}

func readPriorities(path string) ([]tc.PriorityEntry, tc.PriorityMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, tc.PriorityMap{}, errors.Wrapf(err, "Couldn't open %v", path)
	}
	defer f.Close()

	entries, err := tc.ParsePriorityFile(f)
	if err != nil {
		return nil, tc.PriorityMap{}, errors.Wrapf(err, "Couldn't parse %v", path)
	}

	m, err := tc.MappingFromEntries(defaultQueue, entries)
	if err != nil {
		return nil, tc.PriorityMap{}, err
	}

	return entries, m, nil
}

func readGateSchedule(path string) ([]tc.GateEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Couldn't open %v", path)
	}
	defer f.Close()

	entries, err := tc.ParseGateFile(f)
	if err != nil {
		return nil, errors.Wrapf(err, "Couldn't parse %v", path)
	}
	return entries, nil
}

// Scheduler commands, root qdisc first
func schedulerLines(m tc.PriorityMap, gates []tc.GateEntry, base int64) ([]script.Line, error) {
	var (
		args []string
		err  error
	)

	if gates != nil {
		args, err = tc.Taprio{
			Interface: *ifaceName,
			Handle:    taprioHandle,
			NumTc:     numTc,
			Map:       m,
			Queues:    queues,
			BaseTime:  strconv.FormatInt(base, 10),
			Schedule:  gates,
			ClockID:   tc.ClockTAI,
		}.Command()
	} else {
		args, err = tc.Mqprio{
			Interface: *ifaceName,
			NumTc:     numTc,
			Map:       m,
			Queues:    queues,
		}.Command()
	}
	if err != nil {
		return nil, err
	}

	return []script.Line{script.Command(args...)}, nil
}

// One offloaded etf per priority file entry asking for it, on the class
// matching the entry's position
func etfLines(root uint32, entries []tc.PriorityEntry) ([]script.Line, error) {
	etfQueues, err := tc.EtfQueues(entries, numTc)
	if err != nil {
		return nil, err
	}

	lines := []script.Line{}
	for _, i := range etfQueues {
		entry := entries[i]

		d := *delta
		if entry.Delta != "" {
			d = entry.Delta
		}

		args, err := tc.Etf{
			Interface:    *ifaceName,
			Parent:       tc.HandleMajor(root),
			Queue:        i,
			ClockID:      tc.ClockTAI,
			Delta:        d,
			Offload:      true,
			DeadlineMode: entry.DeadlineMode(),
		}.Command()
		if err != nil {
			return nil, err
		}

		lines = append(lines, script.Command(args...), script.Sleep(etfSettle))
	}
	return lines, nil
}

func main() {
	// Acquire exclusive lock
	lock, err := fslock.Lock(lockPath)
	if err != nil {
		slog.Error(
			"Error acquiring exclusive lock, is another instance already running?",
			"error",
			err,
			"path",
			lockPath,
		)
		os.Exit(1)
	}
	defer lock.Unlock()

	slog.Info(
		"Starting tsn_scheduler",
		"version",
		version,
		"build_context",
		fmt.Sprintf(
			"go=%s, platform=%s",
			runtime.Version(),
			runtime.GOOS+"/"+runtime.GOARCH,
		),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("Scheduling failed", "interface", *ifaceName, "error", err.Error())
		stop()
		lock.Unlock()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	entries, m, err := readPriorities(*queueMapPath)
	if err != nil {
		return err
	}
	if _, err := tc.EtfQueues(entries, numTc); err != nil {
		return errors.Wrapf(err, "Couldn't use %v", *queueMapPath)
	}

	var gates []tc.GateEntry
	if *gateSchedulePath != "" {
		if gates, err = readGateSchedule(*gateSchedulePath); err != nil {
			return err
		}
	}

	if *hwTcOffload {
		previous, err := host.EnsureFeature(*ifaceName, host.HwTcOffload)
		if err != nil {
			return err
		}
		slog.Info("NIC feature enabled", "feature", host.HwTcOffload, "was", previous)
	}

	executor := script.NewExecutor(slog.Default())

	slog.Info("Deleting any existing qdisc")
	if err := executor.Run(ctx,
		script.Line{Args: tc.DeleteRootCommand(*ifaceName), Stderr: "/dev/null"},
		script.Sleep(deleteSettle),
	); err != nil {
		return err
	}

	base, err := baseTime(*timeElapsed)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*baseTimePath, []byte(strconv.FormatInt(base, 10)), 0644); err != nil {
		return errors.Wrapf(err, "Couldn't write base time to %v", *baseTimePath)
	}

	lines, err := schedulerLines(m, gates, base)
	if err != nil {
		return err
	}
	if err := executor.Run(ctx, lines...); err != nil {
		return err
	}

	kind := "mqprio"
	if gates != nil {
		kind = "taprio"
	}

	root, err := host.RootHandle(*ifaceName, kind)
	if err != nil {
		return err
	}
	slog.Debug("Found root qdisc", "kind", kind, "handle", tc.TcHandleString(root))

	lines, err = etfLines(root, entries)
	if err != nil {
		return err
	}
	if len(lines) > 0 {
		slog.Info("Adding etf qdiscs", "parent", tc.HandleMajor(root), "count", len(lines)/2)
	}
	if err := executor.Run(ctx, lines...); err != nil {
		return err
	}

	slog.Info(
		"Base time set in the future",
		"seconds", *timeElapsed,
		"base_time_ns", base,
		"file", *baseTimePath,
	)

	qdiscs, err := host.Qdiscs(*ifaceName)
	if err != nil {
		return err
	}
	host.PrintQdiscs(os.Stdout, "Qdiscs - "+*ifaceName, qdiscs)

	return nil
}
