package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/adaricorp/tsn-setup/config"
	"github.com/adaricorp/tsn-setup/generator"
	"github.com/adaricorp/tsn-setup/script"

	"github.com/danjacques/gofslock/fslock"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

var (
	version = "dev"
	date    = "unknown"

	lockPath         = "/var/lock/tsn_setup"
	mode             = generator.ModeDefault
	configFilePath   string
	dryRun           *bool
	runScript        *bool
	outputPath       *string
	iperf3OutputPath *string
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
	fmt.Printf("tsn_setup v%s built on %s\n", version, date)
	os.Exit(0)
}

func init() {
	fs := ff.NewFlagSet("tsn_setup")
	displayVersion := fs.BoolLong("version", "Print version")
	logLevel = fs.StringEnumLong(
		"log-level",
		"Log level: debug, info, warn, error",
		"info",
		"debug",
		"error",
		"warn",
	)
	dryRun = fs.Bool('d', "dry-run", "Print the generated script instead of writing it")
	reInit := fs.BoolLong("re-init", "Set up qdiscs before time sync, leave iperf3 alone")
	iperf3Only := fs.BoolLong("iperf3", "Only (re)start iperf3")
	outputPath = fs.StringLong("output", "setup-generated.sh", "Path of the generated script")
	iperf3OutputPath = fs.StringLong(
		"iperf3-output",
		"iperf3-gen-cmd.sh",
		"Path of the generated iperf3 client script",
	)
	runScript = fs.BoolLong("run", "Run the generated script once written")

	err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("TSN_SETUP"),
	)
	if err != nil {
		printUsage(fs)
	}

	if *displayVersion {
		printVersion()
	}

	args := fs.GetArgs()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Expected exactly one configuration file\n")
		printUsage(fs)
	}
	configFilePath = args[0]

	if *reInit && *iperf3Only {
		fmt.Fprintf(os.Stderr, "--re-init and --iperf3 can't be used together\n")
		printUsage(fs)
	}
	switch {
	case *reInit:
		mode = generator.ModeReInit
	case *iperf3Only:
		mode = generator.ModeIperf3
	}

	if *dryRun && *runScript {
		fmt.Fprintf(os.Stderr, "--dry-run and --run can't be used together\n")
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

	// stdout carries the script in dry-run mode
	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slogLevel,
		}),
	)
	slog.SetDefault(logger)
}

func fail(msg string, err error) {
	slog.Error(msg, "file", configFilePath, "error", err.Error())
	os.Exit(generator.ExitCode(err))
}

func main() {
	opts := generator.Options{
		Mode:   mode,
		Logger: slog.Default(),
	}

	if *dryRun {
		cfg, err := config.Load(configFilePath)
		if err != nil {
			fail("Couldn't load configuration file", err)
		}

		result, err := generator.Generate(cfg, opts)
		if err != nil {
			fail("Couldn't generate commands", err)
		}

		os.Stdout.Write(result.Script.Bytes())
		if result.Iperf3Client != nil {
			fmt.Printf("# %s\n%s\n", *iperf3OutputPath, result.Iperf3Client.String())
		}
		return
	}

	result, err := generator.WriteScript(configFilePath, *outputPath, opts)
	if err != nil {
		fail("Couldn't generate script", err)
	}

	slog.Info("Wrote script", "path", *outputPath, "commands", result.Script.Len())

	if result.Iperf3Client != nil {
		client := script.New()
		client.Append(*result.Iperf3Client)
		if err := script.WriteFile(*iperf3OutputPath, client); err != nil {
			fail("Couldn't write iperf3 client script", err)
		}
		slog.Info("Wrote iperf3 client script", "path", *iperf3OutputPath)
	}

	if !*runScript {
		return
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Running script", "path", *outputPath)

	output, err := script.NewExecutor(slog.Default()).Output(ctx, "sh", *outputPath)
	os.Stdout.Write(output)
	if err != nil {
		slog.Error("Script failed", "path", *outputPath, "error", err.Error())
		lock.Unlock()
		os.Exit(1)
	}
}
