package main

import (
	"fmt"
	"log"
	"os"

	"github.com/adaricorp/tsn-setup/host"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

var (
	version = "dev"
	date    = "unknown"

	ifaceNames   *[]string
	showFeatures *bool
)

// Print program usage
func printUsage(fs ff.Flags) {
	fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
	os.Exit(1)
}

// Print program version
func printVersion() {
	fmt.Printf("tsn_status v%s built on %s\n", version, date)
	os.Exit(0)
}

func init() {
	fs := ff.NewFlagSet("tsn_status")
	displayVersion := fs.BoolLong("version", "Print version")
	ifaceNames = fs.StringSetLong(
		"interface",
		"Interface(s) to show qdiscs for, all interfaces when unset",
	)
	showFeatures = fs.BoolLong(
		"features",
		"Show TSN related NIC features of the selected interfaces",
	)

	err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("TSN_STATUS"),
		ff.WithEnvVarSplit(" "),
	)
	if err != nil {
		printUsage(fs)
	}

	if *displayVersion {
		printVersion()
	}
}

func main() {
	if len(*ifaceNames) == 0 {
		qdiscs, err := host.Qdiscs("")
		if err != nil {
			log.Fatalf("Error listing qdiscs: %v", err)
		}
		host.PrintQdiscs(os.Stdout, "Qdiscs", qdiscs)
	}

	for _, ifaceName := range *ifaceNames {
		qdiscs, err := host.Qdiscs(ifaceName)
		if err != nil {
			log.Fatalf("Error listing qdiscs: %v", err)
		}
		host.PrintQdiscs(os.Stdout, "Qdiscs - "+ifaceName, qdiscs)

		if *showFeatures {
			features, err := host.Features(ifaceName, host.HwTcOffload)
			if err != nil {
				log.Fatalf("Error reading NIC features: %v", err)
			}
			host.PrintFeatures(os.Stdout, ifaceName, features, []string{host.HwTcOffload})
		}
	}

	daemons, err := host.Daemons(host.TimeSyncDaemons...)
	if err != nil {
		log.Fatalf("Error reading process list: %v", err)
	}
	host.PrintDaemons(os.Stdout, daemons)
}
