package tc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var ErrMissingParameter = errors.New("Missing required parameter")

func missing(qdisc string, param string) error {
	return errors.Wrapf(ErrMissingParameter, "%s %s", qdisc, param)
}

// GateEntry is one taprio gate control list entry.
type GateEntry struct {
	// S, H or R; defaults to S (SetGates)
	Command  string
	GateMask string
	Interval string
}

func (g GateEntry) args() []string {
	command := g.Command
	if command == "" {
		command = "S"
	}
	return []string{"sched-entry", command, g.GateMask, g.Interval}
}

// ParseGateEntry parses a gate control list line such as "S 01 300000".
func ParseGateEntry(line string) (GateEntry, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return GateEntry{}, errors.Errorf("Invalid gate entry %q", line)
	}
	return GateEntry{Command: fields[0], GateMask: fields[1], Interval: fields[2]}, nil
}

// ParseGateFile reads one gate entry per line, skipping blank lines and
// '#' comments.
func ParseGateFile(r io.Reader) ([]GateEntry, error) {
	entries := []GateEntry{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, err := ParseGateEntry(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "Couldn't read gate schedule")
	}

	return entries, nil
}

type Taprio struct {
	Interface string
	Handle    string
	NumTc     int
	Map       PriorityMap
	// Count@offset pairs, e.g. "1@0 1@1 1@2 1@3"
	Queues      string
	BaseTime    string
	Schedule    []GateEntry
	Flags       string
	TxtimeDelay string
	ClockID     string
}

// Command renders the taprio qdisc replace command.
func (t Taprio) Command() ([]string, error) {
	switch {
	case t.Interface == "":
		return nil, missing("taprio", "interface")
	case t.Handle == "":
		return nil, missing("taprio", "handle")
	case t.NumTc == 0:
		return nil, missing("taprio", "num_tc")
	case strings.TrimSpace(t.Queues) == "":
		return nil, missing("taprio", "queues")
	case t.Map[0] == "":
		return nil, missing("taprio", "map")
	case t.BaseTime == "":
		return nil, missing("taprio", "base-time")
	case len(t.Schedule) == 0:
		return nil, missing("taprio", "schedule")
	}

	args := []string{
		"tc", "-d", "qdisc", "replace", "dev", t.Interface,
		"parent", "root", "handle", t.Handle,
		"taprio", "num_tc", strconv.Itoa(t.NumTc),
		"map",
	}
	args = append(args, t.Map[:]...)
	args = append(args, "queues")
	args = append(args, strings.Fields(t.Queues)...)
	args = append(args, "base-time", t.BaseTime)

	for _, entry := range t.Schedule {
		switch {
		case entry.GateMask == "":
			return nil, missing("taprio", "sched-entry gate mask")
		case entry.Interval == "":
			return nil, missing("taprio", "sched-entry interval")
		}
		args = append(args, entry.args()...)
	}

	if t.Flags != "" {
		args = append(args, "flags", t.Flags)
	}
	if t.TxtimeDelay != "" {
		args = append(args, "txtime-delay", t.TxtimeDelay)
	}
	if t.ClockID != "" {
		args = append(args, "clockid", t.ClockID)
	}

	return args, nil
}

type Mqprio struct {
	Interface string
	// Optional, the kernel picks one when empty
	Handle string
	NumTc  int
	Map    PriorityMap
	Queues string
}

// Command renders the mqprio qdisc add command.
func (m Mqprio) Command() ([]string, error) {
	switch {
	case m.Interface == "":
		return nil, missing("mqprio", "interface")
	case m.NumTc == 0:
		return nil, missing("mqprio", "num_tc")
	case strings.TrimSpace(m.Queues) == "":
		return nil, missing("mqprio", "queues")
	case m.Map[0] == "":
		return nil, missing("mqprio", "map")
	}

	args := []string{"tc", "qdisc", "add", "dev", m.Interface, "parent", "root"}
	if m.Handle != "" {
		args = append(args, "handle", m.Handle)
	}
	args = append(args, "mqprio", "num_tc", strconv.Itoa(m.NumTc), "map")
	args = append(args, m.Map[:]...)
	args = append(args, "queues")
	args = append(args, strings.Fields(m.Queues)...)
	args = append(args, "hw", "0")

	return args, nil
}

type Cbs struct {
	Interface string
	Handle    string
	// Major of the parent scheduler, without the colon
	Parent string
	// Zero based hardware queue; tc classes start at 1
	Queue     int
	IdleSlope string
	SendSlope string
	HiCredit  string
	LoCredit  string
	Offload   string
}

// Command renders the cbs qdisc replace command.
func (c Cbs) Command() ([]string, error) {
	switch {
	case c.Interface == "":
		return nil, missing("cbs", "interface")
	case c.Handle == "":
		return nil, missing("cbs", "handle")
	case c.Parent == "":
		return nil, missing("cbs", "parent")
	case c.IdleSlope == "":
		return nil, missing("cbs", "idleslope")
	case c.SendSlope == "":
		return nil, missing("cbs", "sendslope")
	case c.HiCredit == "":
		return nil, missing("cbs", "hicredit")
	case c.LoCredit == "":
		return nil, missing("cbs", "locredit")
	case c.Offload == "":
		return nil, missing("cbs", "offload")
	}

	return []string{
		"tc", "qdisc", "replace", "dev", c.Interface,
		"handle", c.Handle,
		"parent", fmt.Sprintf("%s:%d", strings.TrimSuffix(c.Parent, ":"), c.Queue+1),
		"cbs",
		"idleslope", c.IdleSlope,
		"sendslope", c.SendSlope,
		"hicredit", c.HiCredit,
		"locredit", c.LoCredit,
		"offload", c.Offload,
	}, nil
}

type Etf struct {
	Interface string
	// Parent major including the colon, e.g. "100:" or "$HANDLE_ID:"
	Parent string
	// Zero based hardware queue; tc classes start at 1
	Queue         int
	ClockID       string
	Delta         string
	Offload       bool
	DeadlineMode  bool
	SkipSockCheck bool
}

// Command renders the etf qdisc replace command.
func (e Etf) Command() ([]string, error) {
	switch {
	case e.Interface == "":
		return nil, missing("etf", "interface")
	case e.Parent == "":
		return nil, missing("etf", "parent")
	case e.Delta == "":
		return nil, missing("etf", "delta")
	}

	clockID := e.ClockID
	if clockID == "" {
		clockID = ClockTAI
	}

	args := []string{
		"tc", "qdisc", "replace", "dev", e.Interface,
		"parent", e.Parent + strconv.Itoa(e.Queue+1),
		"etf",
		"clockid", clockID,
		"delta", e.Delta,
	}
	if e.Offload {
		args = append(args, "offload")
	}
	if e.DeadlineMode {
		args = append(args, "deadline_mode")
	}
	if e.SkipSockCheck {
		args = append(args, "skip_sock_check")
	}

	return args, nil
}

type VlanRx struct {
	Interface    string
	VlanPriority string
	RxHwQueue    string
}

// Command renders the flower filter steering a VLAN priority to a hardware
// traffic class on ingress.
func (v VlanRx) Command() ([]string, error) {
	switch {
	case v.Interface == "":
		return nil, missing("vlanrx", "interface")
	case v.VlanPriority == "":
		return nil, missing("vlanrx", "vlan_priority")
	case v.RxHwQueue == "":
		return nil, missing("vlanrx", "rx_hw_q")
	}

	return []string{
		"tc", "filter", "add", "dev", v.Interface,
		"parent", IngressParent,
		"protocol", "802.1Q",
		"flower", "vlan_prio", v.VlanPriority,
		"hw_tc", v.RxHwQueue,
	}, nil
}

func DeleteRootCommand(iface string) []string {
	return []string{"tc", "qdisc", "del", "dev", iface, "parent", "root"}
}

// IngressCommands clears and re-adds the ingress qdisc.
func IngressCommands(iface string) [][]string {
	return [][]string{
		{"tc", "qdisc", "del", "dev", iface, "parent", IngressParent},
		{"tc", "qdisc", "add", "dev", iface, "ingress"},
	}
}

// HandleProbe returns a shell assignment storing the major of the first qdisc
// listed on iface in variable.
func HandleProbe(iface string, variable string) string {
	return fmt.Sprintf(
		`%s="$(tc qdisc show dev %s | tr -d ':' | awk 'NR==1{print $3}')"`,
		variable,
		iface,
	)
}
