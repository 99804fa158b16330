package config

import (
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

type Config struct {
	TcGroup     []TcSection `json:"tc_group" yaml:"tc_group"`
	Ptp         *Ptp        `json:"ptp" yaml:"ptp"`
	Phc2sys     *Phc2sys    `json:"phc2sys" yaml:"phc2sys"`
	CustomSyncA *CustomSync `json:"custom_sync_a" yaml:"custom_sync_a"`
	CustomSyncB *CustomSync `json:"custom_sync_b" yaml:"custom_sync_b"`
	Iperf3      *Iperf3     `json:"iperf3" yaml:"iperf3"`
	Settle      *Settle     `json:"settle" yaml:"settle"`
}

// TcSection configures the qdiscs of one interface.
type TcSection struct {
	Interface *string    `json:"interface" yaml:"interface"`
	Mqprio    *Scheduler `json:"mqprio" yaml:"mqprio"`
	Taprio    *Scheduler `json:"taprio" yaml:"taprio"`
	Cbs       *Cbs       `json:"cbs" yaml:"cbs"`
	Etf       []Etf      `json:"etf" yaml:"etf"`
	VlanRx    []VlanRx   `json:"vlanrx" yaml:"vlanrx"`
	RunSh     []string   `json:"run_sh" yaml:"run_sh"`
}

// IsEmpty reports whether the section sets nothing at all.
func (t TcSection) IsEmpty() bool {
	return t.Interface == nil && t.Mqprio == nil && t.Taprio == nil &&
		t.Cbs == nil && t.Etf == nil && t.VlanRx == nil && t.RunSh == nil
}

// Scheduler is the mqprio or taprio root qdisc.
type Scheduler struct {
	Handle  Scalar  `json:"handle" yaml:"handle"`
	NumTc   Scalar  `json:"num_tc" yaml:"num_tc"`
	Queues  Scalar  `json:"queues" yaml:"queues"`
	Mapping Mapping `json:"mapping" yaml:"mapping"`

	// taprio only
	Schedule    []GateEntry `json:"schedule" yaml:"schedule"`
	TimeElapsed *Int        `json:"time_elapsed" yaml:"time_elapsed"`
	TxtimeDelay Scalar      `json:"txtime_delay" yaml:"txtime_delay"`
	Flags       Scalar      `json:"flags" yaml:"flags"`
}

type GateEntry struct {
	Command  Scalar  `json:"command" yaml:"command"`
	GateMask *Scalar `json:"gate_mask" yaml:"gate_mask"`
	Duration *Scalar `json:"duration" yaml:"duration"`
}

// Mapping holds "default" plus "pN" priority overrides.
type Mapping map[string]Scalar

func (m Mapping) Default() (string, bool) {
	v, ok := m["default"]
	return string(v), ok
}

// Overrides parses the "pN" keys into a priority keyed map.
func (m Mapping) Overrides() (map[int]string, error) {
	overrides := make(map[int]string, len(m))

	keys := maps.Keys(m)
	slices.Sort(keys)

	for _, key := range keys {
		if key == "default" {
			continue
		}

		if !strings.HasPrefix(key, "p") {
			return nil, errors.Errorf("Invalid mapping key %q, expected pN", key)
		}
		prio, err := strconv.Atoi(key[1:])
		if err != nil {
			return nil, errors.Wrapf(err, "Invalid mapping key %q", key)
		}

		overrides[prio] = string(m[key])
	}

	return overrides, nil
}

type Cbs struct {
	Handle    *Scalar `json:"handle" yaml:"handle"`
	Parent    *Scalar `json:"parent" yaml:"parent"`
	Queue     *int    `json:"queue" yaml:"queue"`
	SendSlope *Scalar `json:"sendslope" yaml:"sendslope"`
	IdleSlope *Scalar `json:"idleslope" yaml:"idleslope"`
	HiCredit  *Scalar `json:"hicredit" yaml:"hicredit"`
	LoCredit  *Scalar `json:"locredit" yaml:"locredit"`
	Offload   *Scalar `json:"offload" yaml:"offload"`
}

type Etf struct {
	Queue        *int    `json:"queue" yaml:"queue"`
	Delta        *Scalar `json:"delta" yaml:"delta"`
	Offload      Flag    `json:"offload" yaml:"offload"`
	DeadlineMode Flag    `json:"deadline_mode" yaml:"deadline_mode"`
	SkipSock     Flag    `json:"skipsock" yaml:"skipsock"`
}

type VlanRx struct {
	VlanPriority *Scalar `json:"vlan_priority" yaml:"vlan_priority"`
	RxHwQueue    *Scalar `json:"rx_hw_q" yaml:"rx_hw_q"`
}

type Ptp struct {
	Interface      *string `json:"interface" yaml:"interface"`
	IgnoreExisting Flag    `json:"ignore_existing" yaml:"ignore_existing"`
	SocketPrio     Scalar  `json:"socket_prio" yaml:"socket_prio"`
	GptpFile       string  `json:"gPTP_file" yaml:"gPTP_file"`
	ConfigDir      string  `json:"config_dir" yaml:"config_dir"`
	CpuAffinity    Scalar  `json:"cpu_affinity" yaml:"cpu_affinity"`
}

type Phc2sys struct {
	Clock          *string `json:"clock" yaml:"clock"`
	Interface      *string `json:"interface" yaml:"interface"`
	IgnoreExisting Flag    `json:"ignore_existing" yaml:"ignore_existing"`
	CpuAffinity    Scalar  `json:"cpu_affinity" yaml:"cpu_affinity"`
}

// CustomSync configures two-port time sync setups.
type CustomSync struct {
	Interface      *string `json:"interface" yaml:"interface"`
	Interface2     *string `json:"interface2" yaml:"interface2"`
	IgnoreExisting Flag    `json:"ignore_existing" yaml:"ignore_existing"`
	SocketPrio     Scalar  `json:"socket_prio" yaml:"socket_prio"`
	GptpFile       string  `json:"gPTP_file" yaml:"gPTP_file"`
	ConfigDir      string  `json:"config_dir" yaml:"config_dir"`
	CpuAffinity    Scalar  `json:"cpu_affinity" yaml:"cpu_affinity"`
}

type Iperf3 struct {
	RunServer             Flag   `json:"run_server" yaml:"run_server"`
	ClientTargetAddress   Scalar `json:"client_target_address" yaml:"client_target_address"`
	CpuAffinity           Scalar `json:"cpu_affinity" yaml:"cpu_affinity"`
	ClientRuntimeInSec    Scalar `json:"client_runtime_in_sec" yaml:"client_runtime_in_sec"`
	ClientBandwidthInMbps Scalar `json:"client_bandwidth_in_mbps" yaml:"client_bandwidth_in_mbps"`
	LogFile               string `json:"log_file" yaml:"log_file"`
}

// Settle overrides settle times, in seconds.
type Settle struct {
	QdiscDelete *float64 `json:"qdisc_delete" yaml:"qdisc_delete"`
	Cbs         *float64 `json:"cbs" yaml:"cbs"`
	PtpSync     *float64 `json:"ptp_sync" yaml:"ptp_sync"`
	Phc2sys     *float64 `json:"phc2sys" yaml:"phc2sys"`
}

// Set reports whether an optional string field holds a non-empty value.
func Set(s *string) bool {
	return s != nil && *s != ""
}

// Str returns the value of an optional string field.
func Str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
