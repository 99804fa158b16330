package generator

import (
	"strings"
	"testing"

	"github.com/adaricorp/tsn-setup/config"
	"github.com/adaricorp/tsn-setup/script"
	"github.com/adaricorp/tsn-setup/tc"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `{
	"ptp": {"interface": "eth0", "ignore_existing": true},
	"phc2sys": {"clock": "CLOCK_REALTIME", "interface": "eth0", "ignore_existing": true},
	"tc_group": [
		{
			"interface": "eth0",
			"mqprio": {
				"handle": 100,
				"num_tc": 4,
				"queues": "1@0 1@1 1@2 1@3",
				"mapping": {"default": 3, "p2": 1}
			},
			"etf": [{"queue": 0, "delta": 200000, "offload": true}],
			"vlanrx": [{"vlan_priority": 3, "rx_hw_q": 1}],
			"run_sh": ["ethtool -K eth0 hw-tc-offload on"]
		}
	],
	"iperf3": {"run_server": true, "client_target_address": "10.0.0.2"}
}`

func parse(t *testing.T, buf string) *config.Config {
	t.Helper()
	cfg, err := config.ParseJSON([]byte(buf))
	require.NoError(t, err)
	return cfg
}

func commands(s *script.Script) []string {
	lines := []string{}
	for _, l := range s.Lines() {
		lines = append(lines, l.String())
	}
	return lines
}

func TestGenerateDefaultOrder(t *testing.T) {
	result, err := Generate(parse(t, fullConfig), Options{})
	require.NoError(t, err)

	pmc := "pmc -u -b 0 -t 1 'SET GRANDMASTER_SETTINGS_NP clockClass 248 clockAccuracy 0xfe " +
		"offsetScaledLogVariance 0xffff currentUtcOffset 37 leap61 0 leap59 0 " +
		"currentUtcOffsetValid 0 ptpTimescale 1 timeTraceable 1 frequencyTraceable 0 " +
		"timeSource 0xa0' > /var/log/pmc.log 2>&1 &"

	want := []string{
		"pkill ptp4l",
		"taskset -c 1 ptp4l -mP2Hi eth0 --step_threshold=2 -f common/gPTP.cfg --socket_priority 2 > /var/log/ptp4l.log 2>&1 &",
		"sleep 30",
		"pkill phc2sys",
		"sleep 2",
		pmc,
		"sleep 2",
		"taskset -c 1 phc2sys -c CLOCK_REALTIME --step_threshold=1 -s eth0 --transportSpecific=1 -O 0 -w -ml 7 > /var/log/phc2sys.log 2>&1 &",
		"tc qdisc del dev eth0 parent root 2> /dev/null",
		"sleep 5",
		"tc qdisc add dev eth0 parent root handle 100 mqprio num_tc 4 map 3 3 1 3 3 3 3 3 3 3 3 3 3 3 3 3 queues 1@0 1@1 1@2 1@3 hw 0",
		`HANDLE_ID="$(tc qdisc show dev eth0 | tr -d ':' | awk 'NR==1{print $3}')"`,
		"tc qdisc replace dev eth0 parent $HANDLE_ID:1 etf clockid CLOCK_TAI delta 200000 offload",
		"tc qdisc del dev eth0 parent ffff:",
		"tc qdisc add dev eth0 ingress",
		"tc filter add dev eth0 parent ffff: protocol 802.1Q flower vlan_prio 3 hw_tc 1",
		"ethtool -K eth0 hw-tc-offload on",
		"pkill iperf3",
		"iperf3 -s -D --affinity 3 &",
	}
	assert.Equal(t, want, commands(result.Script))

	require.NotNil(t, result.Iperf3Client)
	assert.Equal(t,
		"iperf3 -c 10.0.0.2 --affinity 3 -u -t 5000 --logfile /var/log/iperf3_client.log -b 1M",
		result.Iperf3Client.String(),
	)
}

func TestGenerateIsDeterministic(t *testing.T) {
	first, err := Generate(parse(t, fullConfig), Options{})
	require.NoError(t, err)
	second, err := Generate(parse(t, fullConfig), Options{})
	require.NoError(t, err)

	assert.Equal(t, first.Script.Bytes(), second.Script.Bytes())
}

func TestGenerateScriptText(t *testing.T) {
	result, err := Generate(parse(t, `{"tc_group": [{"interface": "eth1"}]}`), Options{})
	require.NoError(t, err)

	assert.Equal(t,
		"#!/bin/sh\n"+
			"echo 'Running tc qdisc del dev eth1 parent root 2> /dev/null'\n"+
			"tc qdisc del dev eth1 parent root 2> /dev/null\n"+
			"echo 'Running sleep 5'\n"+
			"sleep 5\n",
		string(result.Script.Bytes()),
	)
}

func TestGenerateReInit(t *testing.T) {
	result, err := Generate(parse(t, fullConfig), Options{Mode: ModeReInit})
	require.NoError(t, err)

	lines := commands(result.Script)
	assert.Equal(t, "tc qdisc del dev eth0 parent root 2> /dev/null", lines[0])
	assert.Contains(t, lines, "pkill ptp4l")
	assert.NotContains(t, lines, "pkill iperf3")
	assert.Nil(t, result.Iperf3Client)
}

func TestGenerateIperf3Only(t *testing.T) {
	result, err := Generate(parse(t, `{"iperf3": {"cpu_affinity": 2}}`), Options{Mode: ModeIperf3})
	require.NoError(t, err)

	assert.Equal(t, []string{"pkill iperf3"}, commands(result.Script))
	assert.Nil(t, result.Iperf3Client)
}

func TestGenerateIperf3OnlyIgnoresOtherSections(t *testing.T) {
	cfg := parse(t, `{
		"ptp": {"ignore_existing": true},
		"custom_sync_b": {"interface": "eth0"},
		"tc_group": [{"mqprio": {}}],
		"iperf3": {"run_server": 1}
	}`)

	result, err := Generate(cfg, Options{Mode: ModeIperf3})
	require.NoError(t, err)
	assert.Equal(t, []string{"pkill iperf3", "iperf3 -s -D --affinity 3 &"}, commands(result.Script))

	_, err = Generate(cfg, Options{})
	var missing *config.MissingKeyError
	assert.True(t, errors.As(err, &missing), "got %v", err)
}

func TestGenerateMissingKeys(t *testing.T) {
	tests := []struct {
		name string
		json string
		key  string
	}{
		{"tc_group", `{"ptp": {"interface": "eth0"}}`, "tc_group"},
		{"interface", `{"tc_group": [{"mqprio": {"mapping": {"default": 1}}}]}`, "interface"},
		{"ptp interface", `{"tc_group": [], "ptp": {"ignore_existing": true}}`, "interface"},
		{"empty interface", `{"tc_group": [{"interface": "", "run_sh": ["true"]}]}`, "interface"},
		{
			"schedule gate_mask",
			`{"tc_group": [{"interface": "eth0", "taprio": {
				"handle": 100, "num_tc": 2, "queues": "1@0 1@1", "mapping": {"default": 0},
				"schedule": [{"duration": 300000}, {"gate_mask": "02"}]
			}}]}`,
			"gate_mask",
		},
		{
			"schedule duration",
			`{"tc_group": [{"interface": "eth0", "taprio": {
				"handle": 100, "num_tc": 2, "queues": "1@0 1@1", "mapping": {"default": 0},
				"schedule": [{"gate_mask": "01", "duration": 300000}, {"gate_mask": "02"}]
			}}]}`,
			"duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Generate(parse(t, tt.json), Options{})
			assert.Nil(t, result)

			var missing *config.MissingKeyError
			require.True(t, errors.As(err, &missing), "got %v", err)
			assert.Equal(t, tt.key, missing.Key)
		})
	}
}

func TestGenerateZeroParameters(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{
			"mqprio num_tc",
			`{"tc_group": [{"interface": "eth0", "mqprio": {"handle": 100, "queues": "1@0", "mapping": {"default": 0}}}]}`,
		},
		{
			"mqprio handle",
			`{"tc_group": [{"interface": "eth0", "mqprio": {"num_tc": 1, "queues": "1@0", "mapping": {"default": 0}}}]}`,
		},
		{
			"taprio queues",
			`{"tc_group": [{"interface": "eth0", "taprio": {"handle": 100, "num_tc": 1, "mapping": {"default": 0},
				"schedule": [{"gate_mask": "01", "duration": 1000}]}}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(parse(t, tt.json), Options{})
			assert.True(t, errors.Is(err, tc.ErrMissingParameter), "got %v", err)
		})
	}
}

func TestGenerateTaprio(t *testing.T) {
	cfg := parse(t, `{"tc_group": [{
		"interface": "eth0",
		"mqprio": {"handle": 200, "num_tc": 2, "queues": "1@0 1@1", "mapping": {"default": 0}},
		"taprio": {
			"handle": 100, "num_tc": 2, "queues": "1@0 1@1", "time_elapsed": 10,
			"txtime_delay": 500000,
			"mapping": {"default": 1, "p3": 0},
			"schedule": [{"gate_mask": "01", "duration": 300000}, {"gate_mask": "02", "duration": 700000}]
		}
	}]}`)

	result, err := Generate(cfg, Options{})
	require.NoError(t, err)

	lines := commands(result.Script)
	require.Len(t, lines, 3)
	assert.Equal(t,
		"tc -d qdisc replace dev eth0 parent root handle 100 taprio num_tc 2 "+
			"map 1 1 1 0 1 1 1 1 1 1 1 1 1 1 1 1 queues 1@0 1@1 "+
			"base-time $(expr $(date +%s) + 10)000000000 "+
			"sched-entry S 01 300000 sched-entry S 02 700000 "+
			"flags 0x1 txtime-delay 500000 clockid CLOCK_TAI",
		lines[2],
	)

	cfg.TcGroup[0].Taprio.TxtimeDelay = ""
	cfg.TcGroup[0].Taprio.TimeElapsed = nil
	result, err = Generate(cfg, Options{})
	require.NoError(t, err)
	lines = commands(result.Script)
	assert.Contains(t, lines[2], "base-time $(expr $(date +%s) + 5)000000000 ")
	assert.True(t, strings.HasSuffix(lines[2], "sched-entry S 02 700000 flags 0x2"))
}

func TestGenerateCbs(t *testing.T) {
	cfg := parse(t, `{"tc_group": [{
		"interface": "eth0",
		"cbs": {"handle": 200, "parent": 100, "queue": 1, "sendslope": -980000,
			"idleslope": 20000, "hicredit": 30, "locredit": -1470, "offload": 1}
	}], "settle": {"qdisc_delete": 1, "cbs": 0.5}}`)

	result, err := Generate(cfg, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"tc qdisc del dev eth0 parent root 2> /dev/null",
		"sleep 1",
		"tc qdisc replace dev eth0 handle 200 parent 100:2 cbs idleslope 20000 sendslope -980000 hicredit 30 locredit -1470 offload 1",
		"sleep 0.5",
	}, commands(result.Script))
}

func TestGenerateEtfFlags(t *testing.T) {
	cfg := parse(t, `{"tc_group": [{
		"interface": "eth0",
		"etf": [
			{"queue": 0, "delta": 200000, "deadline_mode": true},
			{"queue": 1, "delta": 300000, "skipsock": true},
			{"queue": 2, "delta": 400000, "offload": 1, "deadline_mode": "1"}
		]
	}]}`)

	result, err := Generate(cfg, Options{})
	require.NoError(t, err)

	lines := commands(result.Script)
	require.Len(t, lines, 6)
	assert.Equal(t, "tc qdisc replace dev eth0 parent $HANDLE_ID:1 etf clockid CLOCK_TAI delta 200000 deadline_mode", lines[3])
	assert.Equal(t, "tc qdisc replace dev eth0 parent $HANDLE_ID:2 etf clockid CLOCK_TAI delta 300000 skip_sock_check", lines[4])
	assert.Equal(t, "tc qdisc replace dev eth0 parent $HANDLE_ID:3 etf clockid CLOCK_TAI delta 400000 offload deadline_mode", lines[5])
}

func TestGenerateTimeSyncSkippedWithoutIgnoreExisting(t *testing.T) {
	cfg := parse(t, `{"tc_group": [],
		"ptp": {"interface": "eth0"},
		"phc2sys": {"clock": "CLOCK_REALTIME", "interface": "eth0"},
		"custom_sync_a": {"interface": "eth0", "interface2": "eth1"}}`)

	result, err := Generate(cfg, Options{})
	require.NoError(t, err)
	assert.Zero(t, result.Script.Len())
}

func TestGenerateCustomSync(t *testing.T) {
	cfg := parse(t, `{"tc_group": [],
		"custom_sync_a": {"interface": "eth0", "interface2": "eth1", "ignore_existing": true},
		"custom_sync_b": {"interface": "eth0", "interface2": "eth1", "ignore_existing": true, "gPTP_file": "gPTP-bc.cfg"}}`)

	result, err := Generate(cfg, Options{})
	require.NoError(t, err)

	lines := commands(result.Script)
	require.Len(t, lines, 13)

	// custom_sync_a
	assert.Equal(t, "pkill phc2sys", lines[0])
	assert.Equal(t, "pkill ptp4l", lines[1])
	assert.Equal(t, "taskset -c 1 ptp4l -mP2Hi eth0 --step_threshold=2 -f common/gPTP.cfg --socket_priority 1 > /var/log/ptp4l.log 2>&1 &", lines[2])
	assert.Equal(t, "taskset -c 1 ptp4l -mP2Hi eth1 --step_threshold=2 -f common/gPTP.cfg --socket_priority 1 > /var/log/ptp4l2.log 2>&1 &", lines[3])
	assert.Equal(t, "sleep 30", lines[4])
	assert.Contains(t, lines[5], "currentUtcOffset 37 ")
	assert.Equal(t, "taskset -c 1 phc2sys -c CLOCK_REALTIME --step_threshold=1 -s eth0 --transportSpecific=1 -O 0 -w -ml 7 > /var/log/phc2sys.log 2>&1 &", lines[6])

	// custom_sync_b
	assert.Equal(t, "pkill phc2sys", lines[7])
	assert.Equal(t, "pkill ptp4l", lines[8])
	assert.Equal(t, "taskset -c 1 ptp4l -mP2Hi eth0 -i eth1 -f common/gPTP-bc.cfg --step_threshold=2 --socket_priority 1 --boundary_clock_jbod=1 > /var/log/ptp4l.log 2>&1 &", lines[9])
	assert.Equal(t, "sleep 30", lines[10])
	assert.Contains(t, lines[11], "currentUtcOffset 0 ")
	assert.Contains(t, lines[11], "currentUtcOffsetValid 1 ")
	assert.Equal(t, "taskset -c 1 phc2sys -arrml 7 -f common/gPTP-bc.cfg > /var/log/phc2sys.log 2>&1 &", lines[12])
}

func TestGenerateBadHandle(t *testing.T) {
	cfg := parse(t, `{"tc_group": [{"interface": "eth0",
		"mqprio": {"handle": "zz", "num_tc": 1, "queues": "1@0", "mapping": {"default": 0}}}]}`)

	result, err := Generate(cfg, Options{})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.False(t, errors.Is(err, tc.ErrMissingParameter))
	assert.Contains(t, err.Error(), "tc_group[0]")
}
