package host

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	gotc "github.com/florianl/go-tc"
	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func object(ifindex uint32, kind string, handle uint32, parent uint32) gotc.Object {
	return gotc.Object{
		Msg: gotc.Msg{
			Ifindex: ifindex,
			Handle:  handle,
			Parent:  parent,
		},
		Attribute: gotc.Attribute{Kind: kind},
	}
}

func names(index uint32) string {
	return fmt.Sprintf("eth%d", index)
}

func TestFromObjects(t *testing.T) {
	objs := []gotc.Object{
		object(1, "etf", 0x80010000, 0x01000001),
		object(1, "taprio", 0x01000000, gotc.HandleRoot),
		object(0, "mqprio", 0x02000000, gotc.HandleRoot),
		object(1, "ingress", 0xffff0000, gotc.HandleIngress),
	}

	all := fromObjects(objs, "", names)
	require.Len(t, all, 4)
	assert.Equal(t, "eth0", all[0].Interface)
	assert.Equal(t, "taprio", all[1].Kind)
	assert.Equal(t, "etf", all[2].Kind)

	eth1 := fromObjects(objs, "eth1", names)
	require.Len(t, eth1, 3)

	assert.Equal(t, "100:", eth1[0].HandleString())
	assert.Equal(t, "root", eth1[0].ParentString())
	assert.Equal(t, "8001:", eth1[1].HandleString())
	assert.Equal(t, "100:1", eth1[1].ParentString())
	assert.Equal(t, "ffff:", eth1[2].ParentString())
}

func TestFindRoot(t *testing.T) {
	qdiscs := fromObjects([]gotc.Object{
		object(1, "etf", 0x80010000, 0x01000001),
		object(1, "taprio", 0x01000000, gotc.HandleRoot),
		object(2, "mq", 0x00000000, gotc.HandleRoot),
	}, "", names)

	handle, err := FindRoot(qdiscs, "eth1", "taprio", "mqprio")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01000000), handle)

	_, err = FindRoot(qdiscs, "eth2", "taprio", "mqprio")
	assert.ErrorContains(t, err, "Root qdisc on eth2 is mq")

	_, err = FindRoot(qdiscs, "eth3")
	assert.ErrorContains(t, err, "No root qdisc on eth3")
}

func TestPickFeatures(t *testing.T) {
	features := map[string]bool{
		HwTcOffload:        true,
		"rx-vlan-hw-parse": false,
	}

	assert.Equal(t,
		map[string]bool{HwTcOffload: true},
		pickFeatures(features, []string{HwTcOffload, "missing"}),
	)
}

type process struct {
	pid  int
	name string
}

func (p process) Pid() int           { return p.pid }
func (p process) PPid() int          { return 1 }
func (p process) Executable() string { return p.name }

func TestMatchDaemons(t *testing.T) {
	procs := []ps.Process{
		process{10, "ptp4l"},
		process{11, "bash"},
		process{12, "ptp4l"},
		process{13, "iperf3"},
	}

	daemons := matchDaemons(procs, TimeSyncDaemons)
	require.Len(t, daemons, 3)

	assert.Equal(t, Daemon{Name: "ptp4l", Pids: []int{10, 12}}, daemons[0])
	assert.False(t, daemons[1].Running())
	assert.Equal(t, "phc2sys", daemons[1].Name)
	assert.True(t, daemons[2].Running())
}

func TestPrintTables(t *testing.T) {
	var buf bytes.Buffer

	PrintQdiscs(&buf, "Qdiscs - eth1", fromObjects([]gotc.Object{
		object(1, "taprio", 0x01000000, gotc.HandleRoot),
	}, "", names))
	PrintDaemons(&buf, []Daemon{{Name: "ptp4l", Pids: []int{10, 12}}})
	PrintFeatures(&buf, "eth1", map[string]bool{HwTcOffload: true}, []string{HwTcOffload, "missing"})

	out := strings.ToLower(buf.String())
	assert.Contains(t, out, "qdiscs - eth1")
	assert.Contains(t, out, "taprio")
	assert.Contains(t, out, "100:")
	assert.Contains(t, out, "10,12")
	assert.Contains(t, out, "unsupported")
}
