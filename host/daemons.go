package host

import (
	"github.com/mitchellh/go-ps"
	"github.com/pkg/errors"
)

// Daemons started by the generated scripts
var TimeSyncDaemons = []string{"ptp4l", "phc2sys", "iperf3"}

type Daemon struct {
	Name string
	Pids []int
}

func (d Daemon) Running() bool {
	return len(d.Pids) > 0
}

func matchDaemons(procs []ps.Process, names []string) []Daemon {
	daemons := make([]Daemon, len(names))
	index := make(map[string]int, len(names))
	for i, name := range names {
		daemons[i] = Daemon{Name: name, Pids: []int{}}
		index[name] = i
	}

	for _, p := range procs {
		if i, ok := index[p.Executable()]; ok {
			daemons[i].Pids = append(daemons[i].Pids, p.Pid())
		}
	}

	return daemons
}

// Daemons reports the running processes for each of names, in order.
func Daemons(names ...string) ([]Daemon, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, errors.Wrap(err, "Error getting process list")
	}

	return matchDaemons(procs, names), nil
}
