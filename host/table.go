package host

import (
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

func PrintQdiscs(w io.Writer, title string, qdiscs []Qdisc) {
	t := table.NewWriter()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Interface", "Kind", "Handle", "Parent"})

	for _, q := range qdiscs {
		t.AppendRow([]interface{}{q.Interface, q.Kind, q.HandleString(), q.ParentString()})
	}

	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Render()
}

func PrintDaemons(w io.Writer, daemons []Daemon) {
	t := table.NewWriter()
	t.SetTitle("Time sync daemons")
	t.AppendHeader(table.Row{"Daemon", "Running", "PIDs"})

	for _, d := range daemons {
		pids := make([]string, len(d.Pids))
		for i, pid := range d.Pids {
			pids[i] = strconv.Itoa(pid)
		}
		t.AppendRow([]interface{}{d.Name, d.Running(), strings.Join(pids, ",")})
	}

	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Render()
}

func PrintFeatures(w io.Writer, iface string, features map[string]bool, names []string) {
	t := table.NewWriter()
	t.SetTitle("NIC features - " + iface)
	t.AppendHeader(table.Row{"Feature", "Enabled"})

	for _, name := range names {
		enabled, ok := features[name]
		if !ok {
			t.AppendRow([]interface{}{name, "unsupported"})
			continue
		}
		t.AppendRow([]interface{}{name, enabled})
	}

	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Render()
}
