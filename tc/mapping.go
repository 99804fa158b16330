package tc

import (
	"bufio"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// Number of socket priorities a mqprio/taprio map covers
const NumPriorities = 16

// PriorityMap assigns a traffic class to each of the 16 socket priorities.
type PriorityMap [NumPriorities]string

// String renders the map as the space separated list tc expects after "map".
func (m PriorityMap) String() string {
	return strings.Join(m[:], " ")
}

// BuildMapping fills every slot with def and then applies overrides, keyed by
// priority.
func BuildMapping(def string, overrides map[int]string) (PriorityMap, error) {
	var m PriorityMap
	for i := range m {
		m[i] = def
	}

	priorities := maps.Keys(overrides)
	slices.Sort(priorities)

	for _, prio := range priorities {
		if prio < 0 || prio >= NumPriorities {
			return PriorityMap{}, errors.Errorf(
				"Priority %d out of range 0-%d", prio, NumPriorities-1,
			)
		}
		m[prio] = overrides[prio]
	}

	return m, nil
}

// PriorityEntry is one line of a priority file.
type PriorityEntry struct {
	Priority int
	Queue    string
	// "etf", "etf_deadline" or empty
	Etf   string
	Delta string
}

// DeadlineMode reports whether the entry asks for an etf qdisc in deadline mode.
func (e PriorityEntry) DeadlineMode() bool {
	return e.Etf == "etf_deadline"
}

// ParsePriorityFile reads "<prio> <queue> [etf|etf_deadline [delta]]" lines.
// Lines starting with '#' and blank lines are ignored.
func ParsePriorityFile(r io.Reader) ([]PriorityEntry, error) {
	entries := []PriorityEntry{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields) > 4 {
			return nil, errors.Errorf(
				"Line %d: expected 2 to 4 fields, got %d", lineNo, len(fields),
			)
		}

		prio, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, errors.Wrapf(err, "Line %d: invalid priority", lineNo)
		}
		if prio < 0 || prio >= NumPriorities {
			return nil, errors.Errorf("Line %d: priority %d out of range", lineNo, prio)
		}

		entry := PriorityEntry{
			Priority: prio,
			Queue:    fields[1],
		}

		if len(fields) >= 3 {
			switch fields[2] {
			case "etf", "etf_deadline":
				entry.Etf = fields[2]
			default:
				return nil, errors.Errorf(
					"Line %d: unknown qdisc %q, expected etf or etf_deadline",
					lineNo,
					fields[2],
				)
			}
		}

		if len(fields) == 4 {
			entry.Delta = fields[3]
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "Couldn't read priority file")
	}

	return entries, nil
}

// MappingFromEntries builds the priority map of a priority file.
func MappingFromEntries(def string, entries []PriorityEntry) (PriorityMap, error) {
	overrides := make(map[int]string, len(entries))
	for _, e := range entries {
		overrides[e.Priority] = e.Queue
	}

	return BuildMapping(def, overrides)
}

// EtfQueues returns the zero based hardware queue of every entry asking for
// an etf qdisc, which is the entry's position in the file. Positions beyond
// the last of numTc traffic classes have no class to attach to.
func EtfQueues(entries []PriorityEntry, numTc int) ([]int, error) {
	queues := []int{}
	for i, e := range entries {
		if e.Etf == "" {
			continue
		}
		if i >= numTc {
			return nil, errors.Errorf(
				"Entry %d (priority %d) asks for %s but only %d traffic classes exist",
				i+1, e.Priority, e.Etf, numTc,
			)
		}
		queues = append(queues, i)
	}
	return queues, nil
}
