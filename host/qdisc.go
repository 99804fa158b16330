// Package host inspects the live system: installed qdiscs, NIC features and
// running time sync daemons.
package host

import (
	"cmp"
	"fmt"
	"net"
	"slices"

	"github.com/adaricorp/tsn-setup/tc"

	gotc "github.com/florianl/go-tc"
	"github.com/mdlayher/netlink"
	"github.com/pkg/errors"
)

// Qdisc is one installed queueing discipline.
type Qdisc struct {
	Interface string
	Kind      string
	Handle    uint32
	Parent    uint32
}

func (q Qdisc) IsRoot() bool {
	return q.Parent == gotc.HandleRoot
}

// HandleString renders the handle the way tc prints it.
func (q Qdisc) HandleString() string {
	return tc.HandleMajor(q.Handle)
}

func (q Qdisc) ParentString() string {
	switch q.Parent {
	case gotc.HandleRoot:
		return "root"
	case gotc.HandleIngress:
		return tc.IngressParent
	}
	return fmt.Sprintf("%x:%x", q.Parent>>16, q.Parent&tc.TC_H_MIN_MASK)
}

func interfaceName(index uint32) string {
	iface, err := net.InterfaceByIndex(int(index))
	if err != nil {
		return fmt.Sprintf("if%d", index)
	}
	return iface.Name
}

// Convert netlink objects, keeping those on iface or all of them when iface
// is empty. The result is ordered by interface then handle.
func fromObjects(objs []gotc.Object, iface string, name func(uint32) string) []Qdisc {
	qdiscs := []Qdisc{}
	for _, obj := range objs {
		q := Qdisc{
			Interface: name(obj.Ifindex),
			Kind:      obj.Kind,
			Handle:    obj.Handle,
			Parent:    obj.Parent,
		}
		if iface != "" && q.Interface != iface {
			continue
		}
		qdiscs = append(qdiscs, q)
	}

	slices.SortStableFunc(qdiscs, func(a, b Qdisc) int {
		if c := cmp.Compare(a.Interface, b.Interface); c != 0 {
			return c
		}
		return cmp.Compare(a.Handle, b.Handle)
	})

	return qdiscs
}

// Qdiscs lists the qdiscs installed on iface, or on every interface when
// iface is empty.
func Qdiscs(iface string) ([]Qdisc, error) {
	rtnl, err := gotc.Open(&gotc.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't open rtnetlink socket")
	}
	defer rtnl.Close()

	// Kernel error strings are only reported with extended acks
	if err := rtnl.SetOption(netlink.ExtendedAcknowledge, true); err != nil {
		return nil, errors.Wrap(err, "Couldn't enable extended acknowledgements")
	}

	objs, err := rtnl.Qdisc().Get()
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't list qdiscs")
	}

	return fromObjects(objs, iface, interfaceName), nil
}

// FindRoot returns the handle of the root qdisc on iface, which must be one
// of kinds when any are given.
func FindRoot(qdiscs []Qdisc, iface string, kinds ...string) (uint32, error) {
	for _, q := range qdiscs {
		if q.Interface != iface || !q.IsRoot() {
			continue
		}
		if len(kinds) > 0 && !slices.Contains(kinds, q.Kind) {
			return 0, errors.Errorf(
				"Root qdisc on %s is %s, expected one of %v", iface, q.Kind, kinds,
			)
		}
		return q.Handle, nil
	}

	return 0, errors.Errorf("No root qdisc on %s", iface)
}

// RootHandle looks up the handle of the root qdisc on iface.
func RootHandle(iface string, kinds ...string) (uint32, error) {
	qdiscs, err := Qdiscs(iface)
	if err != nil {
		return 0, err
	}
	return FindRoot(qdiscs, iface, kinds...)
}
