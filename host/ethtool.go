package host

import (
	"github.com/pkg/errors"
	"github.com/safchain/ethtool"
)

// HwTcOffload must be on for offloaded taprio, cbs and etf.
const HwTcOffload = "hw-tc-offload"

// Features reads the named NIC features of iface. Features the driver
// doesn't expose are left out of the result.
func Features(iface string, names ...string) (map[string]bool, error) {
	e, err := ethtool.NewEthtool()
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't create new ethtool")
	}
	defer e.Close()

	features, err := e.Features(iface)
	if err != nil {
		return nil, errors.Wrapf(err, "Couldn't get features for %v", iface)
	}

	return pickFeatures(features, names), nil
}

func pickFeatures(features map[string]bool, names []string) map[string]bool {
	picked := make(map[string]bool, len(names))
	for _, name := range names {
		if enabled, ok := features[name]; ok {
			picked[name] = enabled
		}
	}
	return picked
}

// EnsureFeature enables feature on iface and returns its previous state.
func EnsureFeature(iface string, feature string) (bool, error) {
	e, err := ethtool.NewEthtool()
	if err != nil {
		return false, errors.Wrap(err, "Couldn't create new ethtool")
	}
	defer e.Close()

	features, err := e.Features(iface)
	if err != nil {
		return false, errors.Wrapf(err, "Couldn't get features for %v", iface)
	}

	previous, ok := features[feature]
	if !ok {
		return false, errors.Errorf("Interface %v doesn't support %v", iface, feature)
	}
	if previous {
		return true, nil
	}

	if err := e.Change(iface, map[string]bool{feature: true}); err != nil {
		return false, errors.Wrapf(err, "Couldn't set %v on %v", feature, iface)
	}

	return false, nil
}
