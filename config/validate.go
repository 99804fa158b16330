package config

import (
	"fmt"
)

// MissingKeyError reports a required key absent from a configuration section.
type MissingKeyError struct {
	Section string
	Key     string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("Key %s does not exist in %s", e.Key, e.Section)
}

// Key is a required key name and whether the configuration set it.
type Key struct {
	Name    string
	Present bool
}

// EnsureKeys fails with a *MissingKeyError for the first absent key.
func EnsureKeys(section string, keys ...Key) error {
	for _, k := range keys {
		if !k.Present {
			return &MissingKeyError{Section: section, Key: k.Name}
		}
	}
	return nil
}

// Validate checks every configured section for its required keys and that
// priority mappings are well formed.
func (c *Config) Validate() error {
	for i, section := range c.TcGroup {
		if err := section.validate(fmt.Sprintf("tc_group[%d]", i)); err != nil {
			return err
		}
	}

	if c.Ptp != nil {
		if err := EnsureKeys("ptp", Key{"interface", Set(c.Ptp.Interface)}); err != nil {
			return err
		}
	}

	if c.Phc2sys != nil {
		if err := EnsureKeys("phc2sys",
			Key{"clock", Set(c.Phc2sys.Clock)},
			Key{"interface", Set(c.Phc2sys.Interface)},
		); err != nil {
			return err
		}
	}

	for _, s := range []struct {
		name string
		sync *CustomSync
	}{
		{"custom_sync_a", c.CustomSyncA},
		{"custom_sync_b", c.CustomSyncB},
	} {
		if s.sync == nil {
			continue
		}
		if err := EnsureKeys(s.name,
			Key{"interface", Set(s.sync.Interface)},
			Key{"interface2", Set(s.sync.Interface2)},
		); err != nil {
			return err
		}
	}

	return nil
}

func (t TcSection) validate(name string) error {
	if t.IsEmpty() {
		return nil
	}

	if err := EnsureKeys(name, Key{"interface", Set(t.Interface)}); err != nil {
		return err
	}

	for _, s := range []struct {
		kind  string
		sched *Scheduler
	}{
		{"mqprio", t.Mqprio},
		{"taprio", t.Taprio},
	} {
		sched := s.sched
		if sched == nil {
			continue
		}

		section := name + "." + s.kind
		if err := EnsureKeys(section, Key{"mapping", sched.Mapping != nil}); err != nil {
			return err
		}

		_, hasDefault := sched.Mapping.Default()
		if err := EnsureKeys(section+".mapping", Key{"default", hasDefault}); err != nil {
			return err
		}

		if _, err := sched.Mapping.Overrides(); err != nil {
			return err
		}

		for i, e := range sched.Schedule {
			if err := EnsureKeys(fmt.Sprintf("%s.schedule[%d]", section, i),
				Key{"gate_mask", e.GateMask != nil},
				Key{"duration", e.Duration != nil},
			); err != nil {
				return err
			}
		}
	}

	if c := t.Cbs; c != nil {
		if err := EnsureKeys(name+".cbs",
			Key{"handle", c.Handle != nil},
			Key{"parent", c.Parent != nil},
			Key{"queue", c.Queue != nil},
			Key{"sendslope", c.SendSlope != nil},
			Key{"idleslope", c.IdleSlope != nil},
			Key{"hicredit", c.HiCredit != nil},
			Key{"locredit", c.LoCredit != nil},
			Key{"offload", c.Offload != nil},
		); err != nil {
			return err
		}
	}

	for i, e := range t.Etf {
		if err := EnsureKeys(fmt.Sprintf("%s.etf[%d]", name, i),
			Key{"queue", e.Queue != nil},
			Key{"delta", e.Delta != nil},
		); err != nil {
			return err
		}
	}

	for i, v := range t.VlanRx {
		if err := EnsureKeys(fmt.Sprintf("%s.vlanrx[%d]", name, i),
			Key{"vlan_priority", v.VlanPriority != nil},
			Key{"rx_hw_q", v.RxHwQueue != nil},
		); err != nil {
			return err
		}
	}

	return nil
}
