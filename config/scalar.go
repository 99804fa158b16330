package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Scalar is a configuration value written into a command line as text.
// Strings, numbers and booleans are accepted; booleans become 1 or 0.
type Scalar string

func (s Scalar) String() string {
	return string(s)
}

// Or returns def when s is empty.
func (s Scalar) Or(def string) string {
	if s == "" {
		return def
	}
	return string(s)
}

func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errors.New("Empty value")
	}

	switch b[0] {
	case '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar(str)
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = boolScalar(v)
	case 'n':
		*s = ""
	case '{', '[':
		return errors.Errorf("Expected a scalar value, got %s", b)
	default:
		// Keep the number exactly as written
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*s = Scalar(n.String())
	}

	return nil
}

func (s *Scalar) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}

	switch x := v.(type) {
	case nil:
		*s = ""
	case string:
		*s = Scalar(x)
	case bool:
		*s = boolScalar(x)
	case int, int64, uint64:
		*s = Scalar(fmt.Sprint(x))
	case float64:
		*s = Scalar(strconv.FormatFloat(x, 'f', -1, 64))
	default:
		return errors.Errorf("Expected a scalar value, got %T", v)
	}

	return nil
}

func boolScalar(v bool) Scalar {
	if v {
		return "1"
	}
	return "0"
}

// Flag is a boolean that also accepts 1 and 0, as numbers or strings.
type Flag bool

func parseFlag(s string) (Flag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false":
		return false, nil
	case "1", "true":
		return true, nil
	}
	return false, errors.Errorf("Expected true, false, 1 or 0, got %q", s)
}

func (f *Flag) UnmarshalJSON(b []byte) error {
	var s Scalar
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	v, err := parseFlag(s.String())
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (f *Flag) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s Scalar
	if err := s.UnmarshalYAML(unmarshal); err != nil {
		return err
	}
	v, err := parseFlag(s.String())
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Int is an integer that may also be written as a string.
type Int int

func parseInt(s string) (Int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "Expected an integer, got %q", s)
	}
	return Int(n), nil
}

func (i *Int) UnmarshalJSON(b []byte) error {
	var s Scalar
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	n, err := parseInt(s.String())
	if err != nil {
		return err
	}
	*i = n
	return nil
}

func (i *Int) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s Scalar
	if err := s.UnmarshalYAML(unmarshal); err != nil {
		return err
	}
	n, err := parseInt(s.String())
	if err != nil {
		return err
	}
	*i = n
	return nil
}
