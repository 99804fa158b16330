package tc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	TC_H_MAJ_MASK = uint32(0xFFFF0000)
	TC_H_MIN_MASK = uint32(0x0000FFFF)

	// Parent of the ingress qdisc
	IngressParent = "ffff:"

	// Clock used by taprio and etf
	ClockTAI = "CLOCK_TAI"
)

func TcHandleMake(major int, minor int) uint32 {
	return ((uint32(major) << 16) & TC_H_MAJ_MASK) | (uint32(minor) & TC_H_MIN_MASK)
}

func TcHandleString(handle uint32) string {
	major := (handle & TC_H_MAJ_MASK) >> 16
	minor := (handle & TC_H_MIN_MASK)
	return fmt.Sprintf("0x%x:0x%x", major, minor)
}

// HandleMajor renders the major part of a handle the way tc prints it,
// e.g. "100:" for 0x01000000.
func HandleMajor(handle uint32) string {
	return fmt.Sprintf("%x:", (handle&TC_H_MAJ_MASK)>>16)
}

// ParseHandle parses tc handle text ("100", "100:", "100:1"). As with tc,
// both parts are hexadecimal.
func ParseHandle(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("Empty handle")
	}

	majorText, minorText, _ := strings.Cut(s, ":")

	major, err := strconv.ParseUint(majorText, 16, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "Invalid handle major %q", s)
	}

	var minor uint64
	if minorText != "" {
		minor, err = strconv.ParseUint(minorText, 16, 16)
		if err != nil {
			return 0, errors.Wrapf(err, "Invalid handle minor %q", s)
		}
	}

	return TcHandleMake(int(major), int(minor)), nil
}

// BaseTime returns a taprio base time elapsed seconds after now, both in
// nanoseconds, rounded down to the second.
func BaseTime(now int64, elapsed int) int64 {
	t := now + int64(elapsed)*int64(time.Second)
	return t - t%int64(time.Second)
}
