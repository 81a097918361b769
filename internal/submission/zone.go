package submission

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	// Zone names must resolve on hosts without a system zoneinfo database.
	_ "time/tzdata"
)

// resolveZone returns the location the submitter's calendar is read in. It accepts an IANA name such
// as "America/Los_Angeles" or a fixed offset such as "-07:00". Blank keeps fallback.
func resolveZone(value string, fallback *time.Location) (*time.Location, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	if value[0] == '+' || value[0] == '-' {
		return parseOffset(value)
	}
	loc, err := time.LoadLocation(value)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q", value)
	}
	return loc, nil
}

func parseOffset(value string) (*time.Location, error) {
	sign := 1
	if value[0] == '-' {
		sign = -1
	}
	hh, mm, ok := strings.Cut(value[1:], ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return nil, fmt.Errorf("invalid utc offset %q: expected ±HH:MM", value)
	}
	hours, errH := strconv.Atoi(hh)
	minutes, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || hours > 14 || minutes > 59 {
		return nil, fmt.Errorf("invalid utc offset %q: expected ±HH:MM", value)
	}
	return time.FixedZone("UTC"+value, sign*(hours*3600+minutes*60)), nil
}
