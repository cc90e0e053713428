package ipmi

import (
	"math"
	"strconv"
	"strings"
)

// ParseFanSDR extracts fan readings from `ipmitool sdr type Fan` (or
// `sdr elist`) output. Rows without an RPM value, such as redundancy
// sensors or fans reporting "No Reading", are skipped.
//
//	Fan1 RPM         | 30h | ok  |  7.1 | 3600 RPM
//	Fan Redundancy   | 75h | ok  |  7.1 | Fully Redundant
func ParseFanSDR(out string) []Reading {
	var readings []Reading

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "|")
		if len(fields) < 5 {
			continue
		}

		status := strings.TrimSpace(fields[2])
		value := strings.TrimSpace(fields[len(fields)-1])
		if status == "ns" || !strings.HasSuffix(value, "RPM") {
			continue
		}

		parts := strings.Fields(value)
		if len(parts) < 2 {
			continue
		}
		rpm, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			continue
		}

		id := strings.TrimSpace(fields[0])
		id = strings.TrimSpace(strings.TrimSuffix(id, "RPM"))
		if id == "" {
			continue
		}

		readings = append(readings, Reading{FanID: id, RPM: int(math.Round(rpm))})
	}

	return readings
}
