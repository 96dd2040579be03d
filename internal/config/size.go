package config

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxBodySize is 1 MiB.
const DefaultMaxBodySize = 1 << 20

// ParseSize parses size strings like "1MB", "512KB" or "1048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func ParseSize(size string) (int64, error) {
	size = strings.TrimSpace(size)
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(size)
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{{"KB", 1 << 10}, {"MB", 1 << 20}, {"GB", 1 << 30}, {"B", 1}} {
		if strings.HasSuffix(upper, unit.suffix) {
			multiplier = unit.mult
			upper = strings.TrimSuffix(upper, unit.suffix)
			break
		}
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", size, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size %q must be positive", size)
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size %q too large", size)
	}
	return result, nil
}
