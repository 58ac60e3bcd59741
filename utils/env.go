package utils

import (
	"os"
	"strconv"

	"github.com/robosim/armcore/logging"
)

// EnvPrefix is the prefix for all armcore environment variables.
const EnvPrefix = "ARMCORE_"

// GetenvInt returns the integer value of the environment variable, or def when it is unset or
// unparseable.
func GetenvInt(name string, def int) int {
	val := os.Getenv(name)
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		logging.Global().Warnf("failed to parse %s env var %q, falling back to default %d", name, val, def)
		return def
	}
	return n
}
