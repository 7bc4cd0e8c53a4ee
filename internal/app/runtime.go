package app

import (
	"os"
	"strconv"
)

// TestModeEnv makes the binaries exit before touching postgres, redis or the queue.
const TestModeEnv = "CATALOG_TEST_MODE"

// InTestMode reports whether TestModeEnv holds a true value ("1", "true", ...).
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
