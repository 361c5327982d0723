package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const testModeEnv = "CONSOLE_TEST_MODE"

// InTestMode reports whether the process runs under go test, either flagged
// through CONSOLE_TEST_MODE or detected from the test binary name. Entry points
// skip connecting to Redis and Postgres in that case.
func InTestMode() bool {
	if on, err := strconv.ParseBool(os.Getenv(testModeEnv)); err == nil {
		return on
	}
	return strings.HasSuffix(filepath.Base(os.Args[0]), ".test")
}
