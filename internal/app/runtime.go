package app

import "os"

// TestModeEnv names the variable that makes the binaries return before
// dialing PostgreSQL or Redis.
const TestModeEnv = "ODYSSEY_TEST_MODE"

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	return os.Getenv(TestModeEnv) == "1"
}
