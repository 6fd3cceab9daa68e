// Package guard forces test mode for any test binary that imports it, so
// entrypoints return before dialing PostgreSQL or Redis.
package guard

import (
	"os"

	"github.com/odyssey-erp/odyssey-retail/internal/app"
)

func init() {
	_ = os.Setenv(app.TestModeEnv, "1")
}
