// Package guard forces test mode for packages whose main or init would otherwise dial
// Postgres or Redis. Import it for side effects from _test.go files.
package guard

import (
	"os"
	"sync"
)

// EnvTestMode is the variable app.InTestMode reads.
const EnvTestMode = "BACKOFFICE_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(EnvTestMode) == "" {
			_ = os.Setenv(EnvTestMode, "1")
		}
	})
}
