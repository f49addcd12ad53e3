// Package guard flips the runtime into test mode as a side effect of
// being imported, so tests never start servers or workers by accident.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("STEELFORGE_TEST_MODE") == "" {
			_ = os.Setenv("STEELFORGE_TEST_MODE", "1")
		}
	})
}
