package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SEASTOCK_TEST_MODE") == "" {
			_ = os.Setenv("SEASTOCK_TEST_MODE", "1")
		}
	})
}
