// Package testing puts the process in test mode when imported by a test binary
// and fills the environment the console refuses to start without.
package testing

import "os"

var testEnv = map[string]string{
	"CONSOLE_TEST_MODE": "1",
	"CSRF_SECRET":       "test-csrf-secret",
	"AUTH_BASE_URL":     "http://127.0.0.1:0",
	"API_BASE_URL":      "http://127.0.0.1:0",
}

func init() {
	for key, value := range testEnv {
		if _, set := os.LookupEnv(key); !set {
			_ = os.Setenv(key, value)
		}
	}
}
