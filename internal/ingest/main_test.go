package ingest

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for the worker pool tests.
// The ants package starts a default pool at init time whose background
// goroutines outlive the tests; they are not created by this package's
// pools, so they are ignored.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/panjf2000/ants/v2.(*poolCommon).purgeStaleWorkers"),
		goleak.IgnoreTopFunction("github.com/panjf2000/ants/v2.(*poolCommon).ticktock"),
	)
}
