package testutils

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Output *bytes.Buffer
}

// NewTestHelper creates a test helper whose logger writes at debug level into
// Output instead of stderr.
func NewTestHelper(t *testing.T) *TestHelper {
	out := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	logger.SetOutput(out)
	return &TestHelper{
		T:      t,
		Logger: logger,
		Output: out,
	}
}

// DumpLogsOnFailure prints the captured log when the test failed.
func (h *TestHelper) DumpLogsOnFailure() {
	if h.T.Failed() && h.Output.Len() > 0 {
		h.T.Logf("captured log:\n%s", h.Output.String())
	}
}
