package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertNodeRan checks the log output within a HarnessResult to confirm that
// a node completed at least once.
func AssertNodeRan(t *testing.T, result *HarnessResult, nodeID string) {
	t.Helper()

	expected := fmt.Sprintf("node=%s", nodeID)
	for _, line := range strings.Split(result.Output, "\n") {
		if strings.Contains(line, "Node finished") && strings.Contains(line, expected) {
			return
		}
	}
	require.Fail(t, "node did not run", "expected a completion log line for node '%s'", nodeID)
}
