package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/uclse/pkg/api"
	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/orchestration"
)

func selfIdentity() contracts.NodeIdentity {
	return contracts.NodeIdentity{NodeID: "node-1", NodeName: "node-1"}
}

func newMux(server *api.Server) *http.ServeMux {
	mux := http.NewServeMux()
	server.Routes(mux)
	return mux
}

func extractID(t *testing.T, recordJSON string) string {
	t.Helper()
	idx := strings.Index(recordJSON, "{")
	require.GreaterOrEqual(t, idx, 0, "no JSON object in submit output: %s", recordJSON)
	var record struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(recordJSON[idx:]), &record))
	require.NotEmpty(t, record.ID)
	return record.ID
}

// TestSubmitApproveExecuteResult walks the CLI's submit, approve,
// execute and result subcommands against a live in-process node,
// exercising the exit-code contract
// pkg/orchestration/doc.go documents.
func TestSubmitApproveExecuteResult(t *testing.T) {
	handle, err := orchestration.NewInProcessLauncher().Launch(orchestration.LaunchConfig{
		NodeUID:           "node-1",
		NodeType:          contracts.NodeTypeDomain,
		Self:              selfIdentity(),
		DefaultWorkerPool: "pool-a",
	})
	require.NoError(t, err)

	svc := api.NewService(handle.Pipeline(), handle.Executor(), handle.Jobs(), handle.Logs(), nil)
	server := api.NewServer(svc)
	ts := httptest.NewServer(newMux(server))
	defer ts.Close()

	var stdout, stderr bytes.Buffer
	code := Run([]string{"uclsectl", "submit",
		"-node", ts.URL,
		"-raw-source", `func f() int { return 1 }`,
		"-func-name", "f",
		"-submitter", "submitter-1",
		"-node-uid", "node-1",
		"-self-node-id", "node-1",
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), "code submitted")

	codeID := extractID(t, stdout.String())

	stdout.Reset()
	stderr.Reset()
	code = Run([]string{"uclsectl", "approve", "-node", ts.URL, "-code-id", codeID, "-node-id", "node-1"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	stdout.Reset()
	stderr.Reset()
	code = Run([]string{"uclsectl", "execute", "-node", ts.URL, "-code-id", codeID, "-submitter", "submitter-1"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	stdout.Reset()
	stderr.Reset()
	code = Run([]string{"uclsectl", "result", "-node", ts.URL, "-code-id", codeID}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), "user_code_id")
}

func TestRun_UnknownCommandReturnsUsageExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"uclsectl", "bogus"}, &stdout, &stderr)
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "unknown command")
}

func TestRun_SubmitMissingFlagsReturnsUsageExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"uclsectl", "submit"}, &stdout, &stderr)
	require.Equal(t, 2, code)
}
