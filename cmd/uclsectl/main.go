// Command uclsectl is the operator-facing CLI client for a running
// uclse-node: it talks the pkg/api HTTP request surface over the
// network rather than embedding the node logic itself. See
// pkg/orchestration/doc.go for the exit-code contract this file
// implements.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/usercode"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI's testable entrypoint: subcommand dispatch over
// injected writers, returning the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "submit":
		return runSubmit(args[2:], stdout, stderr)
	case "approve":
		return runApprove(args[2:], stdout, stderr)
	case "deny":
		return runDeny(args[2:], stdout, stderr)
	case "execute":
		return runExecute(args[2:], stdout, stderr)
	case "result":
		return runResult(args[2:], stdout, stderr)
	case "health":
		return runHealth(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "❌ unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "uclsectl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  submit    submit a UserCode record")
	fmt.Fprintln(w, "  approve   approve a UserCode record for one node identity")
	fmt.Fprintln(w, "  deny      deny a UserCode record for one node identity")
	fmt.Fprintln(w, "  execute   execute an approved UserCode record")
	fmt.Fprintln(w, "  result    fetch the last execution result for a UserCode record")
	fmt.Fprintln(w, "  health    check a node's /healthz endpoint")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "every command accepts -node <base URL> (default http://localhost:8080)")
}

// httpClient is shared across subcommands; 30s is generous for a
// sandboxed execution that should itself budget far under that.
var httpClient = &http.Client{Timeout: 30 * time.Second}

func postJSON(nodeURL, path string, body interface{}, out interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}
	resp, err := httpClient.Post(nodeURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, out)
}

func getJSON(nodeURL, path string, out interface{}) (int, error) {
	resp, err := httpClient.Get(nodeURL + path)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) (int, error) {
	if resp.StatusCode >= 400 {
		var problem struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&problem)
		if problem.Detail != "" {
			return resp.StatusCode, fmt.Errorf("%s: %s", problem.Title, problem.Detail)
		}
		return resp.StatusCode, fmt.Errorf("request failed: status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func runSubmit(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("submit", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	node := cmd.String("node", "http://localhost:8080", "node base URL")
	rawSource := cmd.String("raw-source", "", "Go source of the function being submitted (REQUIRED)")
	funcName := cmd.String("func-name", "", "declared function name (REQUIRED)")
	submitter := cmd.String("submitter", "", "submitter verify key (REQUIRED)")
	nodeUID := cmd.String("node-uid", "", "node uid this submission targets (REQUIRED)")
	nodeType := cmd.String("node-type", "domain", "domain or enclave")
	selfID := cmd.String("self-node-id", "", "this node's own identity id (REQUIRED)")
	selfName := cmd.String("self-node-name", "", "this node's own identity name")
	workerPool := cmd.String("worker-pool", "", "default worker pool id")
	inputPolicy := cmd.String("input-policy", "EmptyInputPolicy", "input policy type tag")
	inputKwargsJSON := cmd.String("input-kwargs", "{}", "input policy init kwargs, as JSON")
	outputPolicy := cmd.String("output-policy", "UnlimitedOutputPolicy", "output policy type tag")
	outputKwargsJSON := cmd.String("output-kwargs", "{}", "output policy init kwargs, as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *rawSource == "" || *funcName == "" || *submitter == "" || *nodeUID == "" || *selfID == "" {
		fmt.Fprintln(stderr, "❌ -raw-source, -func-name, -submitter, -node-uid, -self-node-id are required")
		return 2
	}

	var inputKwargs, outputKwargs map[string]interface{}
	if err := json.Unmarshal([]byte(*inputKwargsJSON), &inputKwargs); err != nil {
		fmt.Fprintf(stderr, "❌ -input-kwargs: %v\n", err)
		return 2
	}
	if err := json.Unmarshal([]byte(*outputKwargsJSON), &outputKwargs); err != nil {
		fmt.Fprintf(stderr, "❌ -output-kwargs: %v\n", err)
		return 2
	}

	req := usercode.Submission{
		SubmittedCode: contracts.SubmittedCode{
			RawSource:    *rawSource,
			FuncName:     *funcName,
			InputPolicy:  contracts.PolicySpec{TypeTag: *inputPolicy, InitKwargs: inputKwargs},
			OutputPolicy: contracts.PolicySpec{TypeTag: *outputPolicy, InitKwargs: outputKwargs},
			WorkerPoolID: *workerPool,
		},
		SubmitterVerifyKey: contracts.VerifyKey(*submitter),
		NodeUID:            *nodeUID,
		NodeType:           contracts.NodeType(*nodeType),
		Self:               contracts.NodeIdentity{NodeID: *selfID, NodeName: *selfName},
		DefaultWorkerPool:  *workerPool,
	}

	var record contracts.UserCode
	if _, err := postJSON(*node, "/api/v1/usercode/submit", req, &record); err != nil {
		fmt.Fprintf(stderr, "❌ submit failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "✅ code submitted: %s\n", record.ID)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(record)
	return 0
}

func runApprove(args []string, stdout, stderr io.Writer) int {
	return runApprovalTransition("approve", args, stdout, stderr)
}

func runDeny(args []string, stdout, stderr io.Writer) int {
	return runApprovalTransition("deny", args, stdout, stderr)
}

func runApprovalTransition(verb string, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet(verb, flag.ContinueOnError)
	cmd.SetOutput(stderr)
	node := cmd.String("node", "http://localhost:8080", "node base URL")
	codeID := cmd.String("code-id", "", "UserCode id (REQUIRED)")
	nodeID := cmd.String("node-id", "", "approving node identity id (REQUIRED)")
	nodeName := cmd.String("node-name", "", "approving node identity name")
	reason := cmd.String("reason", "", "reason recorded alongside this decision")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *codeID == "" || *nodeID == "" {
		fmt.Fprintln(stderr, "❌ -code-id and -node-id are required")
		return 2
	}

	req := map[string]interface{}{
		"code_id": *codeID,
		"node":    contracts.NodeIdentity{NodeID: *nodeID, NodeName: *nodeName},
		"reason":  *reason,
	}
	if _, err := postJSON(*node, "/api/v1/usercode/"+verb, req, nil); err != nil {
		fmt.Fprintf(stderr, "❌ %s failed: %v\n", verb, err)
		return 1
	}
	fmt.Fprintf(stdout, "✅ %s: %s\n", verb+"d", *codeID)
	return 0
}

func runExecute(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("execute", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	node := cmd.String("node", "http://localhost:8080", "node base URL")
	codeID := cmd.String("code-id", "", "UserCode id (REQUIRED)")
	submitter := cmd.String("submitter", "", "submitter verify key (REQUIRED)")
	kwargsJSON := cmd.String("kwargs", "{}", "call kwargs, as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *codeID == "" || *submitter == "" {
		fmt.Fprintln(stderr, "❌ -code-id and -submitter are required")
		return 2
	}
	var kwargs map[string]interface{}
	if err := json.Unmarshal([]byte(*kwargsJSON), &kwargs); err != nil {
		fmt.Fprintf(stderr, "❌ -kwargs: %v\n", err)
		return 2
	}

	req := map[string]interface{}{
		"code_id":   *codeID,
		"submitter": *submitter,
		"kwargs":    kwargs,
	}
	var result contracts.ExecutionResult
	if _, err := postJSON(*node, "/api/v1/usercode/execute", req, &result); err != nil {
		fmt.Fprintf(stderr, "❌ execute failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "✅ executed: %s\n", *codeID)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return 0
}

func runResult(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("result", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	node := cmd.String("node", "http://localhost:8080", "node base URL")
	codeID := cmd.String("code-id", "", "UserCode id (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *codeID == "" {
		fmt.Fprintln(stderr, "❌ -code-id is required")
		return 2
	}

	var result contracts.ExecutionResult
	if _, err := getJSON(*node, "/api/v1/usercode/result?code_id="+*codeID, &result); err != nil {
		fmt.Fprintf(stderr, "❌ result: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return 0
}

func runHealth(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("health", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	node := cmd.String("node", "http://localhost:8080", "node base URL")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	resp, err := httpClient.Get(*node + "/healthz")
	if err != nil {
		fmt.Fprintf(stderr, "❌ health check failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "❌ health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(stdout, "✅ node is healthy")
	return 0
}
