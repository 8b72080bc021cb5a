package sandbox

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
)

// hostStderr receives the operator-visibility mirror of every print
// line; a variable so tests can silence it.
var hostStderr io.Writer = os.Stderr

// outputCapture is a runtime-scoped stdout/stderr pair, installed for
// the duration of one execution and torn down on every exit path,
// including a recovered panic. The process's own streams are never
// redirected; submitted code can only write through the print shim.
type outputCapture struct {
	mu     sync.Mutex
	stdout strings.Builder
	stderr strings.Builder
}

func newOutputCapture() *outputCapture {
	return &outputCapture{}
}

func (c *outputCapture) writeStdout(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stdout.WriteString(line)
	c.stdout.WriteByte('\n')
}

func (c *outputCapture) writeStderr(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stderr.WriteString(line)
	c.stderr.WriteByte('\n')
}

func (c *outputCapture) Stdout() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stdout.String()
}

func (c *outputCapture) Stderr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stderr.String()
}

// printShim renders the arguments of one print(...) call from
// submitted code: bytes decode as UTF-8, a Job prints as "JOB: <id>",
// an error prints its message, an ActionObject prints its embedded
// data, everything else uses its default string form. Every call
// appends one log entry, writes the captured stdout/stderr pair, and
// mirrors the line to the host process's stderr for operator
// visibility.
func printShim(capture *outputCapture, logAppend func(text string), args []interface{}) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = renderPrintArg(a)
	}
	line := strings.Join(parts, " ")
	capture.writeStdout(line)
	capture.writeStderr(line)
	if logAppend != nil {
		logAppend(line)
	}
	fmt.Fprintln(hostStderr, line)
}

func renderPrintArg(a interface{}) string {
	switch v := a.(type) {
	case nil:
		return "<nil>"
	case []byte:
		return string(v)
	case *contracts.Job:
		return fmt.Sprintf("JOB: %s", v.ID)
	case contracts.Job:
		return fmt.Sprintf("JOB: %s", v.ID)
	case *contracts.ActionObject:
		return fmt.Sprintf("%v", v.Payload)
	case contracts.ActionObject:
		return fmt.Sprintf("%v", v.Payload)
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}
