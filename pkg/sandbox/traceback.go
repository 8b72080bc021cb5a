package sandbox

import (
	"fmt"
	"strings"
)

// frameTraceback builds the framed error block written to the job
// log: a window of source lines around the faulty line, the faulty
// line itself marked with "--> ", every other line in the window
// indented to match, wrapped with a header naming the failing
// function. lineNr is 1-based.
func frameTraceback(funcName, source string, lineNr int, cause error) string {
	lines := strings.Split(source, "\n")

	start := lineNr - 3 // two lines of context before
	if start < 0 {
		start = 0
	}
	end := lineNr + 2 // two lines of context after (exclusive)
	if end > len(lines) {
		end = len(lines)
	}

	var framed strings.Builder
	for i := start; i < end; i++ {
		marker := "    "
		if i == lineNr-1 {
			marker = "--> "
		}
		fmt.Fprintf(&framed, "%s%d %s\n", marker, i+1, lines[i])
	}

	return fmt.Sprintf("Encountered while executing %s:\n%v\n%s", funcName, cause, framed.String())
}
