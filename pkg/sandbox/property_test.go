//go:build property
// +build property

package sandbox

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/uclse/pkg/codeparse"
	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/jobstore"
	"github.com/Mindburn-Labs/uclse/pkg/policy"
)

// TestExecute_StdoutIsExactlyConcatenatedPrints checks that the
// stdout/stderr captured by the runtime is exactly the concatenation
// of the user's print outputs in program order — nothing dropped,
// nothing interleaved, nothing added.
func TestExecute_StdoutIsExactlyConcatenatedPrints(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("stdout equals newline-joined print lines in order", prop.ForAll(
		func(a, b, c string) bool {
			jobs := jobstore.NewInMemoryJobStore()
			logs := jobstore.NewInMemoryLogStore()
			rt := NewRuntime(jobs, logs, nil, nil)

			src := fmt.Sprintf(`func f() int {
	print(%q)
	print(%q)
	print(%q)
	return 1
}`, a, b, c)

			out, err := codeparse.Normalize(src, "f", "user_func_f_prop")
			if err != nil {
				return true // alpha-only generators always parse; nothing to check
			}

			code := &contracts.UserCode{
				ID:              "prop-code",
				RewrittenSource: out.WrapperSource,
				ServiceFuncName: "f",
				UniqueFuncName:  "user_func_f_prop",
				NestedCodes:     map[string]string{},
			}

			job, err := jobs.Create("", code.ID, "pool-1")
			if err != nil {
				return false
			}

			in, _ := policy.NewEmptyInputPolicy(nil)
			outPolicy, _ := policy.NewUnlimitedOutputPolicy(nil)

			result, err := rt.Execute(job.ID, code, "submitter-key", map[string]interface{}{}, in, outPolicy)
			if err != nil {
				return false
			}

			expected := a + "\n" + b + "\n" + c + "\n"
			return result.Stdout == expected && result.Stderr == expected
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
