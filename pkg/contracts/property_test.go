//go:build property
// +build property

package contracts_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
)

// TestMigrateIsLosslessAndIdempotent checks that record migration
// v1->v3 is lossless for fields present in both versions, and
// idempotent (re-migrating an already-current record is
// a no-op).
func TestMigrateIsLosslessAndIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	versions := []contracts.RecordVersion{contracts.RecordV1, contracts.RecordV2, contracts.RecordV3}

	properties.Property("migration preserves fields common to all versions", prop.ForAll(
		func(versionIdx int, serviceFuncName, codeHash, pool string) bool {
			v := versions[versionIdx%len(versions)]
			c := &contracts.UserCode{
				Version:         v,
				ServiceFuncName: serviceFuncName,
				CodeHash:        codeHash,
			}
			if v >= contracts.RecordV3 {
				c.WorkerPoolID = pool
			}

			c.Migrate("default-pool")

			if c.Version != contracts.CurrentRecordVersion {
				return false
			}
			if c.ServiceFuncName != serviceFuncName || c.CodeHash != codeHash {
				return false
			}
			if c.NestedRequests == nil || c.NestedCodes == nil {
				return false
			}
			return true
		},
		gen.IntRange(0, len(versions)-1),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("migration is idempotent", prop.ForAll(
		func(versionIdx int, serviceFuncName string) bool {
			v := versions[versionIdx%len(versions)]
			c := &contracts.UserCode{Version: v, ServiceFuncName: serviceFuncName}

			c.Migrate("default-pool")
			first := *c

			c.Migrate("a-different-pool-should-not-matter")

			return c.Version == first.Version &&
				c.WorkerPoolID == first.WorkerPoolID &&
				c.ServiceFuncName == first.ServiceFuncName
		},
		gen.IntRange(0, len(versions)-1),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
