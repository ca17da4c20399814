// Package catalogtest provides a conformance test suite for catalog backends.
//
// All catalog backends (memory, badger, sqlite, postgres) should pass these
// tests. The suite pins down the Catalog contract: idempotent creation, the
// (parent_id, name) index, atomic try-lock and stale-lock recovery.
//
// Usage:
//
//	func TestConformance(t *testing.T) {
//	    catalogtest.RunConformanceSuite(t, func(t *testing.T) catalog.Catalog {
//	        return memory.New()
//	    })
//	}
//
// The factory receives *testing.T so it can call t.TempDir() for backends
// that need filesystem paths and t.Cleanup for teardown.
package catalogtest
