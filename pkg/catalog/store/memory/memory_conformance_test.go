package memory_test

import (
	"testing"

	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/catalog/catalogtest"
	"github.com/inftyai/mantafs/pkg/catalog/store/memory"
)

func TestConformance(t *testing.T) {
	catalogtest.RunConformanceSuite(t, func(t *testing.T) catalog.Catalog {
		store := memory.New()
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}
