package sqlite

import (
	"testing"

	"github.com/chifamba/dzinza-sub004/testutil"
)

func TestImportsOnlyDomainAndMemoryStore(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.OutsideAllowlist("github.com/chifamba/dzinza-sub004", "pkg/domain", "internal/infra/persistence/memory"),
		"durable drivers depend on the domain and the memory store only")
}
