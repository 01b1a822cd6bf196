package core

import (
	"testing"

	"github.com/chifamba/dzinza-sub004/testutil"
)

func TestCoordinatorStaysTransportFree(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.Any(
		testutil.Under("/internal/transport/", "/internal/platform/", "/internal/jobs/", "/internal/export/"),
		testutil.Under("net/http", "github.com/go-chi/", "github.com/prometheus/", "go.opentelemetry.io/"),
	), "the coordinator is wired by cmd/dzinza and must not reach outward")
}
