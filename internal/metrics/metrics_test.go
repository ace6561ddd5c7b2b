package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	ResolutionsTotal.WithLabelValues("magnet", "done").Inc()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() == "resolver_resolutions_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("resolver_resolutions_total not gathered")
	}
}
