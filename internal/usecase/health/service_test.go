package health

import (
	"context"
	"errors"
	"testing"
)

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockChecker struct{ err error }

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockPinger{}, &mockPinger{}, &mockChecker{})

	report := svc.Check(context.Background())

	if report.Status != Healthy {
		t.Fatalf("status = %q", report.Status)
	}
	for name, res := range report.Checks {
		if res != CheckOK {
			t.Errorf("check %q = %q", name, res)
		}
	}
	if len(report.Checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(report.Checks))
	}
}

func TestCheck_RegistryDownDegrades(t *testing.T) {
	svc := New(&mockPinger{err: errors.New("down")}, &mockPinger{}, &mockChecker{})

	report := svc.Check(context.Background())

	if report.Status != Degraded {
		t.Fatalf("status = %q", report.Status)
	}
	if report.Checks["registry"] != CheckError {
		t.Errorf("registry check = %q", report.Checks["registry"])
	}
	if report.Checks["cache"] != CheckOK {
		t.Errorf("cache check = %q", report.Checks["cache"])
	}
}

func TestCheck_OptionalComponentsSkipped(t *testing.T) {
	svc := New(&mockPinger{}, nil, nil)

	report := svc.Check(context.Background())

	if report.Status != Healthy {
		t.Fatalf("status = %q", report.Status)
	}
	if len(report.Checks) != 1 {
		t.Fatalf("expected registry check only, got %v", report.Checks)
	}
}
