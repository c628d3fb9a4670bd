package backend

import (
	"context"
	"errors"
	"testing"
	"time"
)

// ContractTest drives the standard behavior suite every backend
// implementation is expected to pass. Implementations wire it up from
// their own test files:
//
//	func TestEnvBackendContract(t *testing.T) {
//	    backend.RunContractTests(t, backend.ContractTest{
//	        CreateBackend: func(t *testing.T) backend.Backend { ... },
//	        SetupConnection: func(t *testing.T, b backend.Backend) (connID string, cleanup func()) { ... },
//	    })
//	}
type ContractTest struct {
	// CreateBackend returns a fresh backend instance to test.
	CreateBackend func(t *testing.T) Backend

	// SetupConnection stores a test connection in the backend and returns
	// its conn id plus a cleanup function. Leave nil when the backend
	// cannot be seeded from a test (the retrieval subtests are skipped).
	SetupConnection func(t *testing.T, b Backend) (connID string, cleanup func())

	// SkipValidate skips the Validate subtest for backends that need live
	// credentials.
	SkipValidate bool
}

// RunContractTests runs the shared backend behavior suite.
func RunContractTests(t *testing.T, contract ContractTest) {
	t.Run("Contract", func(t *testing.T) {
		t.Run("Name", func(t *testing.T) {
			testName(t, contract)
		})
		t.Run("Capabilities", func(t *testing.T) {
			testCapabilities(t, contract)
		})
		if !contract.SkipValidate {
			t.Run("Validate", func(t *testing.T) {
				testValidate(t, contract)
			})
		}
		t.Run("GetConnValue", func(t *testing.T) {
			testGetConnValue(t, contract)
		})
		t.Run("GetConnection", func(t *testing.T) {
			testGetConnection(t, contract)
		})
		t.Run("NotFound", func(t *testing.T) {
			testNotFound(t, contract)
		})
		t.Run("ContextCancellation", func(t *testing.T) {
			testContextCancellation(t, contract)
		})
	})
}

func testName(t *testing.T, contract ContractTest) {
	b := contract.CreateBackend(t)

	name := b.Name()
	if name == "" {
		t.Error("Backend.Name() returned empty string")
	}
	if name != b.Name() {
		t.Error("Backend.Name() not stable between calls")
	}
}

func testCapabilities(t *testing.T, contract ContractTest) {
	b := contract.CreateBackend(t)

	caps := b.Capabilities()
	caps2 := b.Capabilities()
	if caps.SupportsVariables != caps2.SupportsVariables ||
		caps.SupportsListing != caps2.SupportsListing ||
		caps.RequiresAuth != caps2.RequiresAuth {
		t.Error("Backend.Capabilities() not consistent between calls")
	}

	if caps.RequiresAuth && len(caps.AuthMethods) == 0 {
		t.Error("Backend requires auth but lists no auth methods")
	}
}

func testValidate(t *testing.T, contract ContractTest) {
	b := contract.CreateBackend(t)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- b.Validate(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			// Not configured in a test environment is acceptable; the
			// point is that Validate returns instead of hanging.
			t.Logf("Validate failed (expected in test environment): %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Backend.Validate() timed out after 5 seconds")
	}
}

func testGetConnValue(t *testing.T, contract ContractTest) {
	if contract.SetupConnection == nil {
		t.Skip("backend cannot be seeded from tests")
	}

	b := contract.CreateBackend(t)
	connID, cleanup := contract.SetupConnection(t, b)
	defer cleanup()

	value, err := b.GetConnValue(context.Background(), connID)
	if err != nil {
		t.Fatalf("GetConnValue(%q) failed: %v", connID, err)
	}
	if value == "" {
		t.Errorf("GetConnValue(%q) returned empty value", connID)
	}
}

func testGetConnection(t *testing.T, contract ContractTest) {
	if contract.SetupConnection == nil {
		t.Skip("backend cannot be seeded from tests")
	}

	b := contract.CreateBackend(t)
	connID, cleanup := contract.SetupConnection(t, b)
	defer cleanup()

	conn, err := b.GetConnection(context.Background(), connID)
	if err != nil {
		t.Fatalf("GetConnection(%q) failed: %v", connID, err)
	}
	if conn.ConnID != connID {
		t.Errorf("GetConnection(%q) returned conn_id %q", connID, conn.ConnID)
	}
	if conn.ConnType == "" {
		t.Errorf("GetConnection(%q) returned empty conn_type", connID)
	}
}

func testNotFound(t *testing.T, contract ContractTest) {
	b := contract.CreateBackend(t)

	_, err := b.GetConnValue(context.Background(), "skein-contract-test-does-not-exist")
	if err == nil {
		t.Fatal("GetConnValue for a missing id returned no error")
	}

	var notFound NotFoundError
	if !errors.As(err, &notFound) {
		// Unconfigured backends may fail before the lookup; an AuthError
		// is acceptable there, anything else is not.
		var authErr AuthError
		if !errors.As(err, &authErr) {
			t.Errorf("missing id returned %T (%v), want NotFoundError", err, err)
		}
	}
}

func testContextCancellation(t *testing.T, contract ContractTest) {
	b := contract.CreateBackend(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = b.GetConnValue(ctx, "skein-contract-test-cancelled")
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Error("GetConnValue did not return after context cancellation")
	}
}
