package factory

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/gameauth/internal/dependencies/mocks"
	"github.com/mcoot/gameauth/internal/metrics"
	"github.com/mcoot/gameauth/internal/services/auth"
	"github.com/mcoot/gameauth/internal/storage/memory"
	"github.com/mcoot/gameauth/internal/testutil"
)

// TestSecret signs tokens in test apps
const TestSecret = "test-secret"

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	MockSender *mocks.MockSender
	Memory     *memory.Storage
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	return NewTestAppWithConfig(auth.DefaultConfig())
}

// NewTestAppWithConfig creates a test App with the given auth settings
func NewTestAppWithConfig(authCfg auth.Config) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	mockSender := mocks.NewMockSender()

	app, err := newWithDependencies(store, mockClock, mockRandom, mockSender, metrics.New(), Config{
		JWTSecret:  []byte(TestSecret),
		BcryptCost: bcrypt.MinCost,
		AuthConfig: authCfg,
	}, testutil.NopLogger())
	if err != nil {
		panic(err)
	}

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		MockSender: mockSender,
		Memory:     store,
	}
}
