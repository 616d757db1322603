package accounts_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/internal/database"
	"github.com/goliatone/go-accounts/migrations"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

// rsaKey returns a key shared by the whole test binary
func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// spySigner counts Sign calls
type spySigner struct {
	accounts.Signer
	mu    sync.Mutex
	signs int
}

func (s *spySigner) Sign(claims accounts.Claims) (string, error) {
	s.mu.Lock()
	s.signs++
	s.mu.Unlock()
	return s.Signer.Sign(claims)
}

func (s *spySigner) Signs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signs
}

type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) FindByCredentials(ctx context.Context, email, password string) (*accounts.User, error) {
	args := m.Called(ctx, email, password)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockAccountStore) FindByID(ctx context.Context, id accounts.IdentityRef) (*accounts.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockAccountStore) CurrentTier(ctx context.Context, id accounts.IdentityRef) (accounts.Tier, error) {
	args := m.Called(ctx, id)
	tier, _ := args.Get(0).(accounts.Tier)
	return tier, args.Error(1)
}

type recordingSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event accounts.ActivityEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Types() []accounts.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accounts.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type recordingNotifier struct {
	mu          sync.Mutex
	activations map[string]string
	passwords   map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		activations: map[string]string{},
		passwords:   map[string]string{},
	}
}

func (n *recordingNotifier) SendActivation(_ context.Context, user *accounts.User, code string) error {
	n.mu.Lock()
	n.activations[user.Email] = code
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) SendPassword(_ context.Context, user *accounts.User, password string) error {
	n.mu.Lock()
	n.passwords[user.Email] = password
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) Activation(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.activations[email]
}

func (n *recordingNotifier) Password(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.passwords[email]
}

// tokenFixture wires a signer, issuer and verifier around one clock
type tokenFixture struct {
	clock    *testClock
	signer   *spySigner
	issuer   *accounts.TokenIssuer
	verifier *accounts.TokenVerifier
}

func newTokenFixture(t *testing.T, merger *accounts.ClaimMerger) *tokenFixture {
	t.Helper()

	clock := newTestClock(epoch)
	rs, err := accounts.NewRSASignerFromKey(rsaKey(t), accounts.WithSignerClock(clock.Now))
	require.NoError(t, err)

	spy := &spySigner{Signer: rs}
	cfg := accounts.TokenConfig{}

	issuer, err := accounts.NewTokenIssuer(spy, merger, cfg, accounts.WithIssuerClock(clock.Now))
	require.NoError(t, err)

	verifier, err := accounts.NewTokenVerifier(spy, cfg)
	require.NoError(t, err)

	return &tokenFixture{
		clock:    clock,
		signer:   spy,
		issuer:   issuer,
		verifier: verifier,
	}
}

// openTestDB returns a migrated in memory sqlite database
func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Migrate(ctx, db.SQL, db.Driver, nil))
	return db
}

type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByIdentifier(ctx context.Context, identifier string) (*accounts.User, error) {
	args := m.Called(ctx, identifier)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *accounts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *accounts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}
