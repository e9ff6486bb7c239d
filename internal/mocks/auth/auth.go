package auth

// Package auth contains simple hand-written test doubles for auth and storage ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/uvalib/tracksys2/internal/domain/auth"
	"github.com/uvalib/tracksys2/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider  = (*MockAuthProvider)(nil)
	_ ports.ClientStorage = (*MemoryStorage)(nil)
	_ ports.RoleMapper    = (*StaticRoleMapper)(nil)
	_ ports.Navigator     = (*RecordingNavigator)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	// Deterministic values for predictable testing
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	// Internal state tracking for deterministic behavior
	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: defaultIdentity(),
	}
}

func defaultIdentity() domainauth.Identity {
	return domainauth.Identity{
		UserID:    7,
		ComputeID: "mock1u",
		FirstName: "Mock",
		LastName:  "User",
		Email:     "mock1u@example.edu",
		Groups:    []string{"tracksys-students"},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.callCount++
	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}

	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}

	state := fmt.Sprintf("%s-%d", statePrefix, m.callCount)
	nonce := fmt.Sprintf("%s-%d", noncePrefix, m.callCount)

	return authURL, state, nonce, nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}

	// Return a copy of the default user with a fresh expiration time
	user := m.DefaultUser
	if user.ComputeID == "" {
		user = defaultIdentity()
	}
	user.ExpiresAt = time.Now().Add(time.Hour)

	return user, nil
}

// MemoryStorage is an in-memory ClientStorage that records reads of each key
// and can be told to fail.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
	reads  map[string]int
	Err    error
}

// NewMemoryStorage creates storage seeded with the given values.
func NewMemoryStorage(seed map[string]string) *MemoryStorage {
	s := &MemoryStorage{values: map[string]string{}, reads: map[string]int{}}
	for k, v := range seed {
		s.values[k] = v
	}
	return s
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.lazyInit()
	m.reads[key]++
	return m.values[key], nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.lazyInit()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.lazyInit()
	delete(m.values, key)
	return nil
}

// Peek returns a value without counting it as a read.
func (m *MemoryStorage) Peek(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// Reads returns how many times key was read through Get.
func (m *MemoryStorage) Reads(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[key]
}

func (m *MemoryStorage) lazyInit() {
	if m.values == nil {
		m.values = map[string]string{}
	}
	if m.reads == nil {
		m.reads = map[string]int{}
	}
}

// StaticRoleMapper maps groups by simple string membership rules.
type StaticRoleMapper struct {
	AdminGroup  string
	ViewerGroup string
}

func (m StaticRoleMapper) Map(groups []string) (domainauth.Role, bool) {
	for _, g := range groups {
		if m.AdminGroup != "" && g == m.AdminGroup {
			return domainauth.RoleAdmin, true
		}
	}
	for _, g := range groups {
		if m.ViewerGroup != "" && g == m.ViewerGroup {
			return domainauth.RoleViewer, true
		}
	}
	return "", false
}

// RecordingNavigator remembers every pushed path.
type RecordingNavigator struct {
	mu    sync.Mutex
	Paths []string
}

func (n *RecordingNavigator) Push(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Paths = append(n.Paths, path)
}

// Last returns the most recent path, or "".
func (n *RecordingNavigator) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Paths) == 0 {
		return ""
	}
	return n.Paths[len(n.Paths)-1]
}
