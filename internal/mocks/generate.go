// Package mocks provides gomock implementations of the ports used across tracksys2.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockClientStorage(ctrl)
//	store.EXPECT().Get(gomock.Any(), ports.KeyToken).Return("", nil)
package mocks

// Generate mocks for the ClientStorage and Navigator interfaces from internal/ports.
// ClientStorage: Get, Set, Remove. Navigator: Push.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/uvalib/tracksys2/internal/ports ClientStorage,Navigator

// Generate mocks for the Backend interface from internal/ports.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=backend_mock.go github.com/uvalib/tracksys2/internal/ports Backend
