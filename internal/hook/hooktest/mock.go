// Package hooktest provides test doubles for the hook package.
package hooktest

import (
	"context"
	"sync"

	"github.com/flemzord/lorekeeper/internal/hook"
)

// MockHook is a configurable test double for hook.Hook.
type MockHook struct {
	EventVal    hook.Event
	PriorityVal int
	ExecuteFunc func(ctx context.Context, hctx *hook.Context) error

	mu    sync.Mutex
	Calls int
}

// Compile-time interface check.
var _ hook.Hook = (*MockHook)(nil)

// Event returns the configured event.
func (m *MockHook) Event() hook.Event { return m.EventVal }

// Priority returns the configured priority.
func (m *MockHook) Priority() int { return m.PriorityVal }

// Execute delegates to ExecuteFunc and increments the call counter.
func (m *MockHook) Execute(ctx context.Context, hctx *hook.Context) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, hctx)
	}
	return nil
}

// CallCount returns the number of times Execute was called.
func (m *MockHook) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// Renamed records one Rename call.
type Renamed struct {
	From, To string
}

// Appended records one AppendMemory call.
type Appended struct {
	Title, Line string
}

// MockAPI records every mutation requested through hook.API.
type MockAPI struct {
	mu        sync.Mutex
	Renames   []Renamed
	Appends   []Appended
	Messages  []string
	RenameErr error
}

// Compile-time interface check.
var _ hook.API = (*MockAPI)(nil)

// Rename implements hook.API.
func (m *MockAPI) Rename(from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Renames = append(m.Renames, Renamed{From: from, To: to})
	return m.RenameErr
}

// AppendMemory implements hook.API.
func (m *MockAPI) AppendMemory(title, line string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Appends = append(m.Appends, Appended{Title: title, Line: line})
	return true
}

// SetMessage implements hook.API.
func (m *MockAPI) SetMessage(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
}

// LastMessage returns the most recent message, or "".
func (m *MockAPI) LastMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Messages) == 0 {
		return ""
	}
	return m.Messages[len(m.Messages)-1]
}
