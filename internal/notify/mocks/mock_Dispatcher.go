// Package mocks provides test doubles for the notify package.
package mocks

import (
	"context"

	notify "github.com/sells-group/benefits-notice/internal/notify"
	mock "github.com/stretchr/testify/mock"
)

// MockDispatcher is a mock type for the Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

// Send provides a mock function with given fields: ctx, from, msg
func (_m *MockDispatcher) Send(ctx context.Context, from notify.Sender, msg notify.Email) error {
	ret := _m.Called(ctx, from, msg)

	if len(ret) == 0 {
		panic("no return value specified for Send")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, notify.Sender, notify.Email) error); ok {
		r0 = rf(ctx, from, msg)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockDispatcher creates a new instance of MockDispatcher.
func NewMockDispatcher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockDispatcher {
	m := &MockDispatcher{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
