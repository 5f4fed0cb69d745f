// Package mocks provides test doubles for the checkout client.
package mocks

import (
	"context"

	checkout "github.com/sells-group/leadmap/pkg/checkout"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// CreateSession provides a mock function with given fields: ctx, req
func (_m *MockClient) CreateSession(ctx context.Context, req checkout.SessionRequest) (*checkout.Session, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for CreateSession")
	}

	var r0 *checkout.Session
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, checkout.SessionRequest) (*checkout.Session, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*checkout.Session)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// GetSession provides a mock function with given fields: ctx, id
func (_m *MockClient) GetSession(ctx context.Context, id string) (*checkout.Session, error) {
	ret := _m.Called(ctx, id)

	if len(ret) == 0 {
		panic("no return value specified for GetSession")
	}

	var r0 *checkout.Session
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*checkout.Session, error)); ok {
		return rf(ctx, id)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*checkout.Session)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
