package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type PusherMock struct {
	mock.Mock
}

func (m *PusherMock) PushNotification(userID int64, n models.Notification) {
	m.Called(userID, n)
}

type IssuerMock struct {
	mock.Mock
}

func (m *IssuerMock) Issue(userID int64) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}
