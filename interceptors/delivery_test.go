package interceptors

import (
	"context"
	"errors"
	"testing"

	"github.com/glimte/fishbus-go/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockDelivery struct {
	mock.Mock
	envelope *contracts.Envelope
}

func (m *mockDelivery) Envelope() *contracts.Envelope {
	return m.envelope
}

func (m *mockDelivery) Acknowledge() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockDelivery) Reject(requeue bool) error {
	args := m.Called(requeue)
	return args.Error(0)
}

func TestDeliveryHandler(t *testing.T) {
	t.Run("acknowledges on success", func(t *testing.T) {
		delivery := &mockDelivery{envelope: newTestEnvelope("m-1", "test")}
		delivery.On("Acknowledge").Return(nil).Once()

		handler := &mockHandler{}
		handler.On("Handle", mock.Anything, delivery.envelope).Return(nil)

		err := DeliveryHandler(NewInterceptorChain(nil), handler, nil)(context.Background(), delivery)

		assert.NoError(t, err)
		delivery.AssertExpectations(t)
		delivery.AssertNotCalled(t, "Reject", mock.Anything)
	})

	t.Run("rejects without requeue on failure", func(t *testing.T) {
		delivery := &mockDelivery{envelope: newTestEnvelope("m-1", "test")}
		delivery.On("Reject", false).Return(nil).Once()

		handlerErr := errors.New("boom")
		handler := &mockHandler{}
		handler.On("Handle", mock.Anything, mock.Anything).Return(handlerErr)

		err := DeliveryHandler(nil, handler, nil)(context.Background(), delivery)

		assert.ErrorIs(t, err, handlerErr)
		delivery.AssertExpectations(t)
		delivery.AssertNotCalled(t, "Acknowledge")
	})

	t.Run("returns acknowledge errors", func(t *testing.T) {
		delivery := &mockDelivery{envelope: newTestEnvelope("m-1", "test")}
		ackErr := errors.New("channel closed")
		delivery.On("Acknowledge").Return(ackErr)

		handler := &mockHandler{}
		handler.On("Handle", mock.Anything, mock.Anything).Return(nil)

		err := DeliveryHandler(nil, handler, nil)(context.Background(), delivery)
		assert.ErrorIs(t, err, ackErr)
	})
}
