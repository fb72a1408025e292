package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockSchemaSource is a mock implementation of SchemaSource
type MockSchemaSource struct {
	mock.Mock
}

func (m *MockSchemaSource) LoadSchema(ctx context.Context) (*Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Snapshot), args.Error(1)
}

func (m *MockSchemaSource) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSchemaSource) Close() {
	m.Called()
}

func TestSchemaRefresher_Refresh(t *testing.T) {
	source := new(MockSchemaSource)
	c := NewCluster(zap.NewNop())
	refresher := NewSchemaRefresher(source, c, time.Minute, zap.NewNop())

	ks := model.NewKeyspaceMetadata("ks", rf3)
	source.On("LoadSchema", mock.Anything).Return(&Snapshot{Keyspaces: []model.KeyspaceMetadata{ks}}, nil)

	require.NoError(t, refresher.Refresh(context.Background()))

	_, exists := c.Keyspace("ks")
	assert.True(t, exists)
	source.AssertExpectations(t)
}

func TestSchemaRefresher_RefreshError(t *testing.T) {
	source := new(MockSchemaSource)
	c := NewCluster(zap.NewNop())
	refresher := NewSchemaRefresher(source, c, time.Minute, zap.NewNop())

	source.On("LoadSchema", mock.Anything).Return(nil, errors.New("connection refused"))

	err := refresher.Refresh(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSchemaRefresher_StartStop(t *testing.T) {
	source := new(MockSchemaSource)
	c := NewCluster(zap.NewNop())
	refresher := NewSchemaRefresher(source, c, 10*time.Millisecond, zap.NewNop())

	loaded := make(chan struct{}, 1)
	source.On("LoadSchema", mock.Anything).Return(&Snapshot{}, nil).Run(func(mock.Arguments) {
		select {
		case loaded <- struct{}{}:
		default:
		}
	})

	refresher.Start()
	select {
	case <-loaded:
	case <-time.After(time.Second):
		t.Fatal("schema was not refreshed")
	}

	refresher.Stop()
	refresher.Stop()
}
