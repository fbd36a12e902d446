package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/storage"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetSettings(ctx context.Context, siteID string) (types.Settings, int, error) {
	args := m.Called(ctx, siteID)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.Settings), args.Int(1), args.Error(2)
	}
	return types.Settings{}, 0, nil
}

func (m *MockDatabase) SetSettings(ctx context.Context, siteID string, settings types.Settings, version int) error {
	args := m.Called(ctx, siteID, settings, version)
	return args.Error(0)
}

func (m *MockDatabase) GetSite(ctx context.Context, siteID string) (types.Site, error) {
	args := m.Called(ctx, siteID)
	if len(args) > 0 {
		return args.Get(0).(types.Site), args.Error(1)
	}
	return types.Site{}, nil
}

func (m *MockDatabase) ListSites(ctx context.Context) ([]types.Site, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).([]types.Site), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) UpsertSite(ctx context.Context, site types.Site) error {
	args := m.Called(ctx, site)
	return args.Error(0)
}

func (m *MockDatabase) ListTenants(ctx context.Context, siteID string) ([]types.Tenant, error) {
	args := m.Called(ctx, siteID)
	if len(args) > 0 {
		return args.Get(0).([]types.Tenant), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) UpsertTenant(ctx context.Context, siteID string, tenant types.Tenant) error {
	args := m.Called(ctx, siteID, tenant)
	return args.Error(0)
}

func (m *MockDatabase) ListMeters(ctx context.Context, siteID string) ([]types.Meter, error) {
	args := m.Called(ctx, siteID)
	if len(args) > 0 {
		return args.Get(0).([]types.Meter), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) UpsertMeter(ctx context.Context, siteID string, meter types.Meter) error {
	args := m.Called(ctx, siteID, meter)
	return args.Error(0)
}

func (m *MockDatabase) GetRawPayload(ctx context.Context, siteID, meterID string) (types.RawPayload, error) {
	args := m.Called(ctx, siteID, meterID)
	if len(args) > 0 {
		return args.Get(0).(types.RawPayload), args.Error(1)
	}
	return types.RawPayload{}, nil
}

func (m *MockDatabase) UpsertRawPayload(ctx context.Context, siteID string, payload types.RawPayload) error {
	args := m.Called(ctx, siteID, payload)
	return args.Error(0)
}

func (m *MockDatabase) ListShopTypes(ctx context.Context) ([]types.ShopType, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).([]types.ShopType), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) UpsertShopType(ctx context.Context, shopType types.ShopType) error {
	args := m.Called(ctx, shopType)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
