package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/domain/repositories"
	apperrors "github.com/Yulya9904/cars-insurance/pkg/errors"
)

const vehicleID int64 = 3

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewStore()
	s.store.now = func() time.Time { return time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC) }

	district := int64(1)
	s.store.AddDistrict(district, "North")
	s.store.AddVehicle(entities.Vehicle{ID: vehicleID, Model: "Lada Vesta", StateNumber: "A123BC", HomeDistrictID: &district})
	s.store.AddVehicle(entities.Vehicle{ID: 4, Model: "Kia Rio", StateNumber: "B777OP"})
}

func (s *StoreSuite) date(v string) time.Time {
	d, err := entities.ParseDate(v)
	s.Require().NoError(err)
	return d
}

func (s *StoreSuite) policy(vehicle int64, start, end string) *entities.Insurance {
	return &entities.Insurance{
		VehicleID:   vehicle,
		InsurerName: "Acme",
		StartDate:   s.date(start),
		EndDate:     s.date(end),
		Cost:        decimal.RequireFromString("100.50"),
	}
}

func (s *StoreSuite) create(vehicle int64, start, end string) int64 {
	id, err := s.store.Create(s.ctx, s.policy(vehicle, start, end))
	s.Require().NoError(err)
	return id
}

func (s *StoreSuite) TestOverlapRejectedAdjacentAccepted() {
	s.create(vehicleID, "2024-01-01", "2024-06-30")

	_, err := s.store.Create(s.ctx, s.policy(vehicleID, "2024-05-01", "2024-12-31"))
	s.Require().Error(err)
	appErr, ok := apperrors.As(err)
	s.Require().True(ok)
	s.Equal(apperrors.ErrorTypeConflict, appErr.Type)
	s.Equal(repositories.MsgPeriodTaken, appErr.Message)

	_, err = s.store.Create(s.ctx, s.policy(vehicleID, "2024-07-01", "2024-12-31"))
	s.NoError(err)
}

func (s *StoreSuite) TestOtherVehicleNeverConflicts() {
	s.create(vehicleID, "2024-01-01", "2024-06-30")
	_, err := s.store.Create(s.ctx, s.policy(4, "2024-01-01", "2024-06-30"))
	s.NoError(err)
}

func (s *StoreSuite) TestUnknownVehicleRejected() {
	_, err := s.store.Create(s.ctx, s.policy(99, "2024-01-01", "2024-06-30"))
	s.True(apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func (s *StoreSuite) TestSelfExclusionOnEdit() {
	id := s.create(vehicleID, "2024-01-01", "2024-06-30")

	existing, err := s.store.GetByID(s.ctx, id)
	s.Require().NoError(err)
	existing.Cost = decimal.RequireFromString("120.00")

	s.Require().NoError(s.store.Update(s.ctx, existing))

	reloaded, err := s.store.GetByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("120.00", reloaded.Cost.StringFixed(2))
}

func (s *StoreSuite) TestEditIntoNeighbourRejected() {
	s.create(vehicleID, "2024-01-01", "2024-06-30")
	second := s.create(vehicleID, "2024-07-01", "2024-12-31")

	moved, err := s.store.GetByID(s.ctx, second)
	s.Require().NoError(err)
	moved.StartDate = s.date("2024-06-30")

	err = s.store.Update(s.ctx, moved)
	s.True(apperrors.IsType(err, apperrors.ErrorTypeConflict))
}

func (s *StoreSuite) TestRoundTrip() {
	input := s.policy(vehicleID, "2024-01-01", "2024-06-30")
	id, err := s.store.Create(s.ctx, input)
	s.Require().NoError(err)

	got, err := s.store.GetByID(s.ctx, id)
	s.Require().NoError(err)
	s.Require().NotNil(got)

	s.Equal(id, got.ID)
	s.Equal(input.VehicleID, got.VehicleID)
	s.Equal(input.InsurerName, got.InsurerName)
	s.Equal(input.StartDate, got.StartDate)
	s.Equal(input.EndDate, got.EndDate)
	s.True(input.Cost.Equal(got.Cost))
	s.Equal("Lada Vesta", got.VehicleModel)
	s.Equal("A123BC", got.StateNumber)
	s.Equal("North", got.DistrictName)
	s.False(got.CreatedAt.IsZero())
}

func (s *StoreSuite) TestDeleteThenAbsent() {
	id := s.create(vehicleID, "2024-01-01", "2024-06-30")

	deleted, err := s.store.Delete(s.ctx, id)
	s.Require().NoError(err)
	s.True(deleted)

	got, err := s.store.GetByID(s.ctx, id)
	s.NoError(err)
	s.Nil(got)

	deleted, err = s.store.Delete(s.ctx, id)
	s.NoError(err)
	s.False(deleted)
}

func (s *StoreSuite) TestListOrderedByEndDateDesc() {
	s.create(vehicleID, "2023-12-01", "2024-01-01")
	s.create(vehicleID, "2024-03-02", "2024-06-01")
	s.create(vehicleID, "2024-01-02", "2024-03-01")
	s.create(4, "2024-01-01", "2024-12-31")

	vehicle := vehicleID
	list, err := s.store.List(s.ctx, repositories.InsuranceFilter{VehicleID: &vehicle})
	s.Require().NoError(err)
	s.Require().Len(list, 3)

	var ends []string
	for _, ins := range list {
		ends = append(ends, entities.FormatDate(ins.EndDate))
	}
	s.Equal([]string{"2024-06-01", "2024-03-01", "2024-01-01"}, ends)

	all, err := s.store.List(s.ctx, repositories.InsuranceFilter{})
	s.Require().NoError(err)
	s.Len(all, 4)
}

func (s *StoreSuite) TestListEmpty() {
	vehicle := vehicleID
	list, err := s.store.List(s.ctx, repositories.InsuranceFilter{VehicleID: &vehicle})
	s.NoError(err)
	s.NotNil(list)
	s.Empty(list)
}

func (s *StoreSuite) TestGetActive() {
	s.create(vehicleID, "2024-01-01", "2024-03-09")
	current := s.create(vehicleID, "2024-03-10", "2024-09-30")

	active, err := s.store.GetActive(s.ctx, vehicleID)
	s.Require().NoError(err)
	s.Require().NotNil(active)
	s.Equal(current, active.ID)

	none, err := s.store.GetActive(s.ctx, 4)
	s.NoError(err)
	s.Nil(none)
}

func (s *StoreSuite) TestReturnedRecordsAreCopies() {
	id := s.create(vehicleID, "2024-01-01", "2024-06-30")

	got, err := s.store.GetByID(s.ctx, id)
	s.Require().NoError(err)
	got.InsurerName = "Mutated"

	again, err := s.store.GetByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("Acme", again.InsurerName)
}

func (s *StoreSuite) TestVehicleLookup() {
	vehicle, err := s.store.Vehicles().GetByID(s.ctx, vehicleID)
	s.Require().NoError(err)
	s.Require().NotNil(vehicle)
	s.Equal("North", vehicle.DistrictName)

	missing, err := s.store.Vehicles().GetByID(s.ctx, 99)
	s.NoError(err)
	s.Nil(missing)

	options, err := s.store.Vehicles().ListForSelector(s.ctx)
	s.Require().NoError(err)
	s.Equal([]entities.VehicleOption{
		{ID: 4, Label: "Kia Rio B777OP"},
		{ID: vehicleID, Label: "Lada Vesta A123BC"},
	}, options)
}

// Every pair of periods on a small grid must be accepted or rejected exactly
// when the pair shares a day, whichever of the two is stored first.
func TestStore_OverlapIsSymmetric(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	const span = 5

	var periods []entities.Period
	for s := 0; s < span; s++ {
		for e := s; e < span; e++ {
			periods = append(periods, entities.Period{Start: base.AddDate(0, 0, s), End: base.AddDate(0, 0, e)})
		}
	}

	tryPair := func(first, second entities.Period) bool {
		store := NewStore()
		store.AddVehicle(entities.Vehicle{ID: vehicleID})
		_, err := store.Create(context.Background(), &entities.Insurance{VehicleID: vehicleID, StartDate: first.Start, EndDate: first.End})
		require.NoError(t, err)
		_, err = store.Create(context.Background(), &entities.Insurance{VehicleID: vehicleID, StartDate: second.Start, EndDate: second.End})
		return err == nil
	}

	for _, a := range periods {
		for _, b := range periods {
			accepted := tryPair(a, b)
			assert.Equal(t, !a.Overlaps(b), accepted, "%s then %s", a, b)
			assert.Equal(t, accepted, tryPair(b, a), "%s then %s", b, a)
		}
	}
}

func TestStore_ConcurrentCreatesAdmitOne(t *testing.T) {
	store := NewStore()
	store.AddVehicle(entities.Vehicle{ID: vehicleID})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			_, err := store.Create(context.Background(), &entities.Insurance{
				VehicleID: vehicleID,
				StartDate: start.AddDate(0, 0, offset%3),
				EndDate:   start.AddDate(0, 1, 0),
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
}

func TestStore_AuditAppend(t *testing.T) {
	store := NewStore()
	entry := &entities.AuditEntry{Author: "fleet@example.com", Action: entities.AuditActionDelete, RecordID: 5}

	require.NoError(t, store.Append(context.Background(), entry))

	log := store.AuditLog()
	require.Len(t, log, 1)
	assert.Equal(t, int64(1), log[0].ID)
	assert.Equal(t, entities.AuditActionDelete, log[0].Action)
	assert.False(t, log[0].CreatedAt.IsZero())
}
