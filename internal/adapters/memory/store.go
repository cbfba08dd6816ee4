// Package memory provides in-process repositories for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/domain/repositories"
	apperrors "github.com/Yulya9904/cars-insurance/pkg/errors"
)

// Store keeps vehicles, districts, policies and the audit log in memory. A
// single mutex serializes writers, which gives the same guarantee as the
// vehicle row lock in PostgreSQL.
type Store struct {
	mu         sync.RWMutex
	vehicles   map[int64]entities.Vehicle
	districts  map[int64]string
	insurances map[int64]entities.Insurance
	audit      []entities.AuditEntry
	nextID     int64
	nextAudit  int64
	now        func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		vehicles:   make(map[int64]entities.Vehicle),
		districts:  make(map[int64]string),
		insurances: make(map[int64]entities.Insurance),
		now:        time.Now,
	}
}

var (
	_ repositories.InsuranceRepository = (*Store)(nil)
	_ repositories.AuditLogRepository  = (*Store)(nil)
)

// AddDistrict registers a district name
func (s *Store) AddDistrict(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.districts[id] = name
}

// AddVehicle registers a vehicle
func (s *Store) AddVehicle(v entities.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.DistrictName = ""
	s.vehicles[v.ID] = v
}

// Vehicles returns the vehicle lookup backed by this store
func (s *Store) Vehicles() repositories.VehicleRepository {
	return vehicleView{s}
}

// AuditLog returns a copy of every appended entry
func (s *Store) AuditLog() []entities.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entities.AuditEntry(nil), s.audit...)
}

// List retrieves policies, latest end date first, then by district name
func (s *Store) List(_ context.Context, filter repositories.InsuranceFilter) ([]*entities.Insurance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*entities.Insurance{}
	for _, ins := range s.insurances {
		if filter.VehicleID != nil && ins.VehicleID != *filter.VehicleID {
			continue
		}
		joined := s.joinLocked(ins)
		out = append(out, &joined)
	}
	sortInsurances(out)
	return out, nil
}

// GetActive retrieves the vehicle's policy covering today
func (s *Store) GetActive(_ context.Context, vehicleID int64) (*entities.Insurance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := s.now()
	var active []*entities.Insurance
	for _, ins := range s.insurances {
		if ins.VehicleID == vehicleID && ins.Period().Contains(today) {
			joined := s.joinLocked(ins)
			active = append(active, &joined)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}
	sortInsurances(active)
	return active[0], nil
}

// GetByID retrieves a policy by ID
func (s *Store) GetByID(_ context.Context, id int64) (*entities.Insurance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ins, ok := s.insurances[id]
	if !ok {
		return nil, nil
	}
	joined := s.joinLocked(ins)
	return &joined, nil
}

// Create stores a new policy when its period is free
func (s *Store) Create(_ context.Context, insurance *entities.Insurance) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWritableLocked(insurance, nil); err != nil {
		return 0, err
	}

	s.nextID++
	stored := writable(*insurance)
	stored.ID = s.nextID
	stored.CreatedAt = s.now().UTC()
	s.insurances[stored.ID] = stored

	insurance.ID = stored.ID
	insurance.CreatedAt = stored.CreatedAt
	return stored.ID, nil
}

// Update overwrites the writable fields of an existing policy
func (s *Store) Update(_ context.Context, insurance *entities.Insurance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.insurances[insurance.ID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("insurance %d not found", insurance.ID))
	}
	self := insurance.ID
	if err := s.checkWritableLocked(insurance, &self); err != nil {
		return err
	}

	stored := writable(*insurance)
	stored.ID = existing.ID
	stored.CreatedAt = existing.CreatedAt
	s.insurances[stored.ID] = stored
	return nil
}

// Delete removes a policy
func (s *Store) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.insurances[id]; !ok {
		return false, nil
	}
	delete(s.insurances, id)
	return true, nil
}

// IsPeriodAvailable reports whether period is free for the vehicle
func (s *Store) IsPeriodAvailable(_ context.Context, vehicleID int64, period entities.Period, excludeID *int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.periodAvailableLocked(vehicleID, period, excludeID), nil
}

// Append stores an audit entry
func (s *Store) Append(_ context.Context, entry *entities.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAudit++
	entry.ID = s.nextAudit
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	s.audit = append(s.audit, *entry)
	return nil
}

func (s *Store) checkWritableLocked(insurance *entities.Insurance, excludeID *int64) error {
	if _, ok := s.vehicles[insurance.VehicleID]; !ok {
		return apperrors.NewValidationError("vehicle_id", fmt.Sprintf("vehicle %d does not exist", insurance.VehicleID))
	}
	if !s.periodAvailableLocked(insurance.VehicleID, insurance.Period(), excludeID) {
		return apperrors.NewConflictError(repositories.MsgPeriodTaken)
	}
	return nil
}

func (s *Store) periodAvailableLocked(vehicleID int64, period entities.Period, excludeID *int64) bool {
	for id, ins := range s.insurances {
		if ins.VehicleID != vehicleID {
			continue
		}
		if excludeID != nil && id == *excludeID {
			continue
		}
		if ins.Period().Overlaps(period) {
			return false
		}
	}
	return true
}

func (s *Store) joinLocked(ins entities.Insurance) entities.Insurance {
	if v, ok := s.vehicles[ins.VehicleID]; ok {
		ins.VehicleModel = v.Model
		ins.StateNumber = v.StateNumber
		if v.HomeDistrictID != nil {
			ins.DistrictName = s.districts[*v.HomeDistrictID]
		}
	}
	return ins
}

// writable keeps only the persisted columns of a policy.
func writable(ins entities.Insurance) entities.Insurance {
	return entities.Insurance{
		VehicleID:   ins.VehicleID,
		InsurerName: ins.InsurerName,
		StartDate:   entities.DateOf(ins.StartDate),
		EndDate:     entities.DateOf(ins.EndDate),
		Cost:        ins.Cost,
	}
}

func sortInsurances(list []*entities.Insurance) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.EndDate.Equal(b.EndDate) {
			return a.EndDate.After(b.EndDate)
		}
		if a.DistrictName != b.DistrictName {
			return a.DistrictName < b.DistrictName
		}
		return a.ID > b.ID
	})
}

type vehicleView struct {
	s *Store
}

func (v vehicleView) GetByID(_ context.Context, id int64) (*entities.Vehicle, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	vehicle, ok := v.s.vehicles[id]
	if !ok {
		return nil, nil
	}
	if vehicle.HomeDistrictID != nil {
		vehicle.DistrictName = v.s.districts[*vehicle.HomeDistrictID]
	}
	return &vehicle, nil
}

func (v vehicleView) ListForSelector(_ context.Context) ([]entities.VehicleOption, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	vehicles := make([]entities.Vehicle, 0, len(v.s.vehicles))
	for _, vehicle := range v.s.vehicles {
		vehicles = append(vehicles, vehicle)
	}
	sort.Slice(vehicles, func(i, j int) bool {
		if vehicles[i].Model != vehicles[j].Model {
			return vehicles[i].Model < vehicles[j].Model
		}
		return vehicles[i].StateNumber < vehicles[j].StateNumber
	})

	options := make([]entities.VehicleOption, 0, len(vehicles))
	for _, vehicle := range vehicles {
		options = append(options, entities.VehicleOption{
			ID:    vehicle.ID,
			Label: strings.TrimSpace(vehicle.Model + " " + vehicle.StateNumber),
		})
	}
	return options, nil
}
