package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/domain/providers"
	"github.com/Yulya9904/cars-insurance/internal/domain/repositories"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/observability"
	apperrors "github.com/Yulya9904/cars-insurance/pkg/errors"
)

// MutationResult is the outcome of a write. Exactly one of ID or Err is set;
// ID is zero on failure.
type MutationResult struct {
	ID  int64
	Err *apperrors.AppError
}

// OK reports whether the mutation succeeded
func (r MutationResult) OK() bool {
	return r.Err == nil
}

func succeeded(id int64) MutationResult {
	return MutationResult{ID: id}
}

func failed(err *apperrors.AppError) MutationResult {
	return MutationResult{Err: err}
}

// InsuranceService orchestrates policy reads and writes: validation, the
// store, attachments, the audit log and change events.
type InsuranceService struct {
	insurances  repositories.InsuranceRepository
	vehicles    repositories.VehicleRepository
	audit       repositories.AuditLogRepository
	attachments providers.AttachmentProvider
	events      providers.EventBus
	metrics     *observability.Metrics
	now         func() time.Time
}

// NewInsuranceService creates a new insurance service. attachments, events
// and metrics may be nil.
func NewInsuranceService(
	insurances repositories.InsuranceRepository,
	vehicles repositories.VehicleRepository,
	audit repositories.AuditLogRepository,
	attachments providers.AttachmentProvider,
	events providers.EventBus,
	metrics *observability.Metrics,
) *InsuranceService {
	return &InsuranceService{
		insurances:  insurances,
		vehicles:    vehicles,
		audit:       audit,
		attachments: attachments,
		events:      events,
		metrics:     metrics,
		now:         time.Now,
	}
}

// Today returns the current date used for active lookups and freshness
func (s *InsuranceService) Today() time.Time {
	return entities.DateOf(s.now())
}

// ListInsurances lists every policy, or those of one vehicle when vehicleID
// is set. An unknown vehicle is NOT_FOUND.
func (s *InsuranceService) ListInsurances(ctx context.Context, vehicleID *int64) ([]*entities.Insurance, error) {
	ctx, span := observability.StartSpan(ctx, "InsuranceService.ListInsurances")
	defer span.End()

	if vehicleID != nil {
		if _, err := s.requireVehicle(ctx, *vehicleID); err != nil {
			return nil, err
		}
	}

	list, err := s.insurances.List(ctx, repositories.InsuranceFilter{VehicleID: vehicleID})
	if err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewInternalError("failed to list insurances", err)
	}
	for _, ins := range list {
		s.fillAttachments(ctx, ins)
	}
	return list, nil
}

// GetInsurance retrieves one policy with its attachments
func (s *InsuranceService) GetInsurance(ctx context.Context, id int64) (*entities.Insurance, error) {
	ctx, span := observability.StartSpan(ctx, "InsuranceService.GetInsurance", attribute.Int64("insurance.id", id))
	defer span.End()

	ins, err := s.load(ctx, id)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	s.fillAttachments(ctx, ins)
	return ins, nil
}

// GetActiveInsurance retrieves the policy covering today, nil when the
// vehicle has none
func (s *InsuranceService) GetActiveInsurance(ctx context.Context, vehicleID int64) (*entities.Insurance, error) {
	if _, err := s.requireVehicle(ctx, vehicleID); err != nil {
		return nil, err
	}
	ins, err := s.insurances.GetActive(ctx, vehicleID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get active insurance", err)
	}
	if ins != nil {
		s.fillAttachments(ctx, ins)
	}
	return ins, nil
}

// VehicleOptions lists vehicles for a selector
func (s *InsuranceService) VehicleOptions(ctx context.Context) ([]entities.VehicleOption, error) {
	options, err := s.vehicles.ListForSelector(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list vehicles", err)
	}
	return options, nil
}

// AddInsurance validates form and stores a new policy
func (s *InsuranceService) AddInsurance(ctx context.Context, actor string, form entities.InsuranceForm) MutationResult {
	ctx, span := observability.StartSpan(ctx, "InsuranceService.AddInsurance")
	defer span.End()

	fields, err := form.Validate(true)
	if err != nil {
		return s.fail(ctx, "add", err, repositories.MsgCreateFailed)
	}
	if _, err := s.requireVehicle(ctx, *fields.VehicleID); err != nil {
		return s.fail(ctx, "add", asValidation(err), repositories.MsgCreateFailed)
	}

	record := entities.Insurance{}.ApplyFields(fields)
	if err := s.checkPeriod(ctx, record, nil); err != nil {
		return s.fail(ctx, "add", err, repositories.MsgCreateFailed)
	}
	id, err := s.insurances.Create(ctx, &record)
	if err != nil {
		observability.RecordError(span, err)
		return s.fail(ctx, "add", err, repositories.MsgCreateFailed)
	}
	record.ID = id

	stored := s.reload(ctx, record)
	s.appendAudit(ctx, actor, ChangeAdd, stored.ID, Describe(ChangeAdd, stored, nil, ""))
	s.publish(ctx, entities.InsuranceEventCreated, stored.ID, stored.VehicleID)
	observability.RecordInsuranceWrite(ctx, s.metrics, "add", "ok")
	return succeeded(id)
}

// EditInsurance applies form to an existing policy. Submitting unchanged
// values succeeds without touching the store.
func (s *InsuranceService) EditInsurance(ctx context.Context, actor string, id int64, form entities.InsuranceForm) MutationResult {
	ctx, span := observability.StartSpan(ctx, "InsuranceService.EditInsurance", attribute.Int64("insurance.id", id))
	defer span.End()

	existing, err := s.load(ctx, id)
	if err != nil {
		return s.fail(ctx, "edit", err, repositories.MsgUpdateFailed)
	}
	fields, err := form.Validate(false)
	if err != nil {
		return s.fail(ctx, "edit", err, repositories.MsgUpdateFailed)
	}
	if fields.VehicleID != nil && *fields.VehicleID != existing.VehicleID {
		if _, err := s.requireVehicle(ctx, *fields.VehicleID); err != nil {
			return s.fail(ctx, "edit", asValidation(err), repositories.MsgUpdateFailed)
		}
	}

	updated := existing.ApplyFields(fields)
	changes := entities.Diff(*existing, updated)
	if changes.Empty() {
		observability.RecordInsuranceWrite(ctx, s.metrics, "edit", "unchanged")
		return succeeded(id)
	}

	if err := s.checkPeriod(ctx, updated, &id); err != nil {
		return s.fail(ctx, "edit", err, repositories.MsgUpdateFailed)
	}
	if err := s.insurances.Update(ctx, &updated); err != nil {
		observability.RecordError(span, err)
		return s.fail(ctx, "edit", err, repositories.MsgUpdateFailed)
	}

	stored := s.reload(ctx, updated)
	s.appendAudit(ctx, actor, ChangeEdit, id, Describe(ChangeEdit, stored, changes, ""))
	s.publish(ctx, entities.InsuranceEventUpdated, id, stored.VehicleID)
	if existing.VehicleID != stored.VehicleID {
		s.publishVehicle(ctx, entities.InsuranceEventUpdated, id, existing.VehicleID)
	}
	observability.RecordInsuranceWrite(ctx, s.metrics, "edit", "ok")
	return succeeded(id)
}

// DeleteInsurance removes a policy
func (s *InsuranceService) DeleteInsurance(ctx context.Context, actor string, id int64) MutationResult {
	ctx, span := observability.StartSpan(ctx, "InsuranceService.DeleteInsurance", attribute.Int64("insurance.id", id))
	defer span.End()

	existing, err := s.load(ctx, id)
	if err != nil {
		return s.fail(ctx, "delete", err, "failed to delete insurance, please retry later")
	}

	deleted, err := s.insurances.Delete(ctx, id)
	if err != nil {
		observability.RecordError(span, err)
		return s.fail(ctx, "delete", err, "failed to delete insurance, please retry later")
	}
	if !deleted {
		return s.fail(ctx, "delete", notFound(id), "")
	}

	s.appendAudit(ctx, actor, ChangeDelete, id, Describe(ChangeDelete, *existing, nil, ""))
	s.publish(ctx, entities.InsuranceEventDeleted, id, existing.VehicleID)
	observability.RecordInsuranceWrite(ctx, s.metrics, "delete", "ok")
	return succeeded(id)
}

// AddAttachment stores an uploaded document for a policy and returns the
// stored file name
func (s *InsuranceService) AddAttachment(ctx context.Context, actor string, id int64, filename string, r io.Reader) (string, error) {
	if s.attachments == nil {
		return "", apperrors.NewInternalError("attachments are not configured", nil)
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}

	name, err := s.attachments.Store(ctx, s.attachments.Folder(id), filename, r)
	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			return "", appErr
		}
		return "", apperrors.NewExternalError("failed to store attachment", err)
	}

	s.appendAudit(ctx, actor, ChangeAddAttachment, id, Describe(ChangeAddAttachment, *existing, nil, name))
	s.publish(ctx, entities.InsuranceEventAttachment, id, existing.VehicleID)
	observability.RecordInsuranceWrite(ctx, s.metrics, "add_attachment", "ok")
	return name, nil
}

// RemoveAttachment deletes one document of a policy
func (s *InsuranceService) RemoveAttachment(ctx context.Context, actor string, id int64, name string) error {
	if s.attachments == nil {
		return apperrors.NewInternalError("attachments are not configured", nil)
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if err := s.attachments.Remove(ctx, s.attachments.Folder(id), name); err != nil {
		if appErr, ok := apperrors.As(err); ok {
			return appErr
		}
		return apperrors.NewExternalError("failed to remove attachment", err)
	}

	s.appendAudit(ctx, actor, ChangeRemoveAttachment, id, Describe(ChangeRemoveAttachment, *existing, nil, name))
	s.publish(ctx, entities.InsuranceEventAttachment, id, existing.VehicleID)
	observability.RecordInsuranceWrite(ctx, s.metrics, "remove_attachment", "ok")
	return nil
}

func (s *InsuranceService) load(ctx context.Context, id int64) (*entities.Insurance, error) {
	ins, err := s.insurances.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get insurance", err)
	}
	if ins == nil {
		return nil, notFound(id)
	}
	return ins, nil
}

// checkPeriod rejects a taken period before any transaction is opened. The
// store repeats the check under the vehicle lock.
func (s *InsuranceService) checkPeriod(ctx context.Context, record entities.Insurance, excludeID *int64) error {
	free, err := s.insurances.IsPeriodAvailable(ctx, record.VehicleID, record.Period(), excludeID)
	if err != nil {
		return fmt.Errorf("overlap pre-check: %w", err)
	}
	if !free {
		return apperrors.NewConflictError(repositories.MsgPeriodTaken)
	}
	return nil
}

func (s *InsuranceService) requireVehicle(ctx context.Context, id int64) (*entities.Vehicle, error) {
	vehicle, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get vehicle", err)
	}
	if vehicle == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("vehicle %d not found", id))
	}
	return vehicle, nil
}

// reload fetches the joined version of a just-written record, falling back
// to what was written when the read fails.
func (s *InsuranceService) reload(ctx context.Context, written entities.Insurance) entities.Insurance {
	stored, err := s.insurances.GetByID(ctx, written.ID)
	if err != nil || stored == nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Int64("insurance_id", written.ID).
			Msg("could not reload insurance after write")
		return written
	}
	return *stored
}

func (s *InsuranceService) fillAttachments(ctx context.Context, ins *entities.Insurance) {
	if s.attachments == nil {
		return
	}
	folder := s.attachments.Folder(ins.ID)
	names, err := s.attachments.List(ctx, folder)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Int64("insurance_id", ins.ID).
			Msg("failed to list attachments")
		return
	}
	ins.AttachmentFolder = folder
	ins.AttachmentNames = names
}

// appendAudit records a committed change. Failures are logged only.
func (s *InsuranceService) appendAudit(ctx context.Context, actor string, action ChangeAction, recordID int64, description string) {
	entry := &entities.AuditEntry{
		Author:      actor,
		Action:      action.AuditAction(),
		RecordID:    recordID,
		Description: description,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).
			Str("action", string(entry.Action)).
			Int64("insurance_id", recordID).
			Msg("failed to append audit log entry")
	}
}

func (s *InsuranceService) publish(ctx context.Context, eventType entities.InsuranceEventType, insuranceID, vehicleID int64) {
	if s.events == nil {
		return
	}
	event := entities.NewInsuranceEvent(eventType, insuranceID, vehicleID)
	if err := s.events.Publish(ctx, providers.EventChannelInsuranceUpdates, event); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Str("event_type", string(eventType)).
			Int64("insurance_id", insuranceID).
			Msg("failed to publish insurance event")
	}
	s.publishVehicle(ctx, eventType, insuranceID, vehicleID)
}

func (s *InsuranceService) publishVehicle(ctx context.Context, eventType entities.InsuranceEventType, insuranceID, vehicleID int64) {
	if s.events == nil {
		return
	}
	event := entities.NewInsuranceEvent(eventType, insuranceID, vehicleID)
	if err := s.events.Publish(ctx, providers.GetVehicleChannel(vehicleID), event); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Int64("vehicle_id", vehicleID).
			Msg("failed to publish vehicle event")
	}
}

// fail converts err into a failed result. Errors that are not AppErrors are
// logged and reported with the generic fallback message.
func (s *InsuranceService) fail(ctx context.Context, operation string, err error, fallback string) MutationResult {
	appErr, ok := apperrors.As(err)
	if !ok {
		observability.LoggerFromContext(ctx).Error().Err(err).
			Str("operation", operation).
			Msg("insurance write failed")
		appErr = apperrors.NewInternalError(fallback, err)
	}
	observability.RecordInsuranceWrite(ctx, s.metrics, operation, strings.ToLower(string(appErr.Type)))
	return failed(appErr)
}

func notFound(id int64) *apperrors.AppError {
	return apperrors.NewNotFoundError(fmt.Sprintf("insurance %d not found", id))
}

// asValidation reports an unknown vehicle in a form as a field error.
func asValidation(err error) error {
	if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		appErr, _ := apperrors.As(err)
		return apperrors.NewValidationError("vehicle_id", appErr.Message)
	}
	return err
}
