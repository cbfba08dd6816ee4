package services

import (
	"fmt"
	"strings"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
)

// ChangeAction is the kind of mutation a change log entry describes
type ChangeAction string

const (
	ChangeAdd              ChangeAction = "add"
	ChangeEdit             ChangeAction = "edit"
	ChangeDelete           ChangeAction = "delete"
	ChangeAddAttachment    ChangeAction = "add_attachment"
	ChangeRemoveAttachment ChangeAction = "remove_attachment"
)

// AuditAction maps a change to its audit log action
func (a ChangeAction) AuditAction() entities.AuditAction {
	return entities.AuditAction("insurance-" + string(a))
}

// Describe builds the human-readable audit text for a change to record.
// changes is only read for edits, attachment only for attachment actions.
func Describe(action ChangeAction, record entities.Insurance, changes entities.Changes, attachment string) string {
	switch action {
	case ChangeAdd:
		return "added " + subject(record) + fieldList(record) + "."
	case ChangeDelete:
		return "deleted " + subject(record) + fieldList(record) + "."
	case ChangeEdit:
		return "changed " + subject(record) + changeList(changes)
	case ChangeAddAttachment:
		return fmt.Sprintf("added attachment %s for %s", attachment, subject(record))
	case ChangeRemoveAttachment:
		return fmt.Sprintf("removed attachment %s from insurance #%d", attachment, record.ID)
	}
	return ""
}

func subject(record entities.Insurance) string {
	return fmt.Sprintf("insurance #%d for vehicle %s %q", record.ID, record.VehicleModel, record.StateNumber)
}

// fieldList renders " ( label - value, ...)" over the labelled, non-empty fields.
func fieldList(record entities.Insurance) string {
	var parts []string
	for _, f := range entities.DescribedFields() {
		label, ok := entities.LabelFor(f)
		if !ok || record.IsEmpty(f) {
			continue
		}
		parts = append(parts, fmt.Sprintf(" %s - %s", label.Add, record.Value(f)))
	}
	return " (" + strings.Join(parts, ",") + ")"
}

func changeList(changes entities.Changes) string {
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		change := fmt.Sprintf("from '%s' to '%s'", c.Old, c.New)
		if label, ok := entities.LabelFor(c.Field); ok {
			change = label.Edit + " " + change
		}
		parts = append(parts, change)
	}
	return " " + strings.Join(parts, ", ")
}
