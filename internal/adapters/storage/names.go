package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/Yulya9904/cars-insurance/pkg/errors"
)

const maxExtensionLength = 10

// recordFolder is the folder of one record relative to the storage root.
func recordFolder(recordID int64) string {
	return path.Join("insurance", fmt.Sprintf("%d", recordID))
}

// randomName returns a uuid name carrying the extension of filename.
func randomName(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > maxExtensionLength || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return uuid.NewString() + ext
}

// checkName rejects names that could escape the record folder.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return apperrors.NewValidationError("name", "invalid attachment name")
	}
	return nil
}
