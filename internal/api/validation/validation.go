// Package validation provides request decoding and validation helpers.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"

	"github.com/strainlens/hub/internal/models"
)

var (
	// validate and decoder are package-level singletons that are safe for
	// concurrent read-only access. All registrations MUST happen in init()
	// only; those methods are not thread-safe.
	validate *validator.Validate
	decoder  *form.Decoder
)

func init() {
	validate = validator.New()
	decoder = form.NewDecoder()

	if err := validate.RegisterValidation("scan_stage", validateScanStage); err != nil {
		slog.Error("failed to register scan_stage validator", "error", err)
	}

	// *models.ScanStage in query filters.
	decoder.RegisterCustomTypeFunc(func(vals []string) (any, error) {
		if len(vals) == 0 || vals[0] == "" {
			return (*models.ScanStage)(nil), nil
		}

		stage := models.ScanStage(strings.ToLower(vals[0]))

		return &stage, nil
	}, (*models.ScanStage)(nil))
}

// validateScanStage accepts only the known scan lifecycle stages.
func validateScanStage(fl validator.FieldLevel) bool {
	stage, ok := fl.Field().Interface().(models.ScanStage)
	if !ok {
		return false
	}

	switch stage {
	case models.ScanStagePending, models.ScanStageProcessing, models.ScanStageMatching,
		models.ScanStageDone, models.ScanStageError:
		return true
	default:
		return false
	}
}

// DecodeAndValidateJSON decodes the request body into dst and validates it.
// The returned error message is safe to show to clients.
func DecodeAndValidateJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request body")
	}

	return validateStruct(dst)
}

// DecodeAndValidateQuery decodes URL query values into dst and validates it.
func DecodeAndValidateQuery(values url.Values, dst any) error {
	if err := decoder.Decode(dst, values); err != nil {
		return errors.New("invalid query parameters")
	}

	return validateStruct(dst)
}

func validateStruct(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return errors.New("invalid request")
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("invalid value for field %s", strings.ToLower(verrs[0].Field()))
	}

	return errors.New("invalid request")
}
