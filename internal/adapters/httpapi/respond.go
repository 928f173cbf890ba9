package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mikey/sift-mail/internal/core"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names in validation details
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to encode JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, kind, message string, details map[string]interface{}) {
	writeJSON(w, logger, status, ErrorResponse{Error: kind, Message: message, Details: details})
}

// statusFor maps a domain error type to its HTTP status
func statusFor(t core.ErrorType) int {
	switch t {
	case core.ErrorTypeValidation, core.ErrorTypeStateMismatch:
		return http.StatusBadRequest
	case core.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case core.ErrorTypeNotFound:
		return http.StatusNotFound
	case core.ErrorTypeNotConnected:
		return http.StatusConflict
	case core.ErrorTypeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError maps domain errors to HTTP responses
func (s *Server) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *core.DomainError
	if !errors.As(err, &domainErr) {
		s.logger.Error("Unhandled error", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "internal", "an unexpected error occurred", nil)
		return
	}

	status := statusFor(domainErr.Type)
	message := domainErr.Message
	switch {
	case status >= http.StatusInternalServerError && domainErr.Type == core.ErrorTypeStorage:
		// Storage internals stay in the log.
		s.logger.Error("Storage error", zap.String("path", r.URL.Path), zap.Error(err))
	case domainErr.Err != nil:
		message = fmt.Sprintf("%s: %v", domainErr.Message, domainErr.Err)
	}
	writeError(w, s.logger, status, string(domainErr.Type), message, domainErr.Details)
}

// decodeJSON reads and validates a request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return core.ValidationError("request body is required")
		}
		return core.ValidationError("malformed JSON body").WithDetail("reason", err.Error())
	}
	return validateRequest(v)
}

func validateRequest(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return core.ValidationError(err.Error())
	}
	verr := core.ValidationError("validation failed")
	for _, fe := range fieldErrs {
		verr.WithDetail(fe.Field(), describeField(fe))
	}
	return verr
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	default:
		return fmt.Sprintf("failed on '%s'", fe.Tag())
	}
}

// accountQuery returns the required email query parameter
func accountQuery(r *http.Request) (string, error) {
	account := strings.TrimSpace(r.URL.Query().Get("email"))
	if account == "" {
		return "", core.ValidationError("validation failed").WithDetail("email", "is required")
	}
	return account, nil
}

// intQuery parses an optional non-negative integer query parameter
func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, core.ValidationError("validation failed").WithDetail(name, "must be a non-negative integer")
	}
	return n, nil
}

// boolQuery parses an optional boolean query parameter
func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, core.ValidationError("validation failed").WithDetail(name, "must be a boolean")
	}
	return b, nil
}
