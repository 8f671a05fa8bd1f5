package handlers

import (
	"net/http"

	"github.com/digitechhorizons/portal/services"
	"github.com/digitechhorizons/portal/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses. The response
// message is the user-facing message of the error, never its cause.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := services.GetErrorMessage(err)
	details := services.GetErrorDetails(err)
	if len(details) == 0 {
		details = nil
	}

	var writeErr error
	switch services.GetErrorType(err) {
	case services.ErrorTypeValidation:
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.ErrorTypeEmailNotConfirmed:
		writeErr = utils.WriteErrorCode(w, http.StatusForbidden, "email_not_confirmed", message, details)

	case services.ErrorTypeInvalidCredentials:
		writeErr = utils.WriteErrorCode(w, http.StatusUnauthorized, "invalid_credentials", message, details)

	case services.ErrorTypeDuplicateRegistration:
		writeErr = utils.WriteErrorCode(w, http.StatusConflict, "duplicate_registration", message, details)

	case services.ErrorTypeBusy:
		writeErr = utils.WriteErrorCode(w, http.StatusConflict, "busy", message, details)

	case services.ErrorTypeRateLimit:
		writeErr = utils.WriteTooManyRequests(w, message, details)

	case services.ErrorTypeUnauthorized:
		writeErr = utils.WriteUnauthorized(w, message)

	case services.ErrorTypeNotFound:
		writeErr = utils.WriteNotFound(w, message)

	case services.ErrorTypeExternal:
		// retryable reads are a temporary outage, everything else a bad upstream
		status := http.StatusBadGateway
		if retryable, _ := details["retryable"].(bool); retryable {
			status = http.StatusServiceUnavailable
		}
		logger.Warn("external service error", zap.Error(err))
		writeErr = utils.WriteError(w, status, message, details)

	case services.ErrorTypeInternal:
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		if err := utils.WriteBadRequest(w, "Validation failed", utils.ValidationDetails(err)); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
