// api/middleware/error_handler.go
package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10" // Import validator for binding errors

	"github.com/Ian-Chin/iunami-ai-extension/api/handlers"
	"github.com/Ian-Chin/iunami-ai-extension/internal/auth"    // Import internal auth errors
	"github.com/Ian-Chin/iunami-ai-extension/internal/core"    // Import validation errors
	"github.com/Ian-Chin/iunami-ai-extension/internal/entry"   // Import entry flow errors
	"github.com/Ian-Chin/iunami-ai-extension/internal/notion"  // Import Notion API errors
	"github.com/Ian-Chin/iunami-ai-extension/internal/storage" // Import internal storage errors
)

var flowStatus = map[error]int{
	entry.ErrSchemaUnavailable: http.StatusBadGateway,
	entry.ErrParseFailed:       http.StatusBadGateway,
	entry.ErrWriteFailed:       http.StatusBadGateway,
	entry.ErrTimedOut:          http.StatusGatewayTimeout,
	entry.ErrCanceled:          http.StatusConflict,
}

// ErrorHandler creates a Gin middleware for centralized error handling.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		// We only handle the last error for the response.
		err := c.Errors.Last().Err
		customLog.Printf("[ErrorHandler] Detected error: %v | Type: %T", err, err)

		if c.Writer.Written() {
			customLog.Warnln("[ErrorHandler] Warning: Response already written before handling error.")
			return
		}

		// Entry flow failures carry their own recovery payload
		var flowErr *entry.FlowError
		if errors.As(err, &flowErr) {
			statusCode, ok := flowStatus[flowErr.Kind]
			if !ok {
				statusCode = http.StatusBadGateway
			}
			body := gin.H{"error": flowErr.Message, "state": flowErr.State}
			if flowErr.Text != "" {
				body["text"] = flowErr.Text
			}
			if flowErr.Values != nil {
				body["values"] = flowErr.Values
			}
			c.AbortWithStatusJSON(statusCode, body)
			return
		}

		statusCode, userMessage := mapError(err)
		c.AbortWithStatusJSON(statusCode, gin.H{"error": userMessage})
	}
}

// mapError maps an error to an HTTP status code and user message.
func mapError(err error) (int, string) {
	var (
		validationErrs validator.ValidationErrors
		syntaxErr      *json.SyntaxError
		typeErr        *json.UnmarshalTypeError
		apiErr         *notion.APIError
	)

	switch {
	// --- Not found ---
	case errors.Is(err, storage.ErrSessionNotFound),
		errors.Is(err, storage.ErrDashboardNotFound),
		errors.Is(err, entry.ErrInteractionNotFound),
		errors.Is(err, entry.ErrDatabaseNotListed):
		return http.StatusNotFound, rootMessage(err)

	// --- Conflicts ---
	case errors.Is(err, storage.ErrDashboardExists),
		errors.Is(err, storage.ErrSessionExists),
		errors.Is(err, storage.ErrConstraintViolation),
		errors.Is(err, entry.ErrSubmissionInProgress),
		errors.Is(err, entry.ErrInvalidTransition):
		return http.StatusConflict, err.Error()

	// --- Auth ---
	case errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenClaimsInvalid),
		errors.Is(err, auth.ErrUnexpectedSigningMethod):
		return http.StatusUnauthorized, "Invalid or malformed authentication token."
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "Authentication token has expired."

	// --- Bad input ---
	case errors.Is(err, core.ErrRequiredField):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &validationErrs):
		for _, fe := range validationErrs {
			customLog.Printf("Validation Error: Field %s failed on %s", fe.Field(), fe.Tag())
		}
		return http.StatusBadRequest, validationMessage(validationErrs[0])
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return http.StatusBadRequest, "Invalid request body."
	case errors.Is(err, core.ErrInvalidNotionID),
		errors.Is(err, core.ErrInvalidQuery),
		errors.Is(err, entry.ErrUnknownMode),
		errors.Is(err, entry.ErrUnknownTimezone),
		errors.Is(err, notion.ErrBadEndpoint),
		errors.Is(err, handlers.ErrInvalidTheme):
		return http.StatusBadRequest, err.Error()

	// --- Notion ---
	case errors.Is(err, notion.ErrUnauthorized):
		return http.StatusUnauthorized, "Notion rejected the integration token."
	case errors.Is(err, notion.ErrNotFound):
		return http.StatusNotFound, "Page not found, or not shared with the integration."
	case errors.Is(err, notion.ErrRateLimited):
		return http.StatusTooManyRequests, "Notion is rate limiting requests. Please wait."
	case errors.Is(err, notion.ErrUnreachable):
		return http.StatusBadGateway, "Connection lost."
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, apiErr.UserMessage()
	}

	// --- Default/Fallback for unhandled errors ---
	customLog.Warnf("Unhandled error type: %T, Error: %v", err, err)
	return http.StatusInternalServerError, "An unexpected internal server error occurred."
}

// validationMessage renders the first failed binding rule.
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required.", fe.Field())
	case "oneof":
		return fmt.Sprintf("%q must be one of: %s.", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%q is too long.", fe.Field())
	}
	return "Validation failed. Please check your input."
}

// rootMessage returns the innermost error text, without wrapping context.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
