package operations

import (
	stderrors "errors"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeMalformedTopic     = "OPERATION_MALFORMED_TOPIC"
	ErrCodeInvalidPayload     = "OPERATION_INVALID_PAYLOAD"
	ErrCodeMissingStatus      = "OPERATION_MISSING_STATUS"
	ErrCodeInvalidFilter      = "OPERATION_INVALID_FILTER"
	ErrCodeInvalidWorkflow    = "WORKFLOW_INVALID"
	ErrCodeRegistryFrozen     = "REGISTRY_ALREADY_INITIALIZED"
	ErrCodePublishFailed      = "PUBLISH_FAILED"
	ErrCodeDownloadFailed     = "DOWNLOAD_FAILED"
	ErrCodeChecksumMismatch   = "CHECKSUM_MISMATCH"
	ErrCodeInstallFailed      = "INSTALL_FAILED"
	ErrCodeTransportClosed    = "TRANSPORT_CLOSED"
	ErrCodeOperationNotFound  = "OPERATION_NOT_FOUND"
	ErrCodeUnsupportedFormat  = "WORKFLOW_UNSUPPORTED_FORMAT"
	ErrCodeIllegalTransition  = "OPERATION_ILLEGAL_TRANSITION"
	ErrCodeScriptInvalidSetup = "SCRIPT_INVALID"
)

var (
	ErrMalformedTopic = apperrors.New("malformed operation topic", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeMalformedTopic)
	ErrInvalidPayload = apperrors.New("invalid operation payload", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidPayload)
	ErrMissingStatus = apperrors.New("Missing status", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeMissingStatus)
	ErrInvalidFilter = apperrors.New("invalid operation filter", apperrors.CategoryValidation).
				WithTextCode(ErrCodeInvalidFilter)
	ErrInvalidWorkflow = apperrors.New("invalid workflow", apperrors.CategoryValidation).
				WithTextCode(ErrCodeInvalidWorkflow)
	ErrRegistryFrozen = apperrors.New("registry already initialized", apperrors.CategoryConflict).
				WithTextCode(ErrCodeRegistryFrozen)
	ErrPublishFailed = apperrors.New("publish failed", apperrors.CategoryExternal).
				WithTextCode(ErrCodePublishFailed)
	ErrDownloadFailed = apperrors.New("download failed", apperrors.CategoryExternal).
				WithTextCode(ErrCodeDownloadFailed)
	ErrChecksumMismatch = apperrors.New("checksum mismatch", apperrors.CategoryValidation).
				WithTextCode(ErrCodeChecksumMismatch)
	ErrInstallFailed = apperrors.New("install failed", apperrors.CategoryHandler).
				WithTextCode(ErrCodeInstallFailed)
	ErrTransportClosed = apperrors.New("transport closed", apperrors.CategoryExternal).
				WithTextCode(ErrCodeTransportClosed)
	ErrOperationNotFound = apperrors.New("operation not found", apperrors.CategoryNotFound).
				WithTextCode(ErrCodeOperationNotFound)
	ErrUnsupportedFormat = apperrors.New("unsupported workflow format", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeUnsupportedFormat)
	ErrIllegalTransition = apperrors.New("illegal operation transition", apperrors.CategoryConflict).
				WithTextCode(ErrCodeIllegalTransition)
	ErrScriptInvalid = apperrors.New("invalid script", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeScriptInvalidSetup)
)

// NewError clones base, overriding its message and attaching source and metadata.
func NewError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrInvalidPayload
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the text code carried by err, or an empty string.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	return code != "" && ErrorCode(err) == code
}

// ErrorMessage returns the human readable message of err without its
// category or source chain.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var ge *apperrors.Error
	if stderrors.As(err, &ge) && ge.Message != "" {
		return ge.Message
	}
	return err.Error()
}
