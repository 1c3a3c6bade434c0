package docsign

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by ports and the service.
var (
	ErrAlreadySigned    = errors.New("document is already signed")
	ErrUnsupportedImage = errors.New("unsupported signature image format")
	ErrObjectTooLarge   = errors.New("object exceeds storage size limit")
	ErrPermissionDenied = errors.New("storage permission denied")
	ErrObjectNotFound   = errors.New("object not found")
)

// ValidationError reports bad user input. No state is changed when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// UploadReason classifies a rejected storage write.
type UploadReason string

const (
	UploadSizeLimit  UploadReason = "size_limit"
	UploadPermission UploadReason = "permission"
	UploadOther      UploadReason = "other"
)

// UploadError reports that object storage rejected a write.
type UploadError struct {
	Reason UploadReason
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed (%s): %v", e.Reason, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// newUploadError classifies a storage error by its sentinel.
func newUploadError(err error) *UploadError {
	reason := UploadOther
	switch {
	case errors.Is(err, ErrObjectTooLarge):
		reason = UploadSizeLimit
	case errors.Is(err, ErrPermissionDenied):
		reason = UploadPermission
	}
	return &UploadError{Reason: reason, Err: err}
}

// VerificationError reports that a stored object is not fetchable through
// the reference storage handed back.
type VerificationError struct {
	URL string
	Err error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("stored document not retrievable at %s: %v", e.URL, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// NotFoundError reports a missing document or notification.
type NotFoundError struct {
	Kind string // "document" or "notification"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// CompositingError reports that the signature could not be embedded. It is
// distinct from other signing failures so the signer knows the signature
// itself was the problem.
type CompositingError struct {
	Err error
}

func (e *CompositingError) Error() string {
	return fmt.Sprintf("embedding signature: %v", e.Err)
}

func (e *CompositingError) Unwrap() error { return e.Err }

// DocumentError reports that the document itself cannot be read or
// rewritten, such as a damaged or encrypted PDF.
type DocumentError struct {
	Err error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("unreadable document: %v", e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
