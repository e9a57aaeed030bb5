package camera

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/teascan/teascan-go/internal/errors"
)

// AcquisitionKind classifies why a camera stream could not be acquired.
type AcquisitionKind string

const (
	PermissionDenied AcquisitionKind = "permission_denied"
	DeviceNotFound   AcquisitionKind = "device_not_found"
	DeviceBusy       AcquisitionKind = "device_busy"
	Unknown          AcquisitionKind = "unknown"
)

// AcquisitionError reports a failure to open a camera stream. The kind
// tells the caller whether the failure is actionable (fix permissions,
// check the URL, wait for the device) or opaque.
type AcquisitionError struct {
	Kind AcquisitionKind
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("camera acquisition failed (%s): %v", e.Kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// newAcquisitionError wraps err with a kind and categorized metadata.
func newAcquisitionError(kind AcquisitionKind, err error) error {
	acq := &AcquisitionError{Kind: kind, Err: err}
	return errors.New(acq).
		Component("camera").
		Category(errors.CategoryCamera).
		Context("kind", string(kind)).
		Build()
}

// classifyHTTPStatus maps an HTTP status from the stream endpoint onto an
// acquisition kind.
func classifyHTTPStatus(status int) AcquisitionKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return PermissionDenied
	case http.StatusNotFound:
		return DeviceNotFound
	case http.StatusConflict, http.StatusLocked:
		return DeviceBusy
	default:
		return Unknown
	}
}

// classifyConnError maps a transport error onto an acquisition kind.
func classifyConnError(err error) AcquisitionKind {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var sysErr syscall.Errno
		if errors.As(opErr.Err, &sysErr) {
			switch sysErr {
			case syscall.ECONNREFUSED, syscall.EHOSTUNREACH, syscall.ENETUNREACH:
				return DeviceNotFound
			case syscall.EACCES, syscall.EPERM:
				return PermissionDenied
			}
		}
	}
	if strings.Contains(err.Error(), "in use") {
		return DeviceBusy
	}
	return Unknown
}
