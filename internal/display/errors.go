package display

import "errors"

var (
	// ErrUnavailable is returned when the backlight device cannot be used.
	ErrUnavailable = errors.New("display: backlight unavailable")

	// ErrPermissionDenied is returned when the process may not write brightness or mode.
	ErrPermissionDenied = errors.New("display: permission denied")

	// ErrInvalidValue is returned when a sysfs attribute holds something unparseable.
	ErrInvalidValue = errors.New("display: invalid attribute value")
)
