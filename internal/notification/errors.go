package notification

import "errors"

// ErrSendFailed is returned by a sender when delivery through its channel
// failed. Notify logs it rather than propagating it — a failed send never
// escalates or rewrites the Run it was sent about.
var ErrSendFailed = errors.New("notification: send failed")
