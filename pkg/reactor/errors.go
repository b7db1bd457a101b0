package reactor

import "errors"

// ErrResponseTooLarge is recorded as a request's transport status when its
// response body exceeds the engine's configured accumulation cap.
var ErrResponseTooLarge = errors.New("reactor: response body exceeds maximum accumulated size")
