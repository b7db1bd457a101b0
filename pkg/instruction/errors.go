package instruction

import "errors"

// ErrEmptyHost indicates that a descriptor was constructed with an empty
// host.
var ErrEmptyHost = errors.New("instruction: host must not be empty")

// ErrInvalidPort indicates a port outside the valid 1..65535 range.
var ErrInvalidPort = errors.New("instruction: port must be between 1 and 65535")
