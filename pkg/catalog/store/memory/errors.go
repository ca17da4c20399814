package memory

import "errors"

var errClosed = errors.New("catalog is closed")
