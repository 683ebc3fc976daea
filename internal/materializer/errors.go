package materializer

import "errors"

// ErrPageOverflow is returned when a redo record's offset+payload would write
// past the end of a page during replay.
var ErrPageOverflow = errors.New("logstore: page overflow")
