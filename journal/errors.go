package journal

import (
	"errors"
	"fmt"

	"github.com/tidestore/tidestore/utils/io"
	"github.com/tidestore/tidestore/utils/log"
)

var (
	// ErrIO means the device, segment provider or scanner reported a
	// failure. The journal is unsafe for further writes until reopened.
	ErrIO = errors.New("journal: io error")

	// ErrRange means a single record, even submitted alone, exceeds the
	// maximum write length of a segment. The journal remains usable.
	ErrRange = errors.New("journal: record exceeds max write length")
)

type NotOpenError string

func (msg NotOpenError) Error() string {
	return errReport("%s: journal is not open for write", string(msg))
}

type ReplayOrderError string

func (msg ReplayOrderError) Error() string {
	return errReport("%s: replay segments out of order", string(msg))
}

func errReport(base, msg string) string {
	base = io.GetCallerFileContext(2) + ":" + base
	log.Error(base, msg)
	return fmt.Sprintf(base, msg)
}
