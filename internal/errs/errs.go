package errs

import (
	"errors"
	"fmt"
)

type Code string

const (
	EndpointUnavailable Code = "ENDPOINT_UNAVAILABLE"
	MalformedMarker     Code = "MALFORMED_MARKER"
	NoDataCollected     Code = "NO_DATA_COLLECTED"
	VersionConflict     Code = "VERSION_CONFLICT"
	StoreUnavailable    Code = "STORE_UNAVAILABLE"
	MalformedRecord     Code = "MALFORMED_RECORD"
	NotFound            Code = "NOT_FOUND"
	InvalidConfig       Code = "INVALID_CONFIG"
	FlagConflict        Code = "FLAG_CONFLICT"
	UnknownRepository   Code = "UNKNOWN_REPOSITORY"
)

var messages = map[Code]string{
	EndpointUnavailable: "mirror endpoint unavailable",
	MalformedMarker:     "publish marker has no T<timestamp> line",
	NoDataCollected: `No data collected: every tracked repository failed on every mirror

Nothing was written to the record store.
Check the mirror list in your config and the network reachability of the Stratum-1 hosts.`,
	VersionConflict: `Version conflict: the record was updated by another writer since it was read

Nothing was written. Re-run the pass, or set store.rebase_retries to re-apply
the sample on top of the newer record automatically.`,
	StoreUnavailable: "record store unavailable",
	MalformedRecord: `Malformed record: the stored history does not match any known schema

The pass was aborted so that no history is lost. Inspect the stored file manually.`,
	NotFound:      "record not found",
	InvalidConfig: "invalid configuration",
	FlagConflict:  "Invalid flag combination: cannot use %s with %s",
	UnknownRepository: `Unknown repository: %s is not listed under fqrns in %s

Add it to the config and run a sample pass first.`,
}

// Sentinels for errors.Is checks. An *Error matches the sentinel of its Code.
var (
	ErrEndpointUnavailable = &Error{Code: EndpointUnavailable}
	ErrMalformedMarker     = &Error{Code: MalformedMarker}
	ErrNoDataCollected     = &Error{Code: NoDataCollected}
	ErrVersionConflict     = &Error{Code: VersionConflict}
	ErrStoreUnavailable    = &Error{Code: StoreUnavailable}
	ErrMalformedRecord     = &Error{Code: MalformedRecord}
	ErrNotFound            = &Error{Code: NotFound}
	ErrInvalidConfig       = &Error{Code: InvalidConfig}
)

type Error struct {
	Code Code
	Op   string
	Err  error
}

func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func Newf(code Code, op string, format string, a ...any) *Error {
	return &Error{Code: code, Op: op, Err: fmt.Errorf(format, a...)}
}

func (e *Error) Error() string {
	short := string(e.Code)
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", short, e.Op, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", short, e.Op)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", short, e.Err)
	}
	return short
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func Msg(code Code, a ...any) string {
	msg := messages[code]
	if msg == "" {
		msg = string(code)
	}
	if len(a) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, a...)
}
