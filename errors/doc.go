// Package errors provides standardized error handling for the blissdata bridge.
//
// # Overview
//
// The package implements a three-class error classification: Transient
// (temporary, e.g. store connectivity), Invalid (malformed documents or
// configuration, do not retry), and Fatal (unrecoverable, stop the bridge).
// It also defines the bridge's error taxonomy as standard error variables so
// callers can branch with errors.Is:
//
//   - ErrValidation / ErrMissingField / ErrUnknownKind — document errors
//   - ErrNoActiveScan / ErrScanFailed — lifecycle protocol violations
//   - ErrStreamNotFound / ErrTypeMismatch / ErrStreamSealed — event push errors
//   - ErrStoreCall / ErrNotConnected / ErrSessionClosed — remote store errors
//   - ErrInvalidConfig / ErrMissingConfig — configuration errors
//
// # Usage
//
// Wrap errors with component context:
//
//	if err := session.Prepare(ctx); err != nil {
//	    return errors.WrapTransient(err, "Dispatcher", "configDatastream", "prepare scan")
//	}
//
// Check classification at the supervision boundary:
//
//	if errors.IsInvalid(err) {
//	    // malformed document, log and drop
//	}
//
// The bridge performs no automatic retries; classification exists so the
// process supervisor and the logs can distinguish protocol violations from
// store outages.
package errors
