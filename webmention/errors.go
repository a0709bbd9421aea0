package webmention

import (
	"errors"
	"net/http"

	"github.com/MarkWieczorek/bridgy-fed/activitypub"
)

// ErrorKind classifies ingestion failures so callers can react without
// string matching.
type ErrorKind int

const (
	// KindBadRequest: missing or unusable source parameter.
	KindBadRequest ErrorKind = iota + 1
	// KindFetch: the source page could not be fetched (network/DNS).
	KindFetch
	// KindParse: no parsable entry, or the URL fragment was not found.
	KindParse
	// KindMissingBacklink: the source page doesn't link back to the bridge.
	KindMissingBacklink
	// KindUnsupportedTarget: no valid delivery target after blocklisting.
	KindUnsupportedTarget
	// KindGateway: a remote delivery path is unreachable; fatal to the batch.
	KindGateway
	// KindInternal: storage or other local failure.
	KindInternal
)

// IngestError is a terminal ingestion failure with a user-facing message and
// the HTTP status it should surface as.
type IngestError struct {
	Kind    ErrorKind
	Message string
	Status  int
}

func (e *IngestError) Error() string {
	return e.Message
}

// HTTPStatus returns the status the error should be served with.
func (e *IngestError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return http.StatusBadRequest
}

func badRequest(msg string) *IngestError {
	return &IngestError{Kind: KindBadRequest, Message: msg}
}

func parseError(msg string) *IngestError {
	return &IngestError{Kind: KindParse, Message: msg}
}

// Outcome is what a completed ingestion reports back: either the remote
// server's own response passed through, or a local status message.
type Outcome struct {
	Status int
	Body   string
}

// asIngestError normalizes transport-level errors bubbling out of resolution
// or delivery into the ingestion taxonomy.
func asIngestError(err error) *IngestError {
	var ingestErr *IngestError
	if errors.As(err, &ingestErr) {
		return ingestErr
	}

	var gatewayErr *activitypub.GatewayError
	if errors.As(err, &gatewayErr) {
		return &IngestError{Kind: KindGateway, Message: gatewayErr.Error(), Status: http.StatusBadGateway}
	}

	return &IngestError{Kind: KindInternal, Message: err.Error(), Status: http.StatusInternalServerError}
}
