// Package koierr defines the error taxonomy shared across the secure
// envelope protocol, the outbound RPC client, and the pipeline, grounded
// on the sentinel-error style of crypto.Err* / did.DIDError.
package koierr

import "errors"

// Protocol-level errors: these surface to a peer as an HTTP 400 with
// body {"error": "<kind>"}.
var (
	ErrUnknownSourceNode = errors.New("unknown_source_node")
	ErrInvalidPublicKey  = errors.New("invalid_public_key")
	ErrInvalidSignature  = errors.New("invalid_signature")
	ErrInvalidTarget     = errors.New("invalid_target")
)

// Local-raise errors: these never cross the wire; they abort a local
// call.
var (
	ErrPartialNodeQuery     = errors.New("partial_node_query")
	ErrNodeNotFound         = errors.New("node_not_found")
	ErrSelfRequest          = errors.New("self_request")
	ErrTransport            = errors.New("transport_error")
	ErrHandlerPipelineAbort = errors.New("handler_pipeline_abort")
)

// Kind maps a taxonomy error to the short string used in the wire
// {"error": kind} body and in log fields. Unrecognized errors map to
// "internal_error".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnknownSourceNode):
		return "unknown_source_node"
	case errors.Is(err, ErrInvalidPublicKey):
		return "invalid_public_key"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, ErrPartialNodeQuery):
		return "partial_node_query"
	case errors.Is(err, ErrNodeNotFound):
		return "node_not_found"
	case errors.Is(err, ErrSelfRequest):
		return "self_request"
	case errors.Is(err, ErrTransport):
		return "transport_error"
	case errors.Is(err, ErrHandlerPipelineAbort):
		return "handler_pipeline_abort"
	default:
		return "internal_error"
	}
}

// IsProtocolError reports whether err should be surfaced to a remote
// peer as an HTTP 400, vs. kept local.
func IsProtocolError(err error) bool {
	switch {
	case errors.Is(err, ErrUnknownSourceNode),
		errors.Is(err, ErrInvalidPublicKey),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrInvalidTarget):
		return true
	default:
		return false
	}
}
