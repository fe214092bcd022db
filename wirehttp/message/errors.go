package message

import "errors"

// Decode errors. ErrMalformedHeader is recoverable: the decoder skips the line.
var (
	ErrMissingStatusLine    = errors.New("missing status line")
	ErrInvalidStatusCode    = errors.New("invalid status code")
	ErrMalformedHeader      = errors.New("malformed header line")
	ErrInvalidChunkSize     = errors.New("invalid chunk size")
	ErrMalformedChunk       = errors.New("chunk data not followed by CRLF")
	ErrInvalidContentLength = errors.New("invalid content-length")
	ErrIncompleteMessage    = errors.New("incomplete http message")
	ErrLineTooLong          = errors.New("line too long")
	ErrInvalidBodyEncoding  = errors.New("body is not valid utf-8")
	ErrUnsupportedEncoding  = errors.New("unsupported content-encoding")
)

// ErrInvalidRequest is returned by RequestBuilder.Build.
var ErrInvalidRequest = errors.New("invalid request")
