// Package asr defines the boundary to the speech recognition engine: the
// Transcriber contract, the result and error taxonomy, and two
// implementations, an in-process serialized model wrapper and a client for a
// remote HTTP transcription endpoint.
package asr
