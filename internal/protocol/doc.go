// Package protocol implements the event wire format used between clients and
// the transcription server. Each event is one newline-terminated JSON header
// carrying the event type, kind-specific data and an explicit payload length,
// optionally followed by that many raw payload bytes. Decoding is resumable
// across arbitrary input segmentation.
package protocol
