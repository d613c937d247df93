// Package session implements the per-connection protocol state machine.
//
// Each accepted connection gets exactly one Session driven by one goroutine.
// The session decodes events, enforces sequencing (audio-start before chunks,
// audio-stop to finalize), accumulates utterance audio, and emits exactly one
// transcript per completed utterance. Sequencing violations are fatal to the
// session; engine failures are reported and the session returns to idle.
package session
