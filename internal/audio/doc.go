// Package audio handles PCM format description, per-utterance byte
// accumulation with a bounded duration cap, and WAV container encoding for
// handing audio to a recognition engine.
package audio
