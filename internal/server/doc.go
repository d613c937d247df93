// Package server implements the TCP/unix listener that dispatches client
// connections to sessions and the HTTP API endpoints. It enforces the
// concurrent session bound at accept time and provides monitoring/management
// endpoints.
package server
