// Package audit journals connection attempts to SQLite so operators can see
// which transport, endpoint and TLS mode each attempt used and where it
// stopped.
package audit
