// Package api implements the HTTP status API for the MQTT connector.
//
// This package provides:
//   - A health endpoint covering the MQTT session, the attempt journal and InfluxDB
//   - Read access to the current connection and the connection-attempt journal
//   - An operator endpoint that runs a fresh connection attempt
//   - JWT bearer authentication with role-based permissions
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Security
//
// Every route except /api/v1/health requires an HS256 bearer token signed
// with api.jwt_secret. Tokens carry a role; viewers may read, operators may
// also trigger a connection attempt.
//
// # Graceful Degradation
//
// The journal and InfluxDB are optional. Without a journal the attempts
// endpoint answers 503; health reports only the checks that are wired.
package api
