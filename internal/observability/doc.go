// Package observability provides structured logging and Prometheus metrics
// for the portal.
//
// This package implements:
//   - zap logger construction from LOG_LEVEL / LOG_FORMAT
//   - request-scoped loggers carrying the chi request id
//   - counters for credential forms, role resolution, route guarding,
//     the ad pixel and the contact relay
package observability
