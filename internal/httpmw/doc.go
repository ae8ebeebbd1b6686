// Package httpmw provides HTTP middleware for the public faucet API.
//
// httpserver.NewHandler composes them with Chain, outermost first: security
// headers, recover, CORS headers, request ID, client IP, per-IP guard, OTEL,
// trace headers, metrics, request logger, and finally the chi router with
// access logging and body limits.
//
// Request bodies, addresses and admin keys are never added to log fields.
package httpmw
