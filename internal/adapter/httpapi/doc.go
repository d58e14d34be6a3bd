// Package httpapi exposes the HTTP surface of the server: plain routes,
// the /api server functions called by clients, health and metrics.
//
// Every failure leaves through one responder. It classifies the error
// into a shared.AppError, logs the full form, and writes the form
// redacted for an untrusted client. In production a sensitive error
// therefore reaches the client as {"type":"hidden"}.
package httpapi
