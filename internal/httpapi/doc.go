// Package httpapi serves the engine over JSON/HTTP with echo.
//
// Error responses carry the engine's error kind as "code" and the sentinel
// message as "message". Kinds map to status codes in [StatusFor].
package httpapi
