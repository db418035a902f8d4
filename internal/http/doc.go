// Package http exposes the event and attendance API over net/http.
//
// Every route except GET /healthz expects an HS256 bearer token whose claims
// carry the user id ("id") and role ("role"). The router exposes:
//   - POST /events, PUT /events/{id}, DELETE /events/{id}: event administration,
//     administrators only. Bodies are the `eventRequest` and `eventPatchRequest`
//     payloads defined in event_handler.go.
//   - GET /events, GET /events/{id}: event lookup for any authenticated user.
//   - POST /events/{id}/attendance, PUT /events/{id}/attendance: check-in and
//     check-out of the caller for the active session. Body: {"latitude","longitude"}.
//   - GET /events/{id}/attendance: attendance of an event, administrators only.
//   - GET /users/{id}/attendance: attendance of a user, for that user or an administrator.
//
// Errors are rendered as {"error_code","message","errors","retryable"} where
// error_code is the label returned by application.ErrorKind.
package http
