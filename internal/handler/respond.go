package handler

import "github.com/labstack/echo/v4"

// envelope is the uniform reply shape of every endpoint. Error replies
// carry a human-readable message and the stable status code; no stack
// traces or internal identifiers ever reach the message field.
type envelope struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// respond writes a success envelope.
func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

// fail writes an error envelope. The status doubles as the stable
// numeric code of the error taxonomy: 400 invalid input, 403 forbidden,
// 404 not found, 409 conflict, 422 invalid state.
func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, envelope{Success: false, Message: msg, StatusCode: status})
}

// failWith is fail with a data payload, used to return the conflicting
// reservations alongside a 409.
func failWith(c echo.Context, status int, msg string, data any) error {
	return c.JSON(status, envelope{Success: false, Message: msg, StatusCode: status, Data: data})
}
