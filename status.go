package conduit

// A small subset of RFC 9110 status codes, named the way the parser and
// channel need to refer to them. Only the ones this driver itself
// produces or reasons about are listed; application handlers are free
// to set any status they like through Response.SetStatus.
const (
	StatusOK                          = 200
	StatusSwitchingProtocols          = 101
	StatusContinue                    = 100
	StatusBadRequest                  = 400
	StatusRequestTimeout              = 408
	StatusExpectationFailed           = 417
	StatusURITooLong                  = 414
	StatusRequestHeaderFieldsTooLarge = 431
	StatusContentTooLarge             = 413
	StatusNotImplemented              = 501
	StatusInternalServerError         = 500
	StatusHTTPVersionNotSupported     = 505
)

var statusText = map[int]string{
	StatusOK:                          "OK",
	StatusSwitchingProtocols:          "Switching Protocols",
	StatusContinue:                    "Continue",
	StatusBadRequest:                  "Bad Request",
	StatusRequestTimeout:              "Request Timeout",
	StatusExpectationFailed:           "Expectation Failed",
	StatusURITooLong:                  "URI Too Long",
	StatusRequestHeaderFieldsTooLarge: "Request Header Fields Too Large",
	StatusContentTooLarge:             "Content Too Large",
	StatusNotImplemented:              "Not Implemented",
	StatusInternalServerError:         "Internal Server Error",
	StatusHTTPVersionNotSupported:     "HTTP Version Not Supported",
}

// StatusText returns the reason phrase registered for code, or
// "Unknown" if none is registered (the generator still emits whatever
// numeric code the handler set).
func StatusText(code int) string {
	if text, ok := statusText[code]; ok {
		return text
	}
	return "Unknown"
}
