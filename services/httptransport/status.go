package httptransport

import (
	"net/http"
	"net/url"

	feedErrors "github.com/customeros/feedsync/internal/errors"
)

// Error codes sent in the "Error" header of a 403 by the aggregation
// service's login endpoint.
var syncErrorMessages = map[string]string{
	"BadAuthentication":  "The username or password is not recognized.",
	"NotVerified":        "The account email address has not been verified.",
	"TermsNotAgreed":     "The account owner has not agreed to the terms of service.",
	"CaptchaRequired":    "A CAPTCHA must be solved before signing in.",
	"AccountDeleted":     "The account has been deleted.",
	"AccountDisabled":    "The account has been disabled.",
	"ServiceDisabled":    "Access to the service has been disabled for this account.",
	"ServiceUnavailable": "The service is not available. Try again later.",
}

var statusMessages = map[int]string{
	http.StatusBadRequest:          "Bad Request",
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "Not Found",
	http.StatusRequestTimeout:      "Request Timeout",
	http.StatusInternalServerError: "Internal Server Error",
	http.StatusBadGateway:          "Bad Gateway",
	http.StatusServiceUnavailable:  "Service Unavailable",
}

// statusError maps a non-success response to the matching error, or nil for
// a 2xx response.
func statusError(uri *url.URL, resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotModified:
		return &feedErrors.NotModifiedError{URI: uri.String()}
	case code == http.StatusUnauthorized:
		return &feedErrors.AuthenticationRequiredError{URI: uri.String(), Realm: parseRealm(resp.Header)}
	case code == http.StatusForbidden:
		if syncErr := syncConnectionError(resp.Header); syncErr != nil {
			return syncErr
		}
		return feedErrors.NewStatusError(code, statusMessages[code])
	case code == http.StatusProxyAuthRequired:
		return &feedErrors.ProxyAuthenticationRequiredError{URI: uri.String()}
	}

	message, ok := statusMessages[code]
	if !ok {
		message = "Unexpected HTTP status"
		if code >= 400 {
			message = "HTTP error"
		}
	}
	return feedErrors.NewStatusError(code, message)
}

func parseRealm(header http.Header) string {
	for _, challenge := range header.Values("WWW-Authenticate") {
		if match := realmRegex.FindStringSubmatch(challenge); match != nil {
			return match[1]
		}
	}
	return ""
}

func syncConnectionError(header http.Header) *feedErrors.SyncConnectionError {
	code := header.Get("Error")
	message, ok := syncErrorMessages[code]
	if !ok {
		return nil
	}
	return &feedErrors.SyncConnectionError{Code: code, Message: message, RemediationURL: header.Get("Url")}
}
