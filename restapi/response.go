/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/acronis/go-batchproxy/log"
)

// ContentTypeAppJSON is the JSON media type.
const ContentTypeAppJSON = "application/json"

// ErrorResponseData wraps an Error into the response body.
type ErrorResponseData struct {
	Err *Error `json:"error"`
}

// RespondJSON writes data as JSON with 200 status.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

// RespondError logs the error code and writes the error as JSON with the status.
func RespondError(rw http.ResponseWriter, httpStatusCode int, err *Error, logger log.FieldLogger) {
	if logger != nil {
		logger.Warn("error in response", log.String("error_code", err.Code), log.String("error_message", err.Message))
	}
	RespondCodeAndJSON(rw, httpStatusCode, ErrorResponseData{Err: err}, logger)
}

// RespondCodeAndJSON writes data as JSON with the status. Nil data produces an empty body.
// URLs in the data are kept as is ("<", ">" and "&" are not escaped).
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(respData); err != nil {
		logError(logger, "error while marshaling json for response body", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	body := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}
	rw.WriteHeader(statusCode)
	if _, err := rw.Write(body); err != nil {
		logError(logger, "error while writing response body", err)
	}
}

func logError(logger log.FieldLogger, msg string, err error) {
	if logger != nil {
		logger.Error(msg, log.Error(err))
	}
}
