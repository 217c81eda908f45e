package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samuell19/megazord-ai/internal/apperr"
)

// errorBody is the JSON envelope for every failed request.
type errorBody struct {
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// dataBody is the JSON envelope for successful requests.
type dataBody struct {
	Status    int         `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type statusName struct {
	code int
	name string
}

var kindStatus = map[apperr.Kind]statusName{
	apperr.KindRecursionLimit:      {http.StatusBadRequest, "RecursionLimitError"},
	apperr.KindNotFound:            {http.StatusNotFound, "NotFound"},
	apperr.KindAccessDenied:        {http.StatusForbidden, "Forbidden"},
	apperr.KindConfiguration:       {http.StatusBadRequest, "ConfigurationError"},
	apperr.KindCorruptCredential:   {http.StatusInternalServerError, "CredentialError"},
	apperr.KindInvalidCredential:   {http.StatusUnauthorized, "InvalidApiKey"},
	apperr.KindRateLimited:         {http.StatusTooManyRequests, "TooManyRequests"},
	apperr.KindMalformedRequest:    {http.StatusBadRequest, "ValidationError"},
	apperr.KindProviderUnavailable: {http.StatusServiceUnavailable, "ServiceUnavailable"},
	apperr.KindNetworkUnreachable:  {http.StatusGatewayTimeout, "GatewayTimeout"},
	apperr.KindProviderError:       {http.StatusBadGateway, "ProviderError"},
	apperr.KindProcessingFailed:    {http.StatusInternalServerError, "ServerError"},
}

// statusFor maps an error's kind to its HTTP status and error name.
func statusFor(err error) (int, string) {
	if s, ok := kindStatus[apperr.KindOf(err)]; ok {
		return s.code, s.name
	}
	return http.StatusInternalServerError, "ServerError"
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// respondError writes err as an error envelope. Unclassified errors are
// logged and reported without detail.
func respondError(c *gin.Context, err error) {
	code, name := statusFor(err)
	msg := apperr.Message(err)
	if msg == "" {
		msg = "internal server error"
	}
	if code >= http.StatusInternalServerError {
		requestLogger(c).Error("request failed", "kind", apperr.KindOf(err), "error", err)
	}
	c.AbortWithStatusJSON(code, errorBody{Status: code, Error: name, Message: msg, Timestamp: timestamp()})
}

// respondFail writes an error envelope with an explicit status.
func respondFail(c *gin.Context, code int, name, msg string) {
	c.AbortWithStatusJSON(code, errorBody{Status: code, Error: name, Message: msg, Timestamp: timestamp()})
}

func respondData(c *gin.Context, code int, msg string, data interface{}) {
	c.JSON(code, dataBody{Status: code, Message: msg, Data: data, Timestamp: timestamp()})
}
