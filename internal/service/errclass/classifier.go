package errclass

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"CoinPull/internal/domain/models"
	xhttp "CoinPull/pkg/http"

	"github.com/gorilla/websocket"
)

// Kind is the canonical category of an exchange failure.
type Kind string

const (
	RateLimited Kind = "rate_limited"
	Timeout     Kind = "timeout"
	Fatal       Kind = "fatal"
)

// Retryable reports whether a task should back off and try again.
func (k Kind) Retryable() bool { return k == RateLimited || k == Timeout }

// Classifier maps exchange error payloads to a Kind using static code tables.
// Unrecognized errors are Fatal.
type Classifier struct {
	codes  map[string]map[string]Kind
	status map[int]Kind
}

// New returns a classifier loaded with the built-in exchange tables.
func New() *Classifier {
	return &Classifier{codes: exchangeCodes, status: httpStatus}
}

var exchangeCodes = map[string]map[string]Kind{
	models.ExchangeBinance: {
		"-1003": RateLimited, // too many requests
		"-1015": RateLimited, // too many new orders
		"-1001": Timeout,     // internal disconnect
		"-1007": Timeout,     // backend timeout, status unknown
	},
	models.ExchangeHuobi: {
		"too-many-request":       RateLimited,
		"request-limit":          RateLimited,
		"gateway-internal-error": Timeout,
		"timeout":                Timeout,
	},
	models.ExchangeKucoin: {
		"429000": RateLimited, // too many requests
		"200002": RateLimited, // too many requests in a short period
		"500000": Timeout,     // server busy
	},
}

var httpStatus = map[int]Kind{
	http.StatusTooManyRequests:    RateLimited,
	http.StatusTeapot:             RateLimited, // binance IP ban after repeated 429s
	http.StatusRequestTimeout:     Timeout,
	http.StatusBadGateway:         Timeout,
	http.StatusServiceUnavailable: Timeout,
	http.StatusGatewayTimeout:     Timeout,
}

// Classify never inspects record data, only the error.
func (c *Classifier) Classify(exchange string, err error) Kind {
	if err == nil {
		return Fatal
	}

	var exErr *models.ExchangeError
	if errors.As(err, &exErr) {
		if exErr.Exchange != "" {
			exchange = exErr.Exchange
		}
		if k, ok := c.codes[strings.ToLower(exchange)][exErr.Code]; ok {
			return k
		}
		if k, ok := c.status[exErr.HTTPStatus]; ok {
			return k
		}
		return Fatal
	}

	var stErr *xhttp.StatusError
	if errors.As(err, &stErr) {
		if k, ok := c.status[stErr.Status]; ok {
			return k
		}
		return Fatal
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Timeout
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure, websocket.CloseGoingAway, websocket.CloseServiceRestart, websocket.CloseTryAgainLater) {
		return Timeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Timeout
	}
	return Fatal
}
