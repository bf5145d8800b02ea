package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/charnet/internal/model"
	"github.com/samcharles93/charnet/internal/session"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
		},
	})
}

// writeErr maps err onto a status code by the sentinel it wraps.
func writeErr(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return writeNotFound(c, err.Error())
	case errors.Is(err, ErrTooLarge):
		return writeError(c, http.StatusRequestEntityTooLarge, "invalid_request_error", err.Error())
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, model.ErrInvalidInput),
		errors.Is(err, session.ErrInvalidConfig):
		return writeBadRequest(c, err.Error())
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// limitedBody records whether the body limit was hit, whatever the decoder
// does with the read error.
type limitedBody struct {
	r        io.Reader
	tooLarge bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		b.tooLarge = true
	}
	return n, err
}

// decodeJSON decodes the request body as a single JSON document of type T,
// rejecting unknown fields and bodies over MaxBodyBytes. An empty body
// decodes to the zero value.
func decodeJSON[T any](c *echo.Context) (T, error) {
	var out T
	body := &limitedBody{r: http.MaxBytesReader(c.Response(), c.Request().Body, MaxBodyBytes)}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		if body.tooLarge {
			return out, fmt.Errorf("%w: body exceeds %d bytes", ErrTooLarge, MaxBodyBytes)
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		return out, newInvalidRequest("invalid JSON body: " + err.Error())
	}
	return out, nil
}
