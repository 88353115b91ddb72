package handler // handler defines http handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/medilink/internal/middleware"
	"github.com/iliyamo/medilink/internal/service"
)

// errUnauthorized is returned by getUserID when the token subject is not a
// patient id.
var errUnauthorized = errors.New("invalid user_id in context")

// getUserID returns the authenticated patient id stored by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	n, err := strconv.ParseUint(middleware.UserID(c), 10, 64)
	if err != nil || n == 0 {
		return 0, errUnauthorized
	}
	return n, nil
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"success": false, "message": msg})
}

// writeError turns a service error into a JSON response.  Typed errors keep
// their message; everything else is logged and reported as a generic 500.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var (
		ve *service.ValidationError
		nf *service.NotFoundError
		ce *service.ConflictError
		ie *service.InvalidStateError
		ae *service.AuthorizationError
		de *service.DependencyError
	)
	switch {
	case errors.As(err, &ve):
		return fail(c, http.StatusBadRequest, ve.Msg)
	case errors.As(err, &nf):
		return fail(c, http.StatusNotFound, nf.Msg)
	case errors.As(err, &ce):
		return fail(c, http.StatusConflict, ce.Msg)
	case errors.As(err, &ie):
		return fail(c, http.StatusBadRequest, ie.Msg)
	case errors.As(err, &ae):
		return fail(c, http.StatusForbidden, ae.Msg)
	case errors.As(err, &de):
		log.Error("dependency failure", zap.String("path", c.Path()), zap.Error(err))
		return fail(c, http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	return fail(c, http.StatusInternalServerError, "internal server error")
}

// wardQuery reads the wardName and wardNo query parameters shared by the
// bed grid endpoints.
func wardQuery(c echo.Context) (string, int, bool) {
	name := strings.TrimSpace(c.QueryParam("wardName"))
	no, err := strconv.Atoi(c.QueryParam("wardNo"))
	if name == "" || err != nil || no <= 0 {
		return "", 0, false
	}
	return name, no, true
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
