package tablesideserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Apurer/tableside/internal/facade"
	apierrors "github.com/Apurer/tableside/internal/shared/errors"
)

// responder renders facade outages as 503 without leaking storage detail.
var responder = apierrors.NewResponder("",
	apierrors.MapSentinel(facade.ErrUnavailable, apierrors.ErrUnavailable.WithDetail("the venue store is unreachable, retry shortly")),
)

func respondProblem(c *gin.Context, problem apierrors.ProblemDetail) {
	responder.Respond(c, problem)
}

// respondError turns a status and error into an RFC 7807 response.
func respondError(c *gin.Context, status int, err error) {
	if err == nil {
		return
	}
	respondProblem(c, apierrors.ForStatus(status).WithDetail(err.Error()))
}

// respondBindError reports a request body that could not be decoded or validated.
func respondBindError(c *gin.Context, err error) {
	respondProblem(c, apierrors.NewBindingProblem(err))
}

// respondFacadeError handles the error half of a facade result. It reports whether a
// response was written.
func respondFacadeError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	responder.RespondError(c, err)
	return true
}

func respondRejected(c *gin.Context, detail string) {
	respondError(c, http.StatusConflict, errors.New(detail))
}

func respondUnprocessable(c *gin.Context, detail string) {
	respondError(c, http.StatusUnprocessableEntity, errors.New(detail))
}

func respondMissing(c *gin.Context, resource string, id any) {
	respondProblem(c, apierrors.NewNotFoundProblem(resource, id))
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	value := c.Param(name)
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, fmt.Errorf("%s must be a positive integer", name))
		return 0, false
	}
	return id, true
}
