package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/pkg/errorspkg"
	"github.com/go-petr/pet-lender/pkg/web"
	"github.com/rs/zerolog"
)

// RespondError renders err with the status code of its category. Uncategorized
// errors are reported as internal without details.
func RespondError(gctx *gin.Context, err error) {
	c := domain.CategoryOf(err)
	if c == domain.CategoryInternal {
		err = errorspkg.ErrInternal
	}

	gctx.JSON(web.StatusFor(string(c)), web.CategorizedError(err, string(c)))
}

// RespondInvalid renders a request binding failure.
func RespondInvalid(gctx *gin.Context, err error) {
	zerolog.Ctx(gctx.Request.Context()).Info().Err(err).Send()

	gctx.JSON(http.StatusBadRequest, web.Response{
		Error:    web.ValidationMessage(err),
		Category: string(domain.CategoryField),
	})
}
