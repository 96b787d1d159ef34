package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/task-manager-api/pkg/database"
	appErrors "github.com/noah-isme/task-manager-api/pkg/errors"
	"github.com/noah-isme/task-manager-api/pkg/response"
)

// Transaction wraps each request in a database transaction. The transaction
// commits only when the handler chain produced a success status; any error
// status or panic rolls every write of the request back.
func Transaction(db *sqlx.DB, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		uow := database.NewUnitOfWork(db)
		if err := uow.Begin(c.Request.Context()); err != nil {
			logger.Error("failed to begin transaction", zap.Error(err))
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction"))
			c.Abort()
			return
		}

		ctx := database.WithTx(c.Request.Context(), uow.Tx())
		c.Request = c.Request.WithContext(ctx)

		defer func() {
			if r := recover(); r != nil {
				if err := uow.Rollback(); err != nil {
					logger.Error("rollback after panic failed", zap.Error(err))
				}
				panic(r)
			}
		}()

		c.Next()

		if c.Writer.Status() < http.StatusBadRequest {
			if err := uow.Commit(); err != nil {
				logger.Error("failed to commit transaction", zap.Error(err))
			}
			return
		}
		if err := uow.Rollback(); err != nil {
			logger.Error("failed to rollback transaction", zap.Error(err))
		}
	}
}
