package repositories

import (
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

// psql builds Postgres queries with $n placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
