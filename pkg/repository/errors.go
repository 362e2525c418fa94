package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"fleetdispatch/pkg/apperr"
)

const (
	codeInvalidText pq.ErrorCode = "22P02" // malformed uuid and friends
	codeForeignKey  pq.ErrorCode = "23503"
)

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

// notFound maps a missing row, or an id Postgres cannot parse, to
// NotFoundError.
func notFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) || hasCode(err, codeInvalidText) {
		return apperr.NotFound(entity, id)
	}
	return err
}

// missingReference maps an insert that points at an unknown or malformed
// entity id to NotFoundError for that entity.
func missingReference(err error, entity, id string) error {
	if hasCode(err, codeForeignKey) || hasCode(err, codeInvalidText) {
		return apperr.NotFound(entity, id)
	}
	return err
}
