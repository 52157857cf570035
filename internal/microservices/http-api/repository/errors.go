package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// errInvalidValue marks values postgres refused to parse, e.g. a malformed uuid.
var errInvalidValue = errors.New("invalid value")

const (
	pgInvalidTextRepresentation = "22P02"
	pgForeignKeyViolation       = "23503"
)

var ErrUnknownOwner = errors.New("owner does not exist")

func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgInvalidTextRepresentation:
		return fmt.Errorf("%w: %s", errInvalidValue, pgErr.Message)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrUnknownOwner, pgErr.Message)
	}
	return err
}
