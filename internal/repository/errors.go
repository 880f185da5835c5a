// Package repository defines the persistence contracts of the booking
// engine and their MySQL implementation.  Sentinel errors let higher layers
// tell failure modes apart without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique key, such as a
// second payment for the same booking or a second session for the same
// user and agency.
var ErrDuplicate = errors.New("duplicate")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be applied because the
// row is no longer in the expected state.
var ErrConflict = errors.New("conflict")

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
