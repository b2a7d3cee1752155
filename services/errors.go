package services

import (
	"errors"
	"fmt"

	"github.com/akinalp/corkboard/pkg"
)

var domainErrors = []error{
	pkg.ErrNotFound,
	pkg.ErrForbidden,
	pkg.ErrConflict,
	pkg.ErrExpired,
	pkg.ErrBadRequest,
	pkg.ErrTooManyRequests,
	pkg.ErrPersistence,
}

// storageErr passes domain errors through and classifies anything else as
// a persistence failure.
func storageErr(err error) error {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", pkg.ErrPersistence, err)
}
