package services

import (
	"errors"

	"github.com/feiraviva/api/internal/repositories"
)

// ErrForbidden indicates the caller does not own the resource it addressed.
var ErrForbidden = errors.New("services: forbidden")

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
