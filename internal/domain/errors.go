package domain

import "errors"

var (
	ErrRoleNotRecognized   = errors.New("role is not a recognized tier")
	ErrRegionNotRecognized = errors.New("region is not recognized")
	ErrRoleGrantFailed     = errors.New("role grant failed")
	ErrRoleRevokeFailed    = errors.New("role revoke failed")
	ErrStoreCorrupt        = errors.New("store is corrupt")
	ErrMemberNotFound      = errors.New("member not found")
)
