package storage

import "errors"

var (
	// ErrWorkspaceNotFound is returned when a workspace is not found
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrAccessTokenNotFound is returned when no workspace matches an
	// access token
	ErrAccessTokenNotFound = errors.New("access token not found")
)
