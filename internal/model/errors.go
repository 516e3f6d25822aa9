package model

import "errors"

var (
	// ErrWorkspaceRequired is returned when a connect request is missing the workspace ID.
	ErrWorkspaceRequired = errors.New("workspace id is required")

	// ErrWorkspaceNotFound is returned when a workspace is not found.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrUserNotFound is returned when a user is not present in the session.
	ErrUserNotFound = errors.New("user not found")

	// ErrCommentNotFound is returned when a comment referent does not exist.
	ErrCommentNotFound = errors.New("comment not found")

	// ErrClientClosed is returned when an operation is attempted on a closed client.
	ErrClientClosed = errors.New("collaboration client is closed")

	// ErrNotConnected is returned when an operation requires an active session.
	ErrNotConnected = errors.New("not connected to a workspace")
)
