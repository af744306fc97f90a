package domain

import (
	"errors"
	"fmt"
)

var (
	ErrVideoNotFound      = errors.New("video not found in queue")
	ErrVideoAlreadyQueued = errors.New("video is already in the queue")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomAlreadyLoaded  = errors.New("room already loaded")
	ErrRoomNameTaken      = errors.New("room name already taken")
	ErrMissingToken       = errors.New("missing auth token")
	ErrClientNotFound     = errors.New("client not found in room")
	ErrNilQueueItem       = errors.New("queue item must not be nil")
	ErrQueueIndexRange    = errors.New("queue index out of range")
)

// PermissionDeniedError is returned when a requester does not hold the grant
// required for an operation. It is reported to that requester only and never
// affects room state.
type PermissionDeniedError struct {
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("you do not have permission to %s", e.Permission)
}

// InvalidRoleError is returned when a role outside [-1, 4] is passed to a
// grants mutator.
type InvalidRoleError struct {
	Role Role
}

func (e *InvalidRoleError) Error() string {
	return fmt.Sprintf("%d is not a valid role", int(e.Role))
}

// ImpossiblePromotionError is returned for promotions or demotions that the
// role model cannot express, like demoting an unregistered user.
type ImpossiblePromotionError struct{}

func (e *ImpossiblePromotionError) Error() string {
	return "can't promote/demote unregistered user"
}
