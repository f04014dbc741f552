package domain

import "errors"

var (
	ErrRoomFull          = errors.New("room is full")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomNotEmpty      = errors.New("room is not empty")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrUnknownIdentity   = errors.New("unknown identity")
	ErrMalformedPayload  = errors.New("malformed signaling payload")
	ErrSpeechUnavailable = errors.New("speech services unavailable")
)
