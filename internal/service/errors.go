package service

import "errors"

var (
	ErrPostNotFound       = errors.New("post not found")
	ErrUnknownAuthor      = errors.New("author does not exist")
	ErrEmptyContent       = errors.New("content is empty")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)
