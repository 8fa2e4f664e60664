package model

import "errors"

var (
	// ErrConfiguration marks an experiment that cannot be constructed.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrUnimplemented marks a recognised feature the engine refuses to emulate.
	ErrUnimplemented = errors.New("not implemented")
)
