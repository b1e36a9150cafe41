package core

import "errors"

var (
	ErrResourceExhausted = errors.New("joybus: no free state machine")
	ErrProgramMemoryFull = errors.New("joybus: no room for program in instruction memory")
)
