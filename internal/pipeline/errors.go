package pipeline

import "errors"

// ErrInput and ErrAuth classify synchronous Init failures per §7's
// Input/Auth taxonomy; handlers wrap these with fmt.Errorf("%w: detail").
var (
	ErrInput = errors.New("input")
	ErrAuth  = errors.New("auth")
)
