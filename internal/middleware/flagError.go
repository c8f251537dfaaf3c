package middleware

import (
	"errors"

	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
)

var ErrLogged = errors.New("already logged")

// FlagComboError logs the message of code and returns ErrLogged.
func FlagComboError(code errs.Code, a ...any) error {
	msg := errs.Msg(code, a...)
	logger.LogError("%s", msg)
	return ErrLogged
}
