package logging

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// LogError logs err with its goerr values and stack when available.
func LogError(ctx context.Context, err error, msg string) {
	if err == nil {
		return
	}
	logger := From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error(msg,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
		return
	}
	logger.Error(msg, "error", err.Error())
}
