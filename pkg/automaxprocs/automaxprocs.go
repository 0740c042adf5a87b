// Package automaxprocs aligns GOMAXPROCS with the container CPU quota.
package automaxprocs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/cockroachdb/errors"
	"github.com/runixlabs/runes-indexer/pkg/logger"
	"github.com/runixlabs/runes-indexer/pkg/logger/slogx"
	"go.uber.org/automaxprocs/maxprocs"
)

// undo restores GOMAXPROCS to the value it had before Init.
var undo func()

// Init sets GOMAXPROCS to the Linux CFS quota, if one is configured.
// It is a no-op elsewhere. A GOMAXPROCS environment variable always wins.
func Init() error {
	log := logger.With(slogx.String("package", "automaxprocs"))
	maxprocsLog := func(format string, v ...any) {
		attrs := make([]slog.Attr, 0, 1)
		if val, ok := utils.Optional(v); ok {
			if n, ok := val.(int); ok {
				attrs = append(attrs, slogx.Int("maxprocs", n))
			}
		}
		log.LogAttrs(context.Background(), slog.LevelInfo, fmt.Sprintf(format, v...), attrs...)
	}

	revert, err := maxprocs.Set(maxprocs.Logger(maxprocsLog), maxprocs.Min(1))
	if err != nil {
		return errors.WithStack(err)
	}
	undo = revert
	return nil
}

// Undo reverts the adjustment made by Init and returns the resulting value.
func Undo() int {
	if undo != nil {
		undo()
	}
	return Current()
}

// Current returns the current value of GOMAXPROCS.
func Current() int {
	return runtime.GOMAXPROCS(0)
}
