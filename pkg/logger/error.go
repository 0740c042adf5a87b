package logger

import (
	"fmt"
	"log/slog"

	"github.com/runixlabs/runes-indexer/pkg/logger/slogx"
)

// errorAttrReplacer formats error attributes as their message string,
// keeping multi-line wrapped errors out of single log lines.
func errorAttrReplacer(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 || attr.Key != slogx.ErrorKey {
		return attr
	}
	err, ok := attr.Value.Any().(error)
	if !ok || err == nil {
		return attr
	}
	return slog.Attr{Key: attr.Key, Value: slog.StringValue(fmt.Sprintf("%v", err))}
}
