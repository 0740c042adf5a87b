package migrate

import (
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
)

var _ migrate.Logger = (*consoleLogger)(nil)

// consoleLogger prints migration progress to stdout, prefixed with the module
// the migrations belong to.
type consoleLogger struct {
	prefix  string
	verbose bool
}

func (l *consoleLogger) Printf(format string, v ...any) {
	fmt.Fprintf(os.Stdout, l.prefix+format, v...)
}

func (l *consoleLogger) Verbose() bool {
	return l.verbose
}
