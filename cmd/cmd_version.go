package cmd

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/modules/runes"
	"github.com/spf13/cobra"
)

const appVersion = "v0.2.0"

var versions = map[string]string{
	"":      appVersion,
	"runes": runes.Version,
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "version [module]",
		Short:     "Show version of the indexer or one of its modules",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"runes"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var module string
			if len(args) > 0 {
				module = args[0]
			}
			version, ok := versions[module]
			if !ok {
				return errors.Wrapf(errs.Unsupported, "unknown module %q", module)
			}
			fmt.Println(version)
			return nil
		},
	}
}
