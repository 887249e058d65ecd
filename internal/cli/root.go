package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions глобальные флаги всех команд.
type RootOptions struct {
	Format string // "text" | "json"
}

// ValidFormats допустимые значения --format.
var ValidFormats = []string{"text", "json"}

// NewRootCommand создаёт корневую команду spawnctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "spawnctl",
		Short: "Инструменты для файла ориентаций спавнов",
		Long: `spawnctl проверяет и показывает файл ориентаций спавнов,
распаковывает его резервные копии и выпускает токены REST API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "формат вывода (text|json)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewUnpackCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
