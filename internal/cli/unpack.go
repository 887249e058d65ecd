package cli

import (
	"os"

	"github.com/annel0/spawnkeeper/internal/spawn"
	"github.com/spf13/cobra"
)

// NewUnpackCommand создаёт команду unpack.
func NewUnpackCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "unpack <backup.yml.zst>",
		Short: "Распаковать резервную копию файла ориентаций",
		Long: `Распаковывает резервную копию. Без --output печатает документ;
с --format json выводит таблицу миров как show.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := spawn.ReadBackup(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "резервная копия", err)
			}

			if output != "" {
				if err := os.WriteFile(output, data, 0644); err != nil {
					return WrapExitError(ExitCommandError, "запись файла", err)
				}
				return nil
			}

			f := &formatter{format: rootOpts.Format, w: cmd.OutOrStdout()}
			if f.json() {
				return showDocument(f, data)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "записать документ в файл")
	return cmd
}
