package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/annel0/spawnkeeper/internal/spawn"
	"github.com/spf13/cobra"
)

// WorldOrientation строка вывода show.
type WorldOrientation struct {
	World string  `json:"world"`
	Pitch float32 `json:"pitch"`
	Yaw   float32 `json:"yaw"`
}

// NewShowCommand создаёт команду show.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Показать ориентации всех миров из файла",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &formatter{format: rootOpts.Format, w: cmd.OutOrStdout()}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "чтение файла", err)
			}
			return showDocument(f, data)
		},
	}
}

func showDocument(f *formatter, data []byte) error {
	entries, _, err := spawn.Parse(data)
	if err != nil {
		return WrapExitError(ExitFailure, "разбор документа", err)
	}

	rows := make([]WorldOrientation, 0, len(entries))
	for name, o := range entries {
		rows = append(rows, WorldOrientation{World: name, Pitch: o.Pitch, Yaw: o.Yaw})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].World < rows[j].World })

	if f.json() {
		return f.encode(Response{Status: "ok", Data: rows})
	}

	tw := tabwriter.NewWriter(f.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WORLD\tPITCH\tYAW")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%v\t%v\n", r.World, r.Pitch, r.Yaw)
	}
	return tw.Flush()
}
