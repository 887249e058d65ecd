package cli

import (
	"fmt"
	"os"

	"github.com/annel0/spawnkeeper/internal/spawn"
	"github.com/spf13/cobra"
)

// ValidationResult итог проверки документа.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Worlds  int      `json:"worlds"`
	Skipped []string `json:"skipped,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// NewValidateCommand создаёт команду validate.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Проверить файл ориентаций перед запуском сервера",
		Long: `Разбирает файл так же, как сервер. Испорченный документ сервер
считает пустым и сбрасывает ориентацию всех миров в 0, поэтому
такой файл даёт ненулевой код выхода.

Миры с нечитаемыми pitch/yaw получат 0; с --strict это тоже ошибка.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &formatter{format: rootOpts.Format, w: cmd.OutOrStdout()}
			return runValidate(f, args[0], strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "считать ошибкой миры со сброшенными значениями")
	return cmd
}

func runValidate(f *formatter, path string, strict bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "чтение файла", err)
	}

	entries, skipped, err := spawn.Parse(data)
	result := ValidationResult{Valid: err == nil, Worlds: len(entries), Skipped: skipped}
	if err != nil {
		result.Error = err.Error()
	}
	if strict && len(skipped) > 0 {
		result.Valid = false
	}

	if f.json() {
		resp := Response{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
		}
		if encErr := f.encode(resp); encErr != nil {
			return encErr
		}
	} else {
		printValidation(f, path, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: проверка не пройдена", path))
	}
	return nil
}

func printValidation(f *formatter, path string, r ValidationResult) {
	if r.Error != "" {
		fmt.Fprintf(f.w, "✗ %s\n  %s\n", path, r.Error)
		fmt.Fprintln(f.w, "  Сервер сбросит pitch/yaw всех миров в 0 и перезапишет файл при следующем изменении спавна.")
		return
	}

	mark := "✓"
	if !r.Valid {
		mark = "✗"
	}
	fmt.Fprintf(f.w, "%s %s: миров %d\n", mark, path, r.Worlds)
	for _, name := range r.Skipped {
		fmt.Fprintf(f.w, "  ! %s: нечитаемые значения будут заменены на 0\n", name)
	}
}
