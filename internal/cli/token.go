package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/annel0/spawnkeeper/internal/auth"
	"github.com/spf13/cobra"
)

// NewTokenCommand создаёт команду token.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		secret   string
		username string
		admin    bool
		ttl      time.Duration
		generate bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Выпустить JWT для REST API",
		Long: `Выпускает токен, подписанный тем же секретом, что и сервер
(--secret или SPAWN_JWT_SECRET). --new-secret печатает новый секрет.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &formatter{format: rootOpts.Format, w: cmd.OutOrStdout()}

			if generate {
				s, err := auth.GenerateSecureSecret()
				if err != nil {
					return err
				}
				return printValue(f, "secret", s)
			}

			if secret == "" {
				secret = os.Getenv("SPAWN_JWT_SECRET")
			}
			if secret == "" {
				return NewExitError(ExitCommandError, "не задан секрет: --secret или SPAWN_JWT_SECRET")
			}

			tokens, err := auth.NewTokenService(secret)
			if err != nil {
				return WrapExitError(ExitCommandError, "секрет", err)
			}
			token, err := tokens.Generate(username, admin, ttl)
			if err != nil {
				return err
			}
			return printValue(f, "token", token)
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "секрет JWT в base64")
	cmd.Flags().StringVar(&username, "user", "admin", "имя пользователя")
	cmd.Flags().BoolVar(&admin, "admin", false, "права администратора")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "срок действия")
	cmd.Flags().BoolVar(&generate, "new-secret", false, "сгенерировать новый секрет")
	return cmd
}

func printValue(f *formatter, key, value string) error {
	if f.json() {
		return f.encode(Response{Status: "ok", Data: map[string]string{key: value}})
	}
	_, err := fmt.Fprintln(f.w, value)
	return err
}
