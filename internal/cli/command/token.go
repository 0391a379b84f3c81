package command

import (
	"context"
	"fmt"
	"time"

	"judgebroker/internal/cli/state"
	commonmw "judgebroker/internal/common/http/middleware"

	"github.com/golang-jwt/jwt/v5"
	"github.com/urfave/cli/v3"
)

func tokenCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Manage the stored access token",
		Commands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "Sign a token with the broker's secret and store it",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "user", Required: true, Usage: "User id"},
					&cli.StringFlag{Name: "role", Usage: "Role claim, e.g. admin"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "Token lifetime"},
					&cli.StringFlag{Name: "secret", Usage: "Signing secret (defaults to jwtSecret in the config)", Sources: cli.EnvVars("JUDGECTL_JWT_SECRET")},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					secret := cmd.String("secret")
					if secret == "" {
						secret = app.Config.JWTSecret
					}
					if secret == "" {
						return fmt.Errorf("no signing secret, pass --secret or set jwtSecret")
					}
					userID := cmd.Int("user")
					if userID <= 0 {
						return fmt.Errorf("user id must be positive")
					}
					now := time.Now()
					expires := now.Add(cmd.Duration("ttl"))
					auth := commonmw.NewAuthenticator(secret, app.Config.JWTIssuer)
					token, err := auth.Issue(userID, cmd.String("role"), jwt.RegisteredClaims{
						IssuedAt:  jwt.NewNumericDate(now),
						ExpiresAt: jwt.NewNumericDate(expires),
					})
					if err != nil {
						return fmt.Errorf("sign token failed: %w", err)
					}
					app.Token = state.TokenState{AccessToken: token, UserID: userID, Role: cmd.String("role"), ExpiresAt: expires}
					if err := app.Tokens.Put(app.Config.BaseURL, app.Token); err != nil {
						return err
					}
					app.printf("%s for user %d, expires %s\n", okColor.Sprint("token stored"), userID, expires.Format(time.RFC3339))
					return nil
				},
			},
			{
				Name:      "set",
				Usage:     "Store a token obtained elsewhere",
				ArgsUsage: "<access-token>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, "access-token"); err != nil {
						return err
					}
					app.Token = state.TokenState{AccessToken: cmd.Args().First()}
					if err := app.Tokens.Put(app.Config.BaseURL, app.Token); err != nil {
						return err
					}
					app.printf("%s\n", okColor.Sprint("token updated"))
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Show the stored token",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if app.Token.AccessToken == "" {
						app.printf("token: <empty>\n")
						return nil
					}
					app.printField("token", "%s", maskToken(app.Token.AccessToken))
					if app.Token.UserID != 0 {
						app.printField("user", "%d", app.Token.UserID)
					}
					if app.Token.Role != "" {
						app.printField("role", "%s", app.Token.Role)
					}
					if !app.Token.ExpiresAt.IsZero() {
						expires := app.Token.ExpiresAt.Format(time.RFC3339)
						if app.Token.Expired(time.Now()) {
							expires = failColor.Sprint(expires + " (expired)")
						}
						app.printField("expires", "%s", expires)
					}
					app.printField("broker", "%s", app.Config.BaseURL)
					app.printField("state", "%s", app.Tokens.Path())
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "Remove the stored token",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := app.Tokens.Delete(app.Config.BaseURL); err != nil {
						return err
					}
					app.Token = state.TokenState{}
					app.printf("%s\n", okColor.Sprint("token cleared"))
					return nil
				},
			},
		},
	}
}

func maskToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:6] + "..." + token[len(token)-4:]
}
