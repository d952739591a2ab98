package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkoosis/amalgam/internal/mastodon"
)

// mastodonOptions returns the transport options shared by the auth and
// timeline commands.
func (a *app) mastodonOptions() []mastodon.Option {
	if a.httpClient == nil {
		return nil
	}
	return []mastodon.Option{mastodon.WithHTTPClient(a.httpClient)}
}

func (a *app) oauthClient() *mastodon.OAuthClient {
	return mastodon.NewOAuthClient(a.cfg.Mastodon, a.logger, a.mastodonOptions()...)
}

// printJSON writes v to stdout when --json is set and reports whether it did.
func (a *app) printJSON(v any) (bool, error) {
	if !a.flags.json {
		return false, nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return true, err
	}
	fmt.Fprintln(a.stdout, string(data))
	return true, nil
}

func newAuthCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Walk through the Mastodon OAuth flow with the configured app credentials",
		Long: `auth uses the client id, secret and app access token from the mastodon block
of the configuration (or AMALGAM_MASTODON_* variables).

A typical flow is:
  amalgam auth url mastodon.social      # open the URL and approve the app
  amalgam auth token mastodon.social CODE`,
	}
	cmd.AddCommand(newAuthVerifyCommand(a))
	cmd.AddCommand(newAuthAppCommand(a))
	cmd.AddCommand(newAuthURLCommand(a))
	cmd.AddCommand(newAuthTokenCommand(a))
	return cmd
}

func newAuthVerifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <domain>",
		Short: "Check that a domain is a Mastodon instance and print its canonical domain",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			domain, err := a.oauthClient().VerifyDomain(cmd.Context(), argv[0])
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(map[string]string{"domain": domain}); ok {
				return err
			}
			fmt.Fprintln(a.stdout, domain)
			return nil
		},
	}
}

func newAuthAppCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "app <domain>",
		Short: "Check the app access token against an instance",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			client := a.oauthClient()
			if err := client.StartAppClient(argv[0]); err != nil {
				return err
			}
			registered, err := client.VerifyApp(cmd.Context())
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(registered); ok {
				return err
			}
			fmt.Fprintf(a.stdout, "%s is registered on %s\n", registered.Name, client.Domain())
			return nil
		},
	}
}

func newAuthURLCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "url <domain>",
		Short: "Print the page where a user approves the app",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			client := a.oauthClient()
			domain, err := client.VerifyDomain(cmd.Context(), argv[0])
			if err != nil {
				return err
			}
			if err := client.StartAppClient(domain); err != nil {
				return err
			}
			authURL, err := client.AuthorizeURL()
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(map[string]string{"domain": domain, "url": authURL}); ok {
				return err
			}
			fmt.Fprintln(a.stdout, authURL)
			return nil
		},
	}
}

func newAuthTokenCommand(a *app) *cobra.Command {
	var tries int
	cmd := &cobra.Command{
		Use:   "token <domain> <code>",
		Short: "Exchange an authorization code for a user access token",
		Args:  args(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			client := a.oauthClient()
			if err := client.StartAppClient(argv[0]); err != nil {
				return err
			}
			token, err := client.ExchangeCode(cmd.Context(), argv[1], tries)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(map[string]string{"domain": client.Domain(), "access_token": token}); ok {
				return err
			}
			fmt.Fprintln(a.stdout, token)
			return nil
		},
	}
	cmd.Flags().IntVar(&tries, "tries", 0, "Attempts before giving up (default from config)")
	return cmd
}
