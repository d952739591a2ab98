package cli

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dkoosis/amalgam/internal/mastodon"
)

const userTokenEnv = "AMALGAM_MASTODON_USER_TOKEN"

var (
	breakTag = regexp.MustCompile(`(?i)<br\s*/?>|</p>\s*<p>`)
	anyTag   = regexp.MustCompile(`<[^>]*>`)
)

// plainText turns post HTML into one line of text.
func plainText(s string) string {
	s = breakTag.ReplaceAllString(s, " ")
	s = anyTag.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

func newTimelineCommand(a *app) *cobra.Command {
	var (
		token string
		name  string
		limit int
		tries int
		width int
	)
	cmd := &cobra.Command{
		Use:   "timeline <domain>",
		Short: "Fetch a timeline with a user access token",
		Long: `timeline fetches posts on a user's behalf. Timelines are home, public, local,
tag:<hashtag> and list:<id>. The token defaults to $` + userTokenEnv + `.`,
		Args: args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			if token == "" {
				token = a.getenv(userTokenEnv)
			}
			if token == "" {
				return usage(errors.New("a user access token is required: pass --token or set " + userTokenEnv))
			}

			ctx := cmd.Context()
			client := mastodon.NewDataClient(a.cfg.Mastodon, a.logger, a.mastodonOptions()...)
			if err := client.StartUserClient(ctx, argv[0], token); err != nil {
				return err
			}
			posts, err := client.Timeline(ctx, name, limit, tries)
			if err != nil {
				return err
			}

			if ok, err := a.printJSON(posts); ok {
				return err
			}
			for _, p := range posts {
				fmt.Fprintln(a.stdout, postLine(p, width))
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&token, "token", "", "User access token")
	flags.StringVar(&name, "name", mastodon.TimelineHome, "Timeline: home, public, local, tag:<x> or list:<id>")
	flags.IntVar(&limit, "limit", 20, "Maximum number of posts")
	flags.IntVar(&tries, "tries", 0, "Attempts before giving up (default from config)")
	flags.IntVar(&width, "width", 120, "Truncate lines to this many columns; 0 disables")
	return cmd
}

// postLine renders a post as "@acct  time  text". Boosts show the
// original author.
func postLine(p mastodon.Post, width int) string {
	prefix := ""
	if p.Reblog != nil {
		prefix = "boosted by @" + p.Account.Acct + ": "
		p = *p.Reblog
	}
	text := plainText(p.Content)
	if p.SpoilerText != "" {
		text = "[CW " + p.SpoilerText + "]"
	}
	line := fmt.Sprintf("@%s  %s  %s%s", p.Account.Acct, p.CreatedAt.Local().Format("2006-01-02 15:04"), prefix, text)
	if width > 0 {
		line = runewidth.Truncate(line, width, "…")
	}
	return line
}
