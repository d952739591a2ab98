// Package mastodon is the only place that talks to Mastodon instances.
//
// OAuthClient walks a user through the out-of-band OAuth flow: verify the
// instance, hand out an authorization URL, and exchange the pasted code for
// a user access token. DataClient uses that token to read timelines and
// returns them as Post values so callers never see the wire format.
//
// Both clients take a *zap.Logger from the caller and log every failure
// before returning it.
package mastodon
