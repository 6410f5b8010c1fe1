package database

import (
	"net/url"
	"regexp"
)

var keywordPassword = regexp.MustCompile(`password=\S+`)

// RedactURL hides the password of a connection string for logging. Both URL
// and keyword/value forms are handled.
func RedactURL(conn string) string {
	if u, err := url.Parse(conn); err == nil && u.Scheme != "" {
		return u.Redacted()
	}
	return keywordPassword.ReplaceAllString(conn, "password=xxxxx")
}
