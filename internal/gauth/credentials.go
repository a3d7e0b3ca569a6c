package gauth

import (
	"strings"

	"google.golang.org/api/option"
)

// Scopes requested for the spreadsheet and the image folder.
var Scopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive",
}

// ClientOptions turns a credential source into Google client options.
// The source is either a path to a credentials file or the JSON payload itself,
// which is how hosted deployments usually inject secrets.
func ClientOptions(source string) []option.ClientOption {
	opts := []option.ClientOption{option.WithScopes(Scopes...)}
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		// Application default credentials
	case strings.HasPrefix(source, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(source)))
	default:
		opts = append(opts, option.WithCredentialsFile(source))
	}
	return opts
}
