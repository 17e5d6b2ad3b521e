// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package logging

import (
	"net/url"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var secretParam = regexp.MustCompile(`(?i)((?:password|passwd|pwd|token|secret|access_key|secret_key)=)[^&;\s]+`)

// RedactDSN hides credentials in a data source name before it is logged.
// URL userinfo passwords and key=value secrets are replaced; plain file
// paths pass through.
func RedactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}

	if strings.Contains(dsn, "://") {
		if u, err := url.Parse(dsn); err == nil && u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), "xxxxx")
				dsn = strings.Replace(u.String(), "xxxxx", redacted, 1)
			}
		}
	}

	return secretParam.ReplaceAllString(dsn, "${1}"+redacted)
}
