// Package auth decides whether a sender identity may issue privileged
// commands. The admin list holds opaque identity strings: display names or
// transport ids, with or without transport-domain suffixes.
package auth

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

var (
	domainSuffix = regexp.MustCompile(`@[^.]+\.us$`)
	lidSuffix    = regexp.MustCompile(`@lid$`)
)

// Normalize strips transport-specific suffixes so the same human matches
// across transport notations (e.g. "4470…@c.us" and "4470…").
func Normalize(identity string) string {
	return lidSuffix.ReplaceAllString(domainSuffix.ReplaceAllString(identity, ""), "")
}

type AdminChecker struct {
	admins []string
	log    *slog.Logger
}

func NewAdminChecker(log *slog.Logger, admins []string) *AdminChecker {
	cleaned := lo.FilterMap(admins, func(a string, _ int) (string, bool) {
		a = strings.TrimSpace(a)
		return a, a != ""
	})
	return &AdminChecker{admins: cleaned, log: log}
}

// IsAuthorized reports whether either identity input matches a configured
// admin entry, comparing both raw and suffix-normalized forms. Both inputs
// absent, or an empty admin list, always deny.
func (c *AdminChecker) IsAuthorized(displayName, identityID string) bool {
	if len(c.admins) == 0 {
		c.log.Warn("Admin list is empty, denying all privileged commands")
		return false
	}
	if displayName == "" && identityID == "" {
		return false
	}

	normalizedName := Normalize(displayName)
	normalizedID := Normalize(identityID)

	return lo.SomeBy(c.admins, func(admin string) bool {
		normalizedAdmin := Normalize(admin)
		return admin == displayName ||
			admin == identityID ||
			admin == normalizedName ||
			admin == normalizedID ||
			normalizedAdmin == normalizedName ||
			normalizedAdmin == normalizedID
	})
}
