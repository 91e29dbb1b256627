package middleware

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Input validation and sanitization utilities

// DefaultAllowedHosts are the git hosts imports may clone from.
var DefaultAllowedHosts = []string{"github.com"}

var (
	repoPathPattern = regexp.MustCompile(`^/[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+?(\.git)?/?$`)
	branchPattern   = regexp.MustCompile(`^[A-Za-z0-9._/-]{1,255}$`)
)

// ValidateRepoURL accepts https URLs of an allowed host in owner/repo form.
func ValidateRepoURL(rawURL string, allowedHosts []string) error {
	if rawURL == "" {
		return fmt.Errorf("repoUrl cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: https)", u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("credentials in URL are not allowed")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("query and fragment are not allowed")
	}

	host := strings.ToLower(u.Hostname())
	// Check for localhost/internal IPs (SSRF protection)
	if ip := net.ParseIP(host); ip != nil {
		return fmt.Errorf("IP address hosts are not allowed")
	}
	if len(allowedHosts) == 0 {
		allowedHosts = DefaultAllowedHosts
	}
	allowed := false
	for _, h := range allowedHosts {
		if host == strings.ToLower(h) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("host %s is not allowed (allowed: %s)", host, strings.Join(allowedHosts, ", "))
	}
	if !repoPathPattern.MatchString(u.Path) {
		return fmt.Errorf("repoUrl must look like https://%s/<owner>/<repo>", host)
	}
	return nil
}

// ValidateBranch validates git branch names. Empty means the default branch.
func ValidateBranch(branch string) error {
	if branch == "" {
		return nil
	}
	if !branchPattern.MatchString(branch) || strings.Contains(branch, "..") ||
		strings.HasPrefix(branch, "-") || strings.HasPrefix(branch, "/") || strings.HasSuffix(branch, ".lock") {
		return fmt.Errorf("invalid branch name")
	}
	return nil
}

// ValidateID validates resource ids (UUIDs).
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid %s format", kind)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
