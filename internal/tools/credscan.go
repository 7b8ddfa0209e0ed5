package tools

import "regexp"

// credentialPatterns is the data-driven detector set: "AC"- and
// "SK"-prefixed 32-hex identifiers, and common assignment idioms for auth
// tokens and API secrets. Kept as package-level compiled
// regexps, not a config-loaded list, since the set is small and fixed; a
// future iteration could move this to config the way DeniedExtensions is
// data-driven (pkg/tools/file_writer.go).
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bAC[0-9a-fA-F]{32}\b`),
	regexp.MustCompile(`\bSK[0-9a-fA-F]{32}\b`),
	regexp.MustCompile(`(?i)(authToken|apiSecret|api_secret|auth_token)\s*[:=]\s*['"][^'"\s]{8,}['"]`),
}

// ScanForCredentials returns a short description of the first matching
// pattern in content, or "" if none matched.
func ScanForCredentials(content string) string {
	for _, re := range credentialPatterns {
		if loc := re.FindString(content); loc != "" {
			return re.String()
		}
	}
	return ""
}

// credentialBypassDirs are path components that suppress the scan: fixture
// and documentation content routinely contains lookalike tokens that are
// not real secrets. The bypass is path-based, never content-based, so a
// real leak inside one of these directories is still a defect worth fixing
// at the source rather than something this tool should launder.
var credentialBypassDirs = map[string]bool{
	"testdata": true,
	"test":     true,
	"tests":    true,
	"docs":     true,
}

// IsCredentialScanBypassed reports whether rel's path is exempt from the
// scan (test/doc directories, and .env.example/.env.sample files).
func IsCredentialScanBypassed(rel string) bool {
	if rel == ".env.example" || hasSuffixPath(rel, "/.env.example") {
		return true
	}
	if rel == ".env.sample" || hasSuffixPath(rel, "/.env.sample") {
		return true
	}
	for _, part := range splitPath(rel) {
		if credentialBypassDirs[part] {
			return true
		}
	}
	return false
}

func hasSuffixPath(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	return s[len(s)-len(suffix):] == suffix
}

func splitPath(p string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' || p[i] == '\\' {
			if i > start {
				parts = append(parts, p[start:i])
			}
			start = i + 1
		}
	}
	if start < len(p) {
		parts = append(parts, p[start:])
	}
	return parts
}
