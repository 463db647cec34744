package security

import (
	"net/url"
	"regexp"
	"strings"
)

// RiskLevel grades input by how dangerous its content looks.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// String names the level for logs and verdict payloads.
func (r RiskLevel) String() string {
	switch r {
	case RiskCritical:
		return "critical"
	case RiskHigh:
		return "high"
	case RiskMedium:
		return "medium"
	default:
		return "low"
	}
}

// Assessment is the sanitizer's advisory verdict. Callers decide blocking
// policy per tool trust level and scope; the sanitizer only labels.
type Assessment struct {
	Risk   RiskLevel `json:"risk"`
	Reason string    `json:"reason,omitempty"`
}

// Pattern definitions for input risk assessment.
var (
	// Critical: destroys the system or executes untrusted remote code.
	recursiveRootDeletion = regexp.MustCompile(`(?i)\brm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)[a-z]*\s+(/|/\*|~|\$HOME)\s*(\s|$)`)
	diskDeviceWrite       = regexp.MustCompile(`(?i)\b(dd|mkfs(\.\w+)?|shred)\b.*\s(of=)?/dev/(sd[a-z]|nvme\d+n\d+|hd[a-z]|disk\d+)`)
	forkBomb              = regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`)
	pipeToShell           = regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;]*\|\s*(sudo\s+)?(ba)?sh\b`)

	// High: escapes the intended file sandbox or tampers with system state.
	pathTraversal = regexp.MustCompile(`\.\.[\\/]`)
	systemPath    = regexp.MustCompile(`(?i)(^|[\s"'=])/(etc|boot|proc|sys|dev|root)(/|\s|$)`)
	sqlInjection  = regexp.MustCompile(`(?i)('\s*(or|and)\s+[\w'"]+\s*=\s*[\w'"]+|union\s+select|;\s*drop\s+table|--\s*$)`)

	// Medium: markup that could reach a downstream renderer.
	scriptTagXSS = regexp.MustCompile(`(?i)<\s*script[\s>]|javascript\s*:`)

	safeFilename = regexp.MustCompile(`^[A-Za-z0-9._-]{1,255}$`)
)

type patternRule struct {
	re     *regexp.Regexp
	risk   RiskLevel
	reason string
}

var riskRules = []patternRule{
	{recursiveRootDeletion, RiskCritical, "recursive deletion of a root path"},
	{diskDeviceWrite, RiskCritical, "write to a raw disk device"},
	{forkBomb, RiskCritical, "fork bomb"},
	{pipeToShell, RiskCritical, "piping a download into a shell"},
	{pathTraversal, RiskHigh, "path traversal sequence"},
	{systemPath, RiskHigh, "reference to a protected system path"},
	{sqlInjection, RiskHigh, "SQL injection shape"},
	{scriptTagXSS, RiskMedium, "embedded script markup"},
}

// Sanitizer assesses free-form input, filenames, and URLs. The zero value
// is not usable; construct with NewSanitizer.
type Sanitizer struct {
	allowedSchemes    map[string]bool
	suspiciousDomains map[string]bool
}

// SanitizerConfig overrides the default URL policy.
type SanitizerConfig struct {
	// AllowedSchemes replaces the default {http, https} allowlist.
	AllowedSchemes []string

	// SuspiciousDomains are hosts always rejected.
	SuspiciousDomains []string
}

// NewSanitizer builds a sanitizer with the given policy.
func NewSanitizer(cfg SanitizerConfig) *Sanitizer {
	schemes := cfg.AllowedSchemes
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	s := &Sanitizer{
		allowedSchemes:    make(map[string]bool, len(schemes)),
		suspiciousDomains: make(map[string]bool, len(cfg.SuspiciousDomains)),
	}
	for _, sc := range schemes {
		s.allowedSchemes[strings.ToLower(sc)] = true
	}
	for _, d := range cfg.SuspiciousDomains {
		s.suspiciousDomains[strings.ToLower(d)] = true
	}
	return s
}

// Assess labels the input with the highest risk any pattern matches.
func (s *Sanitizer) Assess(input string) Assessment {
	best := Assessment{Risk: RiskLow}
	for _, rule := range riskRules {
		if rule.risk <= best.Risk {
			continue
		}
		if rule.re.MatchString(input) {
			best = Assessment{Risk: rule.risk, Reason: rule.reason}
			if best.Risk == RiskCritical {
				break
			}
		}
	}
	return best
}

// SafeFilename reports whether name is a plain filename: limited charset,
// 1-255 characters, no separators.
func (s *Sanitizer) SafeFilename(name string) bool {
	return safeFilename.MatchString(name)
}

// CheckURL validates a URL against the scheme allowlist and the
// suspicious-domain set. An empty host label is always rejected.
func (s *Sanitizer) CheckURL(raw string) Assessment {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Assessment{Risk: RiskHigh, Reason: "unparseable URL"}
	}
	if !s.allowedSchemes[strings.ToLower(u.Scheme)] {
		return Assessment{Risk: RiskHigh, Reason: "URL scheme not allowed"}
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Assessment{Risk: RiskHigh, Reason: "URL has no host"}
	}
	if s.suspiciousDomains[host] {
		return Assessment{Risk: RiskHigh, Reason: "suspicious domain"}
	}
	for label := range s.suspiciousDomains {
		if strings.HasSuffix(host, "."+label) {
			return Assessment{Risk: RiskHigh, Reason: "suspicious domain"}
		}
	}
	return Assessment{Risk: RiskLow}
}
