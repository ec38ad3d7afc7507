package scanner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// VulnerabilityPattern is one named detection rule in the catalog. Patterns
// are immutable after construction; the signature analyzer only reads them.
type VulnerabilityPattern struct {
	ID          string
	Name        string
	Description string
	ThreatType  domain.ThreatType
	Severity    domain.Severity
	// ConfidenceModifier scales the match-density score, range (0,1].
	ConfidenceModifier float64

	matcher Matcher
}

// Match runs the rule against content, returning at most max matched
// substrings (max <= 0 means all).
func (p *VulnerabilityPattern) Match(content string, max int) ([]string, error) {
	return p.matcher.FindAll(content, max)
}

// Catalog is the versioned rule set consulted by the signature analyzer.
type Catalog struct {
	version  string
	patterns []VulnerabilityPattern
}

func (c *Catalog) Version() string { return c.version }

// Patterns returns the rules in their catalog order. Callers must not
// mutate the slice.
func (c *Catalog) Patterns() []VulnerabilityPattern { return c.patterns }

func (c *Catalog) Len() int { return len(c.patterns) }

// catalogFile is the YAML shape for an external rule set.
type catalogFile struct {
	Version  string        `yaml:"version"`
	Patterns []catalogRule `yaml:"patterns"`
}

type catalogRule struct {
	ID                 string  `yaml:"id"`
	Name               string  `yaml:"name"`
	Description        string  `yaml:"description"`
	ThreatType         string  `yaml:"threat_type"`
	Severity           string  `yaml:"severity"`
	ConfidenceModifier float64 `yaml:"confidence_modifier"`
	Match              string  `yaml:"match"` // regex | literal | literal-fold
	Pattern            string  `yaml:"pattern"`
}

// LoadCatalogFile reads a YAML rule set and replaces the built-in catalog
// wholesale. Every rule is validated up front so a broken file is rejected
// before it can silently weaken scanning.
func LoadCatalogFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Patterns) == 0 {
		return nil, fmt.Errorf("catalog %s: no patterns", path)
	}
	cat := &Catalog{version: f.Version}
	seen := make(map[string]bool, len(f.Patterns))
	for i, r := range f.Patterns {
		if r.ID == "" {
			return nil, fmt.Errorf("catalog %s: pattern %d: missing id", path, i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("catalog %s: duplicate pattern id %q", path, r.ID)
		}
		seen[r.ID] = true
		if r.ConfidenceModifier <= 0 || r.ConfidenceModifier > 1 {
			return nil, fmt.Errorf("catalog %s: pattern %q: confidence_modifier %v out of (0,1]", path, r.ID, r.ConfidenceModifier)
		}
		tt := domain.ThreatType(r.ThreatType)
		if !tt.Valid() {
			return nil, fmt.Errorf("catalog %s: pattern %q: unknown threat_type %q", path, r.ID, r.ThreatType)
		}
		sev := domain.Severity(r.Severity)
		if !sev.Valid() {
			return nil, fmt.Errorf("catalog %s: pattern %q: unknown severity %q", path, r.ID, r.Severity)
		}
		var m Matcher
		switch r.Match {
		case "", "regex":
			rm, err := NewRegexMatcher(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("catalog %s: pattern %q: %w", path, r.ID, err)
			}
			m = rm
		case "literal":
			m = NewLiteralMatcher(r.Pattern, false)
		case "literal-fold":
			m = NewLiteralMatcher(r.Pattern, true)
		default:
			return nil, fmt.Errorf("catalog %s: pattern %q: unknown match kind %q", path, r.ID, r.Match)
		}
		cat.patterns = append(cat.patterns, VulnerabilityPattern{
			ID:                 r.ID,
			Name:               r.Name,
			Description:        r.Description,
			ThreatType:         tt,
			Severity:           sev,
			ConfidenceModifier: r.ConfidenceModifier,
			matcher:            m,
		})
	}
	return cat, nil
}

// BuiltinCatalog returns the compiled-in rule set. Rules target the textual
// residue that unsafe serialization leaves inside model artifacts: embedded
// source, shell fragments, loader hooks, secrets.
func BuiltinCatalog() *Catalog {
	return &Catalog{
		version:  "builtin-1.4.0",
		patterns: builtinPatterns(),
	}
}

func builtinPatterns() []VulnerabilityPattern {
	return []VulnerabilityPattern{
		{
			ID:                 "sig-eval-call",
			Name:               "dynamic eval call",
			Description:        "Embedded eval() call, executes attacker-controlled expressions at load time",
			ThreatType:         domain.ThreatBackdoor,
			Severity:           domain.SeverityHigh,
			ConfidenceModifier: 0.9,
			matcher:            MustRegexMatcher(`eval\s*\(`),
		},
		{
			ID:                 "sig-exec-call",
			Name:               "dynamic exec call",
			Description:        "Embedded exec() call, executes attacker-controlled statements at load time",
			ThreatType:         domain.ThreatBackdoor,
			Severity:           domain.SeverityHigh,
			ConfidenceModifier: 0.9,
			matcher:            MustRegexMatcher(`exec\s*\(`),
		},
		{
			ID:                 "sig-dunder-import",
			Name:               "dynamic import hook",
			Description:        "__import__ call used to pull modules chosen at runtime",
			ThreatType:         domain.ThreatBackdoor,
			Severity:           domain.SeverityHigh,
			ConfidenceModifier: 0.85,
			matcher:            MustRegexMatcher(`__import__\s*\(`),
		},
		{
			ID:                 "sig-reduce-hook",
			Name:               "pickle reduce hook",
			Description:        "__reduce__/__reduce_ex__ override, the classic pickle code-execution gadget",
			ThreatType:         domain.ThreatBackdoor,
			Severity:           domain.SeverityCritical,
			ConfidenceModifier: 0.9,
			matcher:            MustRegexMatcher(`__reduce(?:_ex)?__`),
		},
		{
			ID:                 "sig-compile-call",
			Name:               "runtime compile call",
			Description:        "compile() of embedded source into executable code objects",
			ThreatType:         domain.ThreatBackdoor,
			Severity:           domain.SeverityMedium,
			ConfidenceModifier: 0.7,
			matcher:            MustRegexMatcher(`\bcompile\s*\(`),
		},
		{
			ID:                 "sig-os-shell",
			Name:               "os shell escape",
			Description:        "os.system/os.popen shell execution from artifact content",
			ThreatType:         domain.ThreatMalware,
			Severity:           domain.SeverityCritical,
			ConfidenceModifier: 0.85,
			matcher:            MustRegexMatcher(`os\.(?:system|popen|exec[lv]p?e?)\s*\(`),
		},
		{
			ID:                 "sig-subprocess",
			Name:               "subprocess spawn",
			Description:        "subprocess invocation embedded in serialized content",
			ThreatType:         domain.ThreatMalware,
			Severity:           domain.SeverityHigh,
			ConfidenceModifier: 0.8,
			matcher:            MustRegexMatcher(`subprocess\.(?:run|call|Popen|check_output|check_call)`),
		},
		{
			ID:                 "sig-marshal-load",
			Name:               "marshal bytecode load",
			Description:        "marshal.loads of embedded compiled bytecode",
			ThreatType:         domain.ThreatMalware,
			Severity:           domain.SeverityHigh,
			ConfidenceModifier: 0.75,
			matcher:            MustRegexMatcher(`marshal\.loads?\s*\(`),
		},
		{
			ID:                 "sig-ctypes",
			Name:               "ctypes native call",
			Description:        "ctypes usage reaching into native libraries from model content",
			ThreatType:         domain.ThreatMalware,
			Severity:           domain.SeverityMedium,
			ConfidenceModifier: 0.7,
			matcher:            MustRegexMatcher(`ctypes\.(?:CDLL|WinDLL|windll|cdll)`),
		},
		{
			ID:                 "sig-shell-fragment",
			Name:               "shell command fragment",
			Description:        "Destructive or staging shell fragments inside artifact content",
			ThreatType:         domain.ThreatMalware,
			Severity:           domain.SeverityHigh,
			ConfidenceModifier: 0.8,
			matcher:            MustRegexMatcher(`(?i)(?:rm\s+-rf\s+/|chmod\s+\+x|/bin/(?:ba)?sh\b|curl\s+.{0,40}\|\s*sh)`),
		},
		{
			ID:                 "sig-socket-connect",
			Name:               "raw socket connect",
			Description:        "Socket construction or outbound connect from artifact content",
			ThreatType:         domain.ThreatDataLeak,
			Severity:           domain.SeverityHigh,
			ConfidenceModifier: 0.7,
			matcher:            MustRegexMatcher(`socket\.(?:socket|create_connection)\s*\(`),
		},
		{
			ID:                 "sig-http-client",
			Name:               "http client usage",
			Description:        "HTTP client modules referenced by serialized content",
			ThreatType:         domain.ThreatDataLeak,
			Severity:           domain.SeverityMedium,
			ConfidenceModifier: 0.55,
			matcher:            MustRegexMatcher(`(?i)\b(?:urllib\.request|requests\.(?:get|post|put)|http\.client)\b`),
		},
		{
			ID:                 "sig-raw-url",
			Name:               "embedded remote url",
			Description:        "Hardcoded remote URL, likely staging or exfiltration endpoint",
			ThreatType:         domain.ThreatDataLeak,
			Severity:           domain.SeverityMedium,
			ConfidenceModifier: 0.5,
			matcher:            MustRegexMatcher(`(?i)https?://[^\s"'<>]{8,}`),
		},
		{
			ID:                 "sig-base64-decode",
			Name:               "base64 payload decode",
			Description:        "base64 decoding of an embedded payload before use",
			ThreatType:         domain.ThreatAdversarial,
			Severity:           domain.SeverityMedium,
			ConfidenceModifier: 0.6,
			matcher:            MustRegexMatcher(`(?i)(?:base64\.b64decode|b64decode\s*\()`),
		},
		{
			ID:                 "sig-hex-blob",
			Name:               "escaped hex blob",
			Description:        "Long run of escaped hex bytes, typical of packed shellcode",
			ThreatType:         domain.ThreatAdversarial,
			Severity:           domain.SeverityMedium,
			ConfidenceModifier: 0.6,
			matcher:            MustRegexMatcher(`(?:\\x[0-9a-fA-F]{2}){8,}`),
		},
		{
			ID:                 "sig-env-harvest",
			Name:               "environment harvesting",
			Description:        "Reads of process environment or credential files",
			ThreatType:         domain.ThreatPrivacyViolation,
			Severity:           domain.SeverityMedium,
			ConfidenceModifier: 0.65,
			matcher:            MustRegexMatcher(`(?i)(?:os\.environ|getenv\s*\(|/etc/passwd|\.ssh/id_rsa|\.aws/credentials)`),
		},
		{
			ID:                 "sig-hardcoded-secret",
			Name:               "hardcoded credential",
			Description:        "Credential-looking assignment embedded in artifact content",
			ThreatType:         domain.ThreatPrivacyViolation,
			Severity:           domain.SeverityMedium,
			ConfidenceModifier: 0.65,
			matcher:            MustRegexMatcher(`(?i)(?:api[_-]?key|secret|passwd|password|auth[_-]?token)\s*[:=]\s*["'][^"']{6,}["']`),
		},
		{
			ID:                 "sig-aws-key",
			Name:               "aws access key id",
			Description:        "AWS access key id embedded in artifact content",
			ThreatType:         domain.ThreatPrivacyViolation,
			Severity:           domain.SeverityCritical,
			ConfidenceModifier: 0.9,
			matcher:            MustRegexMatcher(`\bAKIA[0-9A-Z]{16}\b`),
		},
	}
}
