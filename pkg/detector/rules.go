package detector

import (
	"regexp"

	"github.com/vulnscope/vulnscope/pkg/types"
)

// Rule is one insecure idiom. Patterns are matched case-insensitively
// against the whole file.
type Rule struct {
	Category       types.Category
	Severity       types.Severity
	Pattern        *regexp.Regexp
	Message        string
	Recommendation string
}

func rule(c types.Category, sev types.Severity, pattern, msg, rec string) Rule {
	return Rule{
		Category:       c,
		Severity:       sev,
		Pattern:        regexp.MustCompile(`(?i)` + pattern),
		Message:        msg,
		Recommendation: rec,
	}
}

// DefaultRules is the built-in rule table. \x60 is a backtick.
var DefaultRules = []Rule{
	rule(types.CategorySQLInjection, types.SeverityCritical,
		`(?:execute|query|exec)\s*\(\s*["\x60'].*?\$\{.*?\}.*?["\x60']|(?:execute|query|exec)\s*\(\s*.*?\+.*?\)`,
		"SQL query built from interpolated or concatenated input",
		"Use parameterized queries or prepared statements instead of building SQL strings."),
	rule(types.CategorySQLInjection, types.SeverityCritical,
		`(?:SELECT|INSERT|UPDATE|DELETE|DROP|CREATE).*?(?:\$\{|\+\s*[\w.]+\s*\+)`,
		"SQL statement assembled with dynamic values",
		"Pass values as bound parameters and keep the statement text constant."),

	// a literal on the right-hand side is fine, anything else is not
	rule(types.CategoryXSS, types.SeverityHigh,
		`\.innerHTML\s*=\s*[^"'\x60\s].*?[;\n]|dangerouslySetInnerHTML`,
		"HTML injected from a non-literal value",
		"Use textContent, or sanitize the markup with a vetted library such as DOMPurify."),
	rule(types.CategoryXSS, types.SeverityHigh,
		`document\.write\s*\(`,
		"document.write can inject unescaped markup",
		"Build DOM nodes with createElement and textContent."),

	rule(types.CategoryCommandInjection, types.SeverityCritical,
		`(?:exec|spawn|execSync|execFile|spawnSync)\s*\(\s*["\x60'].*?\$\{.*?\}.*?["\x60']|(?:exec|spawn|execSync|execFile|spawnSync)\s*\(.*?\+`,
		"Shell command built from interpolated or concatenated input",
		"Pass arguments as an array to execFile/spawn and validate them against an allow-list."),

	rule(types.CategoryPathTraversal, types.SeverityHigh,
		`(?:readFile|writeFile|readFileSync|writeFileSync|createReadStream|createWriteStream)\s*\(\s*(?:["\x60'].*?\$\{.*?\}.*?["\x60']|.*?\+.*?)`,
		"File path built from interpolated or concatenated input",
		"Resolve the path and check that it stays under the intended base directory."),

	rule(types.CategoryHardcodedSecret, types.SeverityCritical,
		`(?:password|passwd|pwd|secret|token|api[-_]?key)\s*[:=]\s*["'\x60][^"'\x60\s]{8,}["'\x60]`,
		"Credential hardcoded in source",
		"Load secrets from the environment or a secret manager and rotate the exposed value."),

	rule(types.CategoryWeakCrypto, types.SeverityHigh,
		`(?:createHash|createCipher)\s*\(\s*["'\x60](?:md5|sha1|des|rc4)["'\x60]`,
		"Weak cryptographic algorithm",
		"Use SHA-256 or stronger for hashing and AES-GCM for encryption."),

	rule(types.CategoryInsecureRandom, types.SeverityMedium,
		`Math\.random\s*\(\s*\)`,
		"Math.random is not cryptographically secure",
		"Use crypto.randomBytes or crypto.getRandomValues for security-sensitive values."),

	rule(types.CategoryDynamicCode, types.SeverityCritical,
		`\beval\s*\(`,
		"eval executes arbitrary code",
		"Remove eval; parse data with JSON.parse or dispatch through an explicit lookup table."),
	rule(types.CategoryDynamicCode, types.SeverityCritical,
		`new\s+Function\s*\(`,
		"Function constructor executes arbitrary code",
		"Replace dynamically constructed functions with static code."),

	rule(types.CategoryUnsafeRegex, types.SeverityMedium,
		`/\(.*?\+.*?\)\*/|/\(.*?\*.*?\)\+/|/\(.*?\+.*?\)\+/`,
		"Regular expression with nested quantifiers (ReDoS)",
		"Rewrite the expression without nested quantifiers or bound the input length."),

	rule(types.CategoryOpenRedirect, types.SeverityMedium,
		`(?:location\.href|location\.replace|window\.location)\s*=\s*(?:["\x60'].*?\$\{.*?\}.*?["\x60']|.*?\+.*?)`,
		"Redirect target built from dynamic input",
		"Redirect only to relative paths or to hosts on an allow-list."),
}
