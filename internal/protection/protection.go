package protection

import (
	"fmt"
	"regexp"
	"strings"
)

// Config is the protection checker's own config type.
type Config struct {
	AllowDDL         bool
	AllowDML         bool
	AllowGrantRevoke bool
	AllowCall        bool
	ReadOnly         bool
}

// Checker validates SQL statements against protection rules.
type Checker struct {
	config Config
}

// NewChecker creates a new Checker with the given config.
func NewChecker(config Config) *Checker {
	return &Checker{config: config}
}

// injectionSignatures are always-on patterns matched anywhere in the
// statement, case-insensitively. They are deliberately blunt: a signature
// inside a string literal still blocks the query. There is no SQL parser
// here — Snowflake's dialect has no embeddable Go parser — so the checker
// trades false positives for never letting a known injection shape through.
var injectionSignatures = []struct {
	re     *regexp.Regexp
	detail string
}{
	{regexp.MustCompile(`--`), "line comment (--)"},
	{regexp.MustCompile(`/\*`), "block comment (/*)"},
	{regexp.MustCompile(`(?i)\bUNION\s+(?:ALL\s+)?SELECT\b`), "UNION SELECT"},
	{regexp.MustCompile(`(?i)\bEXEC(?:UTE)?\s*\(`), "dynamic execution EXEC()"},
	{regexp.MustCompile(`(?i)\bOR\s+\d+\s*=\s*\d+\b`), "tautology (OR N=N)"},
	{regexp.MustCompile(`(?i)\bOR\s+'[^']*'\s*=\s*'[^']*'`), "tautology (OR 'x'='x')"},
}

// leadingKeywordRe extracts the first keyword of a statement. Leading
// parentheses are skipped so a parenthesized SELECT is classified by its verb.
var leadingKeywordRe = regexp.MustCompile(`^[\s(]*([A-Za-z_]+)`)

// readOnlyVerbs are the only leading keywords permitted in read-only mode.
var readOnlyVerbs = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"SHOW":     true,
	"DESCRIBE": true,
	"DESC":     true,
	"EXPLAIN":  true,
}

// Check validates a single SQL statement against the deny-list and the
// leading-keyword policy. Returns nil if allowed, descriptive error if
// blocked. The statement class is decided by the statement's leading keyword
// only — a DDL keyword appearing in a column name or literal does not block
// the query; the injection signatures above are what guard mid-statement
// smuggling.
func (c *Checker) Check(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return fmt.Errorf("empty query")
	}

	// A single trailing semicolon is tolerated; anything after one is a
	// second statement.
	body := strings.TrimRight(trimmed, "; \t\n\r")
	if strings.Contains(body, ";") {
		return fmt.Errorf("multi-statement queries are not allowed: found content after ';'")
	}

	for _, sig := range injectionSignatures {
		if sig.re.MatchString(trimmed) {
			return fmt.Errorf("potentially unsafe SQL detected: %s", sig.detail)
		}
	}

	m := leadingKeywordRe.FindStringSubmatch(body)
	if m == nil {
		// No leading keyword (e.g. a bare number) — nothing to classify,
		// the backend will reject it on its own.
		return nil
	}
	keyword := strings.ToUpper(m[1])

	if c.config.ReadOnly && !readOnlyVerbs[keyword] {
		return fmt.Errorf("%s is blocked in read-only mode: only SELECT, WITH, SHOW, DESCRIBE, and EXPLAIN are allowed", keyword)
	}

	switch keyword {
	case "CREATE", "ALTER", "DROP", "TRUNCATE":
		if !c.config.AllowDDL {
			return fmt.Errorf("%s is not allowed: DDL statements are blocked", keyword)
		}
	case "INSERT", "UPDATE", "DELETE", "MERGE":
		if !c.config.AllowDML {
			return fmt.Errorf("%s is not allowed: DML statements are blocked", keyword)
		}
	case "GRANT", "REVOKE":
		if !c.config.AllowGrantRevoke {
			return fmt.Errorf("%s is not allowed: can modify database permissions", keyword)
		}
	case "CALL", "EXEC", "EXECUTE":
		if !c.config.AllowCall {
			return fmt.Errorf("%s is not allowed: stored procedures can execute arbitrary SQL bypassing protection checks", keyword)
		}
	}
	return nil
}
