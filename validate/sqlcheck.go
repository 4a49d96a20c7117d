package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Heuristic SQL checks. These are pattern checks, not a parser: they
// catch obviously malformed or suspicious statements and nothing more.

var securityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i);\s*--`),
	regexp.MustCompile(`(?i)'\s*or\s+'?1'?\s*=\s*'?1`),
	regexp.MustCompile(`(?i)union\s+select`),
	regexp.MustCompile(`(?i)xp_cmdshell`),
	regexp.MustCompile(`(?i)\|\|\s*'`),
}

var requiredClauses = []struct {
	prefix *regexp.Regexp
	clause *regexp.Regexp
	reason string
}{
	{
		prefix: regexp.MustCompile(`(?i)^\s*alter\s+table`),
		clause: regexp.MustCompile(`(?i)\b(add|drop|alter|rename)\b`),
		reason: "ALTER TABLE without an ADD/DROP/ALTER/RENAME clause",
	},
	{
		prefix: regexp.MustCompile(`(?i)^\s*create\s+(unique\s+)?index`),
		clause: regexp.MustCompile(`(?i)\bon\b`),
		reason: "CREATE INDEX without an ON clause",
	},
	{
		prefix: regexp.MustCompile(`(?i)^\s*insert\s+into`),
		clause: regexp.MustCompile(`(?i)\b(values|select)\b`),
		reason: "INSERT without VALUES or SELECT",
	},
}

// checkStatements returns heuristic SQL errors and security-pattern
// matches separately so the validator can apply distinct deductions.
func checkStatements(statements []string) (sqlErrs, securityErrs []string) {
	for i, stmt := range statements {
		trimmed := strings.TrimSpace(stmt)
		if trimmed == "" {
			sqlErrs = append(sqlErrs, fmt.Sprintf("statement %d is empty", i+1))
			continue
		}
		if !balanced(trimmed) {
			sqlErrs = append(sqlErrs, fmt.Sprintf("statement %d has unbalanced parentheses or quotes", i+1))
		}
		for _, rc := range requiredClauses {
			loc := rc.prefix.FindStringIndex(trimmed)
			if loc == nil {
				continue
			}
			// search only past the prefix, or ALTER TABLE matches itself
			if !rc.clause.MatchString(trimmed[loc[1]:]) {
				sqlErrs = append(sqlErrs, fmt.Sprintf("statement %d: %s", i+1, rc.reason))
			}
		}
		for _, p := range securityPatterns {
			if p.MatchString(trimmed) {
				securityErrs = append(securityErrs, fmt.Sprintf("statement %d matches a suspicious pattern (%s)", i+1, p.String()))
				break
			}
		}
	}
	return sqlErrs, securityErrs
}

func balanced(stmt string) bool {
	depth := 0
	inString := false
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		if inString {
			if c == '\'' {
				// doubled quote inside a string literal is an escape
				if i+1 < len(stmt) && stmt[i+1] == '\'' {
					i++
					continue
				}
				inString = false
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0 && !inString
}
