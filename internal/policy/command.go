package policy

import (
	"regexp"
	"strings"
)

// builtinBlockedCommands are substrings that refuse a command outright,
// regardless of surrounding text. Config may extend but never shrink this set.
var builtinBlockedCommands = []string{
	"rm -rf /",
	"rm -fr /",
	"rm -rf ~",
	"rm -rf *",
	"sudo ",
	"mkfs",
	"dd if=",
	"> /dev/sd",
	":(){ :|:& };:",
	":(){:|:&};:",
	"chmod -r 777",
	"chmod 777 /",
	"chown -r ",
	"--no-preserve-root",
	"shutdown",
	"reboot",
	"halt -f",
}

// builtinSafeCommands are read-only informational commands classified low
// risk with no approval. A command qualifies only when its full text matches
// an entry or starts with entry plus a space, and it carries no shell
// control characters.
var builtinSafeCommands = []string{
	"ls",
	"pwd",
	"whoami",
	"date",
	"uptime",
	"uname",
	"df",
	"du",
	"ps",
	"which",
	"cat",
	"head",
	"tail",
	"wc",
	"grep",
	"find",
	"echo",
	"git status",
	"git log",
	"git diff",
	"git branch",
	"git show",
}

var injectionPatterns = []*regexp.Regexp{
	// command substitution and backticks
	regexp.MustCompile(`\$\(`),
	regexp.MustCompile("`"),
	// piping into a shell or interpreter
	regexp.MustCompile(`\|\s*(ba|z|da|fi|k)?sh\b`),
	regexp.MustCompile(`\|\s*(python[0-9.]*|perl|ruby|node)\b`),
}

var shellControlChars = regexp.MustCompile("[;&|<>$`]")

// CommandChecker classifies shell command lines.
type CommandChecker struct {
	blocked []string
	safe    []string
}

// NewCommandChecker merges the built-in deny and safe lists with configured
// additions. Entries are matched case-insensitively.
func NewCommandChecker(extraBlocked, extraSafe []string) *CommandChecker {
	checker := &CommandChecker{
		blocked: append([]string(nil), builtinBlockedCommands...),
		safe:    append([]string(nil), builtinSafeCommands...),
	}
	for _, entry := range extraBlocked {
		if trimmed := strings.ToLower(strings.TrimSpace(entry)); trimmed != "" {
			checker.blocked = append(checker.blocked, trimmed)
		}
	}
	for _, entry := range extraSafe {
		if trimmed := strings.ToLower(strings.TrimSpace(entry)); trimmed != "" {
			checker.safe = append(checker.safe, trimmed)
		}
	}
	return checker
}

// Classify returns blocked, low, or medium for a command line, with the
// reason for the classification.
func (c *CommandChecker) Classify(command string) (RiskLevel, string) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return RiskBlocked, "empty command"
	}
	lowered := strings.ToLower(trimmed)

	for _, deny := range c.blocked {
		if strings.Contains(lowered, deny) {
			return RiskBlocked, "command contains a blocked pattern"
		}
	}
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(trimmed) {
			return RiskBlocked, "command contains a shell injection pattern"
		}
	}

	if !shellControlChars.MatchString(trimmed) {
		for _, safe := range c.safe {
			if lowered == safe || strings.HasPrefix(lowered, safe+" ") {
				return RiskLow, "read-only command"
			}
		}
	}

	return RiskMedium, "command requires approval"
}
