package executor

import (
	"regexp"
	"strings"
)

// RiskLevel is how `osram run` treats a command
type RiskLevel int

const (
	// Safe commands are read-only and run without asking
	Safe RiskLevel = iota
	// NeedsConfirm commands may modify state and run after confirmation
	NeedsConfirm
	// Dangerous commands are refused unless --allow-dangerous is given
	Dangerous
)

func (r RiskLevel) String() string {
	switch r {
	case Safe:
		return "safe"
	case NeedsConfirm:
		return "needs confirmation"
	case Dangerous:
		return "dangerous"
	default:
		return "unknown"
	}
}

// Classification is the verdict for one command line
type Classification struct {
	Level  RiskLevel
	Reason string
}

type rule struct {
	re     *regexp.Regexp
	reason string
}

// readOnlyCommands run without confirmation. curl and wget are absent
// because they can send data out or fetch scripts.
var readOnlyCommands = map[string]bool{
	"ls": true, "cat": true, "pwd": true, "echo": true, "head": true,
	"tail": true, "grep": true, "find": true, "which": true, "whoami": true,
	"date": true, "wc": true, "sort": true, "uniq": true, "diff": true,
	"env": true, "printenv": true, "df": true, "du": true, "ps": true,
	"tree": true, "file": true, "stat": true, "basename": true,
	"dirname": true, "realpath": true, "uname": true,
}

var readOnlyRules = []rule{
	{regexp.MustCompile(`^git\s+(status|log|diff|branch|show|remote|blame)\b`), "read-only git"},
	{regexp.MustCompile(`^npm\s+(list|ls|view|info|outdated)\b`), "read-only npm"},
	{regexp.MustCompile(`^pip3?\s+(list|show|freeze)\b`), "read-only pip"},
	{regexp.MustCompile(`^cargo\s+(tree|search|check)\b`), "read-only cargo"},
	{regexp.MustCompile(`^go\s+(list|version|env|vet)\b`), "read-only go"},
	{regexp.MustCompile(`^docker\s+(ps|images|inspect|logs)\b`), "read-only docker"},
}

var dangerousRules = []rule{
	{regexp.MustCompile(`rm\s+(-[a-zA-Z]*\s+)*/(\*|\s|$)`), "removes from the filesystem root"},
	{regexp.MustCompile(`rm\s+-[a-zA-Z]*[rf][a-zA-Z]*\s+[~$]`), "recursive remove of home or a variable"},
	{regexp.MustCompile(`\bsudo\b`), "runs as superuser"},
	{regexp.MustCompile(`\bsu\b`), "switches user"},
	{regexp.MustCompile(`\bdd\s+if=`), "raw disk copy"},
	{regexp.MustCompile(`\bmkfs`), "formats a filesystem"},
	{regexp.MustCompile(`:\(\)\s*\{`), "fork bomb"},
	{regexp.MustCompile(`(curl|wget).*\|\s*(sh|bash|zsh)\b`), "pipes a download into a shell"},
	{regexp.MustCompile(`>\s*/dev/(sd|nvme|disk)`), "writes to a block device"},
	{regexp.MustCompile(`>\s*/etc/`), "writes under /etc"},
	{regexp.MustCompile(`chmod\s+(-R\s+)?777`), "world-writable permissions"},
	{regexp.MustCompile(`chown\s+.*-R\s+`), "recursive ownership change"},
	{regexp.MustCompile(`\b(eval|exec|source)\b`), "executes arbitrary input"},
	{regexp.MustCompile(`\|.*base64\s+(-d|--decode)`), "decodes base64 in a pipeline"},
	{regexp.MustCompile(`\b(python3?|perl|ruby)\s+.*-(c|e)\b`), "inline interpreter code"},
}

// chaining operators can smuggle a second command past the first-word check
var chaining = regexp.MustCompile(`[;&|` + "`" + `]|\$\(`)

// ClassifyCommand decides how risky a shell command line is. Dangerous
// patterns win over everything; chained commands always need confirmation.
func ClassifyCommand(cmd string) Classification {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return Classification{Level: Dangerous, Reason: "empty command"}
	}

	for _, r := range dangerousRules {
		if r.re.MatchString(cmd) {
			return Classification{Level: Dangerous, Reason: r.reason}
		}
	}
	if chaining.MatchString(cmd) {
		return Classification{Level: NeedsConfirm, Reason: "chained or substituted commands"}
	}

	name := strings.Fields(cmd)[0]
	if readOnlyCommands[name] {
		return Classification{Level: Safe, Reason: "read-only " + name}
	}
	for _, r := range readOnlyRules {
		if r.re.MatchString(cmd) {
			return Classification{Level: Safe, Reason: r.reason}
		}
	}
	return Classification{Level: NeedsConfirm, Reason: "may modify state"}
}
