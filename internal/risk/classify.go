// Package risk implements the deterministic command-risk classifier: a
// pure function from a shell command string to a RiskLevel, used to gate
// auto-approval, judge dispatch, and the interactive approval UI.
package risk

import "strings"

// Level is a total order over command risk, from ReadOnly to Denied.
type Level int

const (
	ReadOnly Level = iota
	BuildTest
	Write
	Destructive
	Network
	Privileged
	Denied
)

func (l Level) String() string {
	switch l {
	case ReadOnly:
		return "read-only"
	case BuildTest:
		return "build/test"
	case Write:
		return "write"
	case Destructive:
		return "destructive"
	case Network:
		return "network"
	case Privileged:
		return "privileged"
	case Denied:
		return "DENIED"
	default:
		return "unknown"
	}
}

// Max returns the greater of two levels, used to fold a batch to its
// single worst risk.
func Max(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}

// ParsedCommand is the tokenized form of a shell command: a binary plus
// its arguments, with recognized prefix wrappers stripped.
type ParsedCommand struct {
	Binary string
	Args   []string
}

var prefixWrappers = map[string]bool{
	"env": true, "nice": true, "time": true, "command": true, "builtin": true,
}

// Tokenize splits a command string honoring single/double quotes and
// backslash escapes.
func Tokenize(cmd string) []string {
	var tokens []string
	var cur strings.Builder
	haveTok := false
	inSingle, inDouble := false, false

	flush := func() {
		if haveTok {
			tokens = append(tokens, cur.String())
			cur.Reset()
			haveTok = false
		}
	}

	runes := []rune(cmd)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inSingle:
			if c == '\'' {
				inSingle = false
			} else {
				cur.WriteRune(c)
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			} else if c == '\\' && i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\\') {
				cur.WriteRune(runes[i+1])
				i++
			} else {
				cur.WriteRune(c)
			}
		case c == '\'':
			inSingle = true
			haveTok = true
		case c == '"':
			inDouble = true
			haveTok = true
		case c == '\\' && i+1 < len(runes):
			cur.WriteRune(runes[i+1])
			haveTok = true
			i++
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteRune(c)
			haveTok = true
		}
	}
	flush()
	return tokens
}

// ParseCommand tokenizes cmd and strips recognized prefix wrappers,
// including leading KEY=VALUE tokens when the wrapper is "env" and
// leading option tokens (plus the value of "-n") when it is "nice".
func ParseCommand(cmd string) ParsedCommand {
	tokens := Tokenize(cmd)
	for len(tokens) > 0 && prefixWrappers[tokens[0]] {
		wrapper := tokens[0]
		tokens = tokens[1:]
		if wrapper == "nice" {
			for len(tokens) > 0 && strings.HasPrefix(tokens[0], "-") {
				if tokens[0] == "-n" && len(tokens) > 1 {
					tokens = tokens[1:]
				}
				tokens = tokens[1:]
			}
		}
		if wrapper == "env" {
			for len(tokens) > 0 && isAssignment(tokens[0]) {
				tokens = tokens[1:]
			}
		}
	}
	if len(tokens) == 0 {
		return ParsedCommand{}
	}
	return ParsedCommand{Binary: baseName(tokens[0]), Args: tokens[1:]}
}

func isAssignment(tok string) bool {
	eq := strings.IndexByte(tok, '=')
	if eq <= 0 {
		return false
	}
	key := tok[:eq]
	for i, r := range key {
		if i == 0 && !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
		if i > 0 && !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Classify is the pure function from a command string to its risk level.
func Classify(cmd string) Level {
	trimmed := strings.TrimSpace(cmd)
	if trimmed == "" {
		return ReadOnly
	}
	if isDenied(trimmed) {
		return Denied
	}

	pc := ParseCommand(trimmed)
	if pc.Binary == "" {
		return ReadOnly
	}

	if isPrivileged(pc) {
		return Privileged
	}
	if isNetwork(pc) {
		return Network
	}
	if isDestructive(pc) {
		return Destructive
	}
	if isWrite(pc) {
		return Write
	}
	if isBuildTest(pc) {
		return BuildTest
	}
	if isReadOnly(pc) {
		return ReadOnly
	}
	return Write
}

var denyPatterns = []string{
	"/etc/shadow", "/etc/passwd", "rm -rf /", ":(){ :|:& };:", ":(){:|:&};:",
}

func isDenied(cmd string) bool {
	lower := strings.ToLower(cmd)
	for _, pat := range denyPatterns {
		if strings.Contains(lower, strings.ToLower(pat)) {
			return true
		}
	}
	if ddOfDev(lower) {
		return true
	}
	if isForkBomb(cmd) {
		return true
	}
	if scriptingSocketShell(lower) {
		return true
	}
	if base64OfCredentialDir(lower) {
		return true
	}
	if curlWgetDataFile(lower) {
		return true
	}
	if archiveSensitiveDir(lower) {
		return true
	}
	return false
}

func ddOfDev(lower string) bool {
	return strings.Contains(lower, "dd ") && strings.Contains(lower, "of=/dev/")
}

func isForkBomb(cmd string) bool {
	stripped := strings.ReplaceAll(strings.ReplaceAll(cmd, " ", ""), "\t", "")
	return strings.Contains(stripped, ":(){:|:&};:") || strings.Contains(stripped, ":(){:|:&};:;")
}

func scriptingSocketShell(lower string) bool {
	mentionsInterpreter := strings.Contains(lower, "python") || strings.Contains(lower, "perl") || strings.Contains(lower, "ruby")
	if !mentionsInterpreter {
		return false
	}
	mentionsSocket := strings.Contains(lower, "socket.socket") || strings.Contains(lower, "socket(") || strings.Contains(lower, "io.socket")
	mentionsShell := strings.Contains(lower, "/bin/sh") || strings.Contains(lower, "/bin/bash")
	return mentionsSocket && mentionsShell
}

var credentialDirs = []string{".ssh", ".aws", ".gnupg", ".kube", ".docker/config.json"}

func base64OfCredentialDir(lower string) bool {
	if !strings.Contains(lower, "base64") {
		return false
	}
	for _, dir := range credentialDirs {
		if strings.Contains(lower, dir) {
			return true
		}
	}
	return false
}

func curlWgetDataFile(lower string) bool {
	isDownloader := strings.Contains(lower, "curl ") || strings.Contains(lower, "wget ")
	if !isDownloader {
		return false
	}
	return strings.Contains(lower, "-d @") || strings.Contains(lower, "--data @") || strings.Contains(lower, "--data-binary @")
}

var sensitiveDirs = []string{"$home/.ssh", "~/.ssh", "/.ssh", "$home/.aws", "~/.aws", "/.aws", "/etc"}

func archiveSensitiveDir(lower string) bool {
	isArchiver := strings.Contains(lower, "tar ") || strings.Contains(lower, "zip ") || strings.Contains(lower, "cp ") || strings.Contains(lower, "rsync ")
	if !isArchiver {
		return false
	}
	for _, dir := range sensitiveDirs {
		if strings.Contains(lower, dir) {
			return true
		}
	}
	return false
}

var privilegedBins = map[string]bool{
	"sudo": true, "su": true, "doas": true, "pkexec": true, "gksudo": true, "kdesudo": true,
}

func isPrivileged(pc ParsedCommand) bool {
	return privilegedBins[pc.Binary]
}

var networkBins = map[string]bool{
	"curl": true, "wget": true, "ssh": true, "scp": true, "rsync": true, "nc": true, "ncat": true, "telnet": true,
}

func isNetwork(pc ParsedCommand) bool {
	if networkBins[pc.Binary] {
		return true
	}
	if pc.Binary == "git" && len(pc.Args) > 0 {
		switch pc.Args[0] {
		case "push", "pull", "fetch", "clone", "remote":
			return true
		}
	}
	if (pc.Binary == "npm" || pc.Binary == "yarn" || pc.Binary == "pnpm" || pc.Binary == "cargo") && argHas(pc.Args, "publish") {
		return true
	}
	if pc.Binary == "docker" || pc.Binary == "podman" {
		if argHas(pc.Args, "pull") || argHas(pc.Args, "push") || argHas(pc.Args, "login") {
			return true
		}
	}
	return false
}

var destructiveBins = map[string]bool{
	"rm": true, "rmdir": true, "shred": true, "unlink": true, "chmod": true, "chown": true, "chgrp": true,
}

func isDestructive(pc ParsedCommand) bool {
	if destructiveBins[pc.Binary] {
		return true
	}
	if pc.Binary == "git" {
		if len(pc.Args) > 0 {
			switch pc.Args[0] {
			case "reset", "clean", "push":
				return true
			}
		}
		if argHas(pc.Args, "--force") || argHas(pc.Args, "-f") {
			return true
		}
	}
	return false
}

var writeBins = map[string]bool{
	"mkdir": true, "touch": true, "cp": true, "mv": true, "ln": true, "tee": true, "patch": true, "truncate": true,
}

func isWrite(pc ParsedCommand) bool {
	if writeBins[pc.Binary] {
		return true
	}
	if pc.Binary == "sed" && argHas(pc.Args, "-i") {
		return true
	}
	if pc.Binary == "git" && len(pc.Args) > 0 {
		switch pc.Args[0] {
		case "add", "commit", "merge", "checkout", "branch", "tag", "rebase", "stash", "cherry-pick", "apply":
			return true
		}
	}
	return false
}

var buildTestBins = map[string]bool{
	"make": true, "cmake": true, "ninja": true, "meson": true,
	"gcc": true, "g++": true, "clang": true, "clang++": true, "rustc": true, "javac": true, "tsc": true,
}

func isBuildTest(pc ParsedCommand) bool {
	if buildTestBins[pc.Binary] {
		return true
	}
	switch pc.Binary {
	case "go":
		return argHasAny(pc.Args, "build", "test", "vet", "install")
	case "cargo":
		return argHasAny(pc.Args, "build", "test", "check", "bench")
	case "npm", "yarn", "pnpm":
		return argHasAny(pc.Args, "run", "build", "test", "install", "ci")
	case "pytest", "jest", "mocha", "go-test":
		return true
	}
	return false
}

var readOnlyBins = map[string]bool{
	"ls": true, "cat": true, "less": true, "more": true, "head": true, "tail": true,
	"grep": true, "egrep": true, "fgrep": true, "rg": true, "pwd": true, "echo": true,
	"which": true, "whoami": true, "id": true, "uname": true, "date": true, "env": true,
	"printenv": true, "ps": true, "top": true, "df": true, "du": true, "file": true,
	"stat": true, "wc": true, "diff": true, "git-log": true, "man": true, "type": true,
	"history": true, "jobs": true, "uptime": true, "hostname": true,
}

func isReadOnly(pc ParsedCommand) bool {
	if pc.Binary == "find" {
		return !argHasAny(pc.Args, "-exec", "-execdir", "-delete")
	}
	if pc.Binary == "sed" {
		return !argHas(pc.Args, "-i")
	}
	if pc.Binary == "git" {
		if len(pc.Args) == 0 {
			return true
		}
		switch pc.Args[0] {
		case "status", "log", "diff", "show", "branch", "remote", "blame", "describe", "shortlog", "reflog":
			// "branch"/"remote" with no further args are read-only listings;
			// mutation forms are caught by isWrite/isDestructive/isNetwork
			// before we ever reach here.
			return true
		}
		return false
	}
	return readOnlyBins[pc.Binary]
}

func argHas(args []string, target string) bool {
	for _, a := range args {
		if a == target {
			return true
		}
	}
	return false
}

func argHasAny(args []string, targets ...string) bool {
	for _, a := range args {
		for _, t := range targets {
			if a == t {
				return true
			}
		}
	}
	return false
}

var chainSeparators = []string{"||", "&&", "|", ";"}

// Segments splits cmd on |, ||, &&, ; outside of quotes.
func Segments(cmd string) []string {
	var segs []string
	var cur strings.Builder
	inSingle, inDouble := false, false
	runes := []rune(cmd)

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			segs = append(segs, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inSingle:
			cur.WriteRune(c)
			if c == '\'' {
				inSingle = false
			}
		case inDouble:
			cur.WriteRune(c)
			if c == '"' {
				inDouble = false
			}
		case c == '\'':
			inSingle = true
			cur.WriteRune(c)
		case c == '"':
			inDouble = true
			cur.WriteRune(c)
		case c == '|' && i+1 < len(runes) && runes[i+1] == '|':
			flush()
			i++
		case c == '&' && i+1 < len(runes) && runes[i+1] == '&':
			flush()
			i++
		case c == '|' || c == ';':
			flush()
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	return segs
}

var downloaders = map[string]bool{"curl": true, "wget": true, "http": true}
var shells = map[string]bool{"bash": true, "sh": true, "zsh": true, "fish": true, "dash": true, "ksh": true}

// Analyze splits cmd into its pipe/compound segments and classifies the
// whole chain: a [downloader, shell] adjacency anywhere in the chain
// denies the entire command; otherwise the result is the max risk of its
// segments.
func Analyze(cmd string) Level {
	segs := Segments(cmd)
	if len(segs) <= 1 {
		return Classify(cmd)
	}

	for i := 0; i+1 < len(segs); i++ {
		left := ParseCommand(segs[i])
		right := ParseCommand(segs[i+1])
		if downloaders[left.Binary] && shells[right.Binary] {
			return Denied
		}
	}

	level := ReadOnly
	for _, seg := range segs {
		level = Max(level, Classify(seg))
	}
	return level
}

// Verdict is the result of argument-safety validation.
type Verdict struct {
	Dangerous bool
	Reason    string
}

// Validate flags high-severity argument patterns even when the binary
// alone would not be denied.
func Validate(cmd string) Verdict {
	pc := ParseCommand(cmd)

	if pc.Binary == "git" && argHas(pc.Args, "-c") {
		return Verdict{true, "git -c can override repository-level safety config"}
	}
	if pc.Binary == "tar" {
		for _, a := range pc.Args {
			if strings.HasPrefix(a, "--checkpoint-action") {
				return Verdict{true, "tar --checkpoint-action can execute arbitrary commands during extraction"}
			}
		}
	}
	if pc.Binary == "curl" && (argHas(pc.Args, "-F") || argHas(pc.Args, "--form")) {
		return Verdict{true, "curl -F/--form can exfiltrate local file contents as multipart form data"}
	}
	if pc.Binary == "find" && argHasAny(pc.Args, "-exec", "-execdir", "-delete") {
		return Verdict{true, "find -exec/-execdir/-delete executes or removes matched files"}
	}
	if pc.Binary == "rsync" && argHasAny(pc.Args, "-e", "--rsh") {
		return Verdict{true, "rsync -e/--rsh substitutes the remote-shell command"}
	}
	if pc.Binary == "xargs" && !hasExplicitXargsCommand(pc.Args) {
		return Verdict{true, "xargs with no explicit command runs stdin lines as commands"}
	}
	return Verdict{}
}

func hasExplicitXargsCommand(args []string) bool {
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			return true
		}
	}
	return false
}
