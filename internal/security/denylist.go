package security

import (
	"strings"
	"unicode"
)

// DenyList matches lower-case substrings. Entries listed in words must not be
// surrounded by letters, so "ida" hits "ida64.exe" but not "holidays".
type DenyList struct {
	entries []string
	words   map[string]bool
}

// NewDenyList builds a list; words is the subset of entries matched as
// whole words.
func NewDenyList(entries []string, words ...string) DenyList {
	d := DenyList{words: make(map[string]bool, len(words))}
	for _, e := range entries {
		d.entries = append(d.entries, strings.ToLower(e))
	}
	for _, w := range words {
		d.words[strings.ToLower(w)] = true
	}
	return d
}

// Match returns the first entry found in s.
func (d DenyList) Match(s string) (string, bool) {
	s = strings.ToLower(s)
	if s == "" {
		return "", false
	}
	for _, e := range d.entries {
		if d.words[e] {
			if containsWord(s, e) {
				return e, true
			}
			continue
		}
		if strings.Contains(s, e) {
			return e, true
		}
	}
	return "", false
}

// MatchAny returns the first entry found in any of values.
func (d DenyList) MatchAny(values ...string) (string, bool) {
	for _, v := range values {
		if e, ok := d.Match(v); ok {
			return e, true
		}
	}
	return "", false
}

func containsWord(s, word string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		if boundary(s, start-1) && boundary(s, end) {
			return true
		}
		i = start + 1
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	return !unicode.IsLetter(rune(s[i]))
}

// ProcessDenyList matches executable names and version-resource strings.
var ProcessDenyList = NewDenyList([]string{
	"cheatengine",
	"x64dbg",
	"x32dbg",
	"ollydbg",
	"ida",
	"idaq",
	"ghidra",
	"windbg",
	"immunitydebugger",
	"processhacker",
	"procexp",
	"frida",
	"gdb",
	"radare",
}, "ida", "idaq", "gdb")

// WindowDenyList matches top-level window titles.
var WindowDenyList = NewDenyList([]string{
	"cheat engine",
	"x64dbg",
	"ollydbg",
	"ida",
	"windbg",
	"immunity debugger",
	"process hacker",
	"process explorer",
	"frida",
	"ghidra",
}, "ida")

// ModuleDenyList matches modules loaded into our own process.
var ModuleDenyList = NewDenyList([]string{
	"dbghelp.dll",
	"dbgcore.dll",
	"frida",
	"procexp64.exe",
	"scylla",
})
