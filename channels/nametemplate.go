package channels

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultTemplate names children when neither the parent nor the config sets one.
	DefaultTemplate = "{user_displayname} 的頻道"
	// MaxNameLength is the platform's channel name limit, in characters.
	MaxNameLength    = 100
	truncationMarker = "..."
)

// Variables a template may reference.
const (
	VarUser        = "user"
	VarDisplayName = "user_displayname"
	VarNumber      = "number"
	VarICAO        = "icao"
	VarGame        = "game"
)

var knownVariables = map[string]bool{
	VarUser:        true,
	VarDisplayName: true,
	VarNumber:      true,
	VarICAO:        true,
	VarGame:        true,
}

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var icao = [26]string{"Alfa", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf", "Hotel", "India", "Juliett", "Kilo", "Lima", "Mike", "November", "Oscar", "Papa", "Quebec", "Romeo", "Sierra", "Tango", "Uniform", "Victor", "Whiskey", "X-ray", "Yankee", "Zulu"}

// FormatTemplate renders a channel name for member. Extra variables override the
// member ones; placeholders without a value are kept as written. The result never
// exceeds MaxNameLength characters.
func FormatTemplate(template string, member MemberInfo, extra map[string]string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}

	display := member.DisplayName
	if display == "" {
		display = member.Username
	}
	vars := map[string]string{
		VarUser:        member.Username,
		VarDisplayName: display,
	}
	for k, v := range extra {
		vars[k] = v
	}

	name := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
	return truncateName(name)
}

func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= MaxNameLength {
		return name
	}
	keep := MaxNameLength - len([]rune(truncationMarker))
	return string(runes[:keep]) + truncationMarker
}

// TemplateVariables lists the placeholder names used by template, in order.
func TemplateVariables(template string) []string {
	vars := []string{}
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		vars = append(vars, m[1])
	}
	return vars
}

// UnknownVariables lists placeholders the bot never fills. They render literally.
func UnknownVariables(template string) []string {
	var unknown []string
	seen := map[string]bool{}
	for _, v := range TemplateVariables(template) {
		if !knownVariables[v] && !seen[v] {
			unknown = append(unknown, v)
			seen[v] = true
		}
	}
	return unknown
}

func usesVariable(template, name string) bool {
	for _, v := range TemplateVariables(template) {
		if v == name {
			return true
		}
	}
	return false
}

// rankVariables fills number and icao for the rank-th child (1 based).
func rankVariables(rank int) map[string]string {
	vars := map[string]string{VarNumber: strconv.Itoa(rank)}
	if rank > 0 {
		vars[VarICAO] = icao[(rank-1)%len(icao)]
	}
	return vars
}
