package app

import (
	"strings"
	"unicode"
)

// Canonical violation tags.
const (
	TagBlur             = "blur"
	TagVisibilityHidden = "visibility_hidden"
	TagCopy             = "copy"
	TagCut              = "cut"
	TagPaste            = "paste"
	TagPrint            = "print"
	TagPrintScreen      = "print_screen"
	TagFullscreenExit   = "fullscreen_exit"
	TagUnknown          = "unknown"
)

// penalizingTags consume a life. Everything else is history only.
var penalizingTags = map[string]struct{}{
	TagBlur:             {},
	TagVisibilityHidden: {},
	TagCopy:             {},
	TagCut:              {},
	TagPaste:            {},
	TagPrint:            {},
	TagPrintScreen:      {},
	TagFullscreenExit:   {},
}

var violationAliases = map[string]string{
	"visibilitychange":        TagVisibilityHidden,
	"visibility_change":       TagVisibilityHidden,
	"visibilitychange_hidden": TagVisibilityHidden,
	"tab_hidden":              TagVisibilityHidden,
	"hidden":                  TagVisibilityHidden,
	"printscreen":             TagPrintScreen,
	"prtsc":                   TagPrintScreen,
	"prt_sc":                  TagPrintScreen,
	"print_scr":               TagPrintScreen,
	"window_blur":             TagBlur,
	"focus_lost":              TagBlur,
	"fs_exit":                 TagFullscreenExit,
}

// NormalizeViolation maps a client-reported violation type to its canonical tag.
func NormalizeViolation(raw string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	tag := b.String()
	if tag == "" {
		return TagUnknown
	}
	if alias, ok := violationAliases[tag]; ok {
		return alias
	}
	compact := strings.ReplaceAll(tag, "_", "")
	if strings.Contains(compact, "fullscreen") && !strings.Contains(compact, "enter") {
		return TagFullscreenExit
	}
	return tag
}

// IsPenalizing reports whether a normalized tag costs a life.
func IsPenalizing(tag string) bool {
	_, ok := penalizingTags[tag]
	return ok
}
