package app_test

import (
	"testing"

	"github.com/maluguiro/examen-proctor/internal/app"
)

func TestNormalizeViolation(t *testing.T) {
	cases := map[string]string{
		"blur":                  app.TagBlur,
		"  BLUR ":               app.TagBlur,
		"visibilitychange":      app.TagVisibilityHidden,
		"Visibility Hidden":     app.TagVisibilityHidden,
		"print-screen":          app.TagPrintScreen,
		"PrintScreen":           app.TagPrintScreen,
		"fullscreen-exit":       app.TagFullscreenExit,
		"exit_fullscreen":       app.TagFullscreenExit,
		"FullScreen Exited!!":   app.TagFullscreenExit,
		"full screen exit":      app.TagFullscreenExit,
		"fullscreen_enter":      "fullscreen_enter",
		"right--click":          "right_click",
		"":                      app.TagUnknown,
		"---":                   app.TagUnknown,
		"Ctrl+C / copy attempt": "ctrl_c_copy_attempt",
	}
	for raw, want := range cases {
		if got := app.NormalizeViolation(raw); got != want {
			t.Errorf("NormalizeViolation(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestIsPenalizing(t *testing.T) {
	for _, tag := range []string{"blur", "visibility_hidden", "copy", "cut", "paste", "print", "print_screen", "fullscreen_exit"} {
		if !app.IsPenalizing(tag) {
			t.Errorf("expected %q to cost a life", tag)
		}
	}
	for _, tag := range []string{"right_click", "devtools", "unknown", "fullscreen_enter"} {
		if app.IsPenalizing(tag) {
			t.Errorf("expected %q to be history only", tag)
		}
	}
}
