package ui

import (
	"bytes"
	"testing"
)

func TestConfigure_NonTerminalIsPlain(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf)

	for _, render := range []func(string) string{RenderPass, RenderWarn, RenderFail, RenderAccent, RenderMuted} {
		if got := render("ok"); got != "ok" {
			t.Errorf("render = %q, want plain text without a terminal", got)
		}
	}
	if IsTerminal(&buf) {
		t.Error("bytes.Buffer is not a terminal")
	}
}
