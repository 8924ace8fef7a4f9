package renderer

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/unixagent/unixagent/internal/protocol"
	"github.com/unixagent/unixagent/internal/risk"
)

func withNoColor(t *testing.T, val string) {
	t.Helper()
	old, had := os.LookupEnv("NO_COLOR")
	if val == "" {
		os.Unsetenv("NO_COLOR")
	} else {
		os.Setenv("NO_COLOR", val)
	}
	t.Cleanup(func() {
		if had {
			os.Setenv("NO_COLOR", old)
		} else {
			os.Unsetenv("NO_COLOR")
		}
	})
}

func TestAssistantTextConvertsNewlinesToCRLF(t *testing.T) {
	withNoColor(t, "1")
	var buf bytes.Buffer
	r := New(&buf, 80)
	r.AssistantText("line one\nline two")
	if !strings.Contains(buf.String(), "line one\r\nline two") {
		t.Fatalf("expected CRLF-converted output, got %q", buf.String())
	}
}

func TestProposedCommandNoColorIncludesRiskLabel(t *testing.T) {
	withNoColor(t, "1")
	var buf bytes.Buffer
	r := New(&buf, 80)
	r.ProposedCommand("rm -rf /tmp/scratch", risk.Destructive)
	out := buf.String()
	if !strings.Contains(out, "destructive") || !strings.Contains(out, "rm -rf /tmp/scratch") {
		t.Fatalf("expected risk level and command in output, got %q", out)
	}
}

func TestDeniedNoticeIncludesReason(t *testing.T) {
	withNoColor(t, "1")
	var buf bytes.Buffer
	r := New(&buf, 80)
	r.DeniedNotice("rm -rf /", "matches a denied filesystem pattern")
	out := buf.String()
	if !strings.Contains(out, "rm -rf /") || !strings.Contains(out, "matches a denied filesystem pattern") {
		t.Fatalf("expected command and reason in output, got %q", out)
	}
}

func TestApprovalPromptIncludesCommandAndRisk(t *testing.T) {
	withNoColor(t, "1")
	var buf bytes.Buffer
	r := New(&buf, 80)
	r.ApprovalPrompt("git push --force", risk.Destructive, "force-push can rewrite shared history")
	out := buf.String()
	if !strings.Contains(out, "git push --force") {
		t.Fatalf("expected command in prompt, got %q", out)
	}
	if !strings.Contains(out, "force-push can rewrite shared history") {
		t.Fatalf("expected judge reasoning in prompt, got %q", out)
	}
}

func TestApprovalPromptOmitsJudgeLineWhenEmpty(t *testing.T) {
	withNoColor(t, "1")
	var buf bytes.Buffer
	r := New(&buf, 80)
	r.ApprovalPrompt("ls", risk.ReadOnly, "")
	if strings.Contains(buf.String(), "judge:") {
		t.Fatalf("expected no judge line when reasoning is empty, got %q", buf.String())
	}
}

func TestFooterScalesLargeTokenCounts(t *testing.T) {
	withNoColor(t, "1")
	var buf bytes.Buffer
	r := New(&buf, 80)
	r.Footer(0, 1500, 2300)
	out := buf.String()
	if !strings.Contains(out, "1.5k") || !strings.Contains(out, "2.3k") {
		t.Fatalf("expected scaled token counts, got %q", out)
	}
}

func TestFooterLeavesSmallCountsUnscaled(t *testing.T) {
	withNoColor(t, "1")
	var buf bytes.Buffer
	r := New(&buf, 80)
	r.Footer(0, 42, 7)
	out := buf.String()
	if !strings.Contains(out, "42↑") || !strings.Contains(out, "7↓") {
		t.Fatalf("expected unscaled counts, got %q", out)
	}
}

func TestFooterWithCommandsIncludesCount(t *testing.T) {
	withNoColor(t, "1")
	var buf bytes.Buffer
	r := New(&buf, 80)
	r.FooterWithCommands(0, 42, 7, 3)
	out := buf.String()
	if !strings.Contains(out, "3 cmds") {
		t.Fatalf("expected command count, got %q", out)
	}
}

func TestPrivilegedApprovalPromptListsEachCommand(t *testing.T) {
	withNoColor(t, "1")
	var buf bytes.Buffer
	r := New(&buf, 80)
	r.PrivilegedApprovalPrompt([]string{"sudo apt install curl"}, []risk.Level{risk.Privileged})
	out := buf.String()
	if !strings.Contains(out, "sudo apt install curl") {
		t.Fatalf("expected command listed, got %q", out)
	}
	if !strings.Contains(out, "yes") {
		t.Fatalf("expected typed-yes instruction, got %q", out)
	}
}

func TestClearSpinnerWritesCarriageReturn(t *testing.T) {
	withNoColor(t, "1")
	var buf bytes.Buffer
	r := New(&buf, 80)
	r.ClearSpinner()
	if !strings.HasPrefix(buf.String(), "\r") {
		t.Fatalf("expected spinner clear to start with carriage return, got %q", buf.String())
	}
}

func TestErrorLinePlainErrorOmitsKind(t *testing.T) {
	withNoColor(t, "1")
	var buf bytes.Buffer
	r := New(&buf, 80)
	r.ErrorLine("backend error", errors.New("connection reset"))
	out := buf.String()
	if !strings.Contains(out, "backend error: connection reset") {
		t.Fatalf("expected plain error line, got %q", out)
	}
	if strings.Contains(out, "(") {
		t.Fatalf("expected no kind annotation for a plain error, got %q", out)
	}
}

func TestErrorLineProtocolErrorIncludesKind(t *testing.T) {
	withNoColor(t, "1")
	var buf bytes.Buffer
	r := New(&buf, 80)
	r.ErrorLine("stream error", protocol.Wrap(protocol.KindTransport, errors.New("dial tcp: timeout")))
	out := buf.String()
	if !strings.Contains(out, "stream error (transport): transport: dial tcp: timeout") {
		t.Fatalf("expected kind-annotated error line, got %q", out)
	}
}

func TestScaleCountBoundary(t *testing.T) {
	if got := scaleCount(999); got != "999" {
		t.Fatalf("expected unscaled below 1000, got %q", got)
	}
	if got := scaleCount(1000); got != "1.0k" {
		t.Fatalf("expected scaled at 1000, got %q", got)
	}
}
