package journal

import (
	"fmt"

	"github.com/unixagent/unixagent/internal/protocol"
)

const shellCommandOverheadTokens = 10

func approxTokens(s string) int { return len(s) / 4 }

func entryTokenCost(e Entry) int {
	switch e.Type {
	case TypeShellCommand:
		return approxTokens(e.Command) + approxTokens(e.Output) + shellCommandOverheadTokens
	case TypeInstruction:
		return approxTokens(e.Text)
	case TypeResponse:
		cost := approxTokens(e.Thinking) + approxTokens(e.Text)
		for _, tu := range e.ToolUses {
			cost += approxTokens(tu.Command)
		}
		return cost
	case TypeToolResult, TypeBlocked:
		cost := 0
		for _, r := range e.Results {
			cost += approxTokens(r.Content)
		}
		return cost
	case TypeCheckpoint:
		return approxTokens(e.Summary)
	case TypeSystemPrompt:
		return approxTokens(e.Text)
	default:
		return 0
	}
}

// BuildConversation rebuilds a token-budgeted conversation from journal
// history: it finds the last checkpoint (or the start of history if
// none), walks backward accumulating cost while staying under budget but
// always including at least the last entry, then converts the included
// window to role-alternating messages.
func BuildConversation(entries []Entry, budgetTokens int) []protocol.Message {
	start := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Type == TypeCheckpoint {
			start = i
			break
		}
	}

	window := entries[start:]
	if len(window) == 0 {
		return nil
	}

	included := selectWithinBudget(window, budgetTokens)
	msgs := convertEntries(included)
	msgs = mergeConsecutiveUsers(msgs)

	if len(msgs) > 0 && msgs[0].Role == protocol.RoleAssistant {
		msgs = append([]protocol.Message{{Role: protocol.RoleUser, Content: "[session continues]"}}, msgs...)
	}
	return msgs
}

func selectWithinBudget(window []Entry, budget int) []Entry {
	n := len(window)
	included := make([]bool, n)
	included[n-1] = true
	running := entryTokenCost(window[n-1])

	for i := n - 2; i >= 0; i-- {
		cost := entryTokenCost(window[i])
		if running+cost <= budget {
			included[i] = true
			running += cost
		} else {
			break
		}
	}

	var out []Entry
	for i := 0; i < n; i++ {
		if included[i] {
			out = append(out, window[i])
		}
	}
	return out
}

func convertEntries(entries []Entry) []protocol.Message {
	var msgs []protocol.Message
	for _, e := range entries {
		switch e.Type {
		case TypeShellCommand:
			exit := "unknown exit"
			if e.ExitCode != nil {
				exit = fmt.Sprintf("%d", *e.ExitCode)
			}
			msgs = append(msgs, protocol.Message{
				Role:    protocol.RoleUser,
				Content: fmt.Sprintf("[ran: %s -> exit %s]", e.Command, exit),
			})
		case TypeInstruction:
			msgs = append(msgs, protocol.Message{Role: protocol.RoleUser, Content: e.Text})
		case TypeResponse:
			msgs = append(msgs, protocol.Message{Role: protocol.RoleAssistant, Content: e.Text, ToolUses: e.ToolUses})
		case TypeToolResult, TypeBlocked:
			msgs = append(msgs, protocol.Message{Role: protocol.RoleUser, ToolResults: e.Results})
		case TypeCheckpoint:
			msgs = append(msgs, protocol.Message{
				Role:    protocol.RoleUser,
				Content: fmt.Sprintf("Previous context summary: %s", e.Summary),
			})
		}
	}
	return msgs
}

func mergeConsecutiveUsers(msgs []protocol.Message) []protocol.Message {
	var out []protocol.Message
	for _, m := range msgs {
		if len(out) > 0 && out[len(out)-1].Role == protocol.RoleUser && m.Role == protocol.RoleUser {
			last := &out[len(out)-1]
			if m.Content != "" {
				if last.Content != "" {
					last.Content += "\n" + m.Content
				} else {
					last.Content = m.Content
				}
			}
			last.ToolResults = append(last.ToolResults, m.ToolResults...)
			continue
		}
		out = append(out, m)
	}
	return out
}
