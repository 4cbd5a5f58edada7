package domain

import (
	"regexp"
	"strings"
)

type CommandKind int

const (
	KindNone CommandKind = iota
	KindQuery
	KindClear
	KindRevoke
	KindHelp
	KindDelta      // single signed amount, e.g. +100 or -50#退款
	KindExpression // operator-led compound expression, e.g. *2 or +(100+50)/2
)

// Command is the result of classifying one inbound message body.
// For KindDelta and KindExpression, Calculation holds the arithmetic part
// (without the #comment suffix) and Comment the trimmed comment, if any.
type Command struct {
	Kind        CommandKind
	Calculation string
	Comment     string
}

var exactCommands = map[string]CommandKind{
	"查账": KindQuery, "/查账": KindQuery,
	"清账": KindClear, "/清账": KindClear,
	"撤回": KindRevoke, "/撤回": KindRevoke,
	"帮助": KindHelp, "/帮助": KindHelp,
}

var (
	deltaPattern      = regexp.MustCompile(`^[+\-]\s*\d+(\.\d+)?(\s*#.*)?$`)
	whitespacePattern = regexp.MustCompile(`\s`)
	startsWithOp      = regexp.MustCompile(`^[+\-*/×÷]`)
	containsOp        = regexp.MustCompile(`[+\-*/×÷()]`)
	mathPattern       = regexp.MustCompile(`^[\d+\-*/×÷().,]+(#.*)?$`)
	complexPattern    = regexp.MustCompile(`[+\-*/×÷].*[+\-*/×÷]|[()]`)
)

// Classify maps a trimmed message body to a command, in priority order:
// exact command, single delta, compound expression, then none. Anything
// classified as none is ignored by the dispatcher without a reply.
func Classify(text string) Command {
	text = strings.TrimSpace(text)

	if kind, ok := exactCommands[text]; ok {
		return Command{Kind: kind}
	}

	if deltaPattern.MatchString(text) {
		calculation, comment := splitComment(text)
		return Command{Kind: KindDelta, Calculation: calculation, Comment: comment}
	}

	if isExpression(text) {
		calculation, comment := splitComment(text)
		return Command{Kind: KindExpression, Calculation: calculation, Comment: comment}
	}

	return Command{Kind: KindNone}
}

// isExpression requires an operator-led body that is made of digits,
// operators and parentheses, or that chains several operators. Plain
// numbers without a sign stay unclassified so that chat stays quiet.
func isExpression(text string) bool {
	clean := whitespacePattern.ReplaceAllString(text, "")
	if !startsWithOp.MatchString(clean) || !containsOp.MatchString(clean) {
		return false
	}
	return mathPattern.MatchString(clean) || complexPattern.MatchString(clean)
}

func splitComment(text string) (calculation, comment string) {
	parts := strings.SplitN(text, "#", 2)
	calculation = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		comment = strings.TrimSpace(parts[1])
	}
	return calculation, comment
}
