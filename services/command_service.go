package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"capital-bot/auth"
	"capital-bot/calc"
	"capital-bot/domain"
	"capital-bot/domain/event"
	"capital-bot/repositories"
)

// unauthorizedBodyLimit bounds the forensic excerpt kept for rejected
// attempts; the full body is never logged.
const unauthorizedBodyLimit = 50

const helpText = `🤖 资金管理机器人帮助

📋 可用命令:
• /查账 或 查账 - 查看当前余额和最近操作
• /清账 或 清账 - 清空所有数据和历史记录
• /撤回 或 撤回 - 撤回最近一次操作
• /帮助 或 帮助 - 显示此帮助信息

🔢 数学计算:
• 简单计算: +100, -50, *2, /3
• 带注释计算: +100#预付款, -50#退款, *2#翻倍
• 复合表达式: +1+2*3, *(100+50)/2, 等等
• 支持的符号: +、-、*、/、×、÷

💡 提示:
• 只有管理员可以使用这些命令
• 计算命令必须以符号开头
• 使用 # 添加备注说明
• 新群组初始余额为0，无需设置
• 其他消息（包括闲聊）机器人不会回应`

// CommandService classifies inbound text and orchestrates the ledger store,
// the evaluator and access control. It is state-free per invocation: every
// call re-reads the ledger through the repository.
type CommandService struct {
	log    *slog.Logger
	ledger *repositories.LedgerRepository
	admins *auth.AdminChecker
	events chan<- event.DomainEvent
	now    func() time.Time
}

func NewCommandService(
	log *slog.Logger,
	ledger *repositories.LedgerRepository,
	admins *auth.AdminChecker,
	events chan<- event.DomainEvent,
) *CommandService {
	return &CommandService{log: log, ledger: ledger, admins: admins, events: events, now: time.Now}
}

// Handle processes one inbound message and returns the reply text, or
// ok=false when the message must be answered with silence: unauthorized
// senders and non-command chatter never get a reply.
func (s *CommandService) Handle(_ context.Context, msg domain.InboundMessage) (reply string, ok bool) {
	text := strings.TrimSpace(msg.Body)
	user := &domain.UserInfo{Name: msg.DisplayName, ID: msg.SenderID}

	if !s.admins.IsAuthorized(msg.DisplayName, msg.SenderID) {
		s.publish(event.UnauthorizedAccess{
			GroupID: msg.ChatID,
			User:    *user,
			Body:    truncate(text, unauthorizedBodyLimit),
			At:      s.now().UTC(),
		})
		return "", false
	}

	cmd := domain.Classify(text)
	switch cmd.Kind {
	case domain.KindQuery:
		return s.handleQuery(msg.ChatID, user)
	case domain.KindClear:
		return s.handleClear(msg.ChatID, user)
	case domain.KindRevoke:
		return s.handleRevoke(msg.ChatID, user)
	case domain.KindHelp:
		return helpText, true
	case domain.KindDelta:
		return s.handleDelta(msg.ChatID, user, cmd)
	case domain.KindExpression:
		return s.handleExpression(msg.ChatID, user, cmd)
	default:
		s.log.Debug("Ignoring non-command message", "group", msg.ChatID)
		return "", false
	}
}

func (s *CommandService) handleQuery(groupID string, user *domain.UserInfo) (string, bool) {
	ledger, err := s.ledger.Get(groupID)
	if err != nil {
		return s.failure(groupID, "query", "❌ 查询失败", err)
	}
	history, err := s.ledger.History(groupID, 5)
	if err != nil {
		return s.failure(groupID, "query", "❌ 查询失败", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💰 当前余额: %s\n\n", calc.FormatNumber(ledger.Capital))
	if len(history) == 0 {
		b.WriteString("📝 暂无操作记录")
	} else {
		b.WriteString("📜 最近操作:\n")
		// Newest first in display.
		for i := len(history) - 1; i >= 0; i-- {
			record := history[i]
			change := calc.FormatNumber(record.Change)
			if record.Change >= 0 {
				change = "+" + change
			}
			fmt.Fprintf(&b, "%d. %s %s\n", len(history)-i, record.Timestamp.Format("01-02 15:04"), record.Operation)
			fmt.Fprintf(&b, "   原值: %s → 新值: %s (%s)\n",
				calc.FormatNumber(record.OldValue), calc.FormatNumber(record.NewValue), change)
		}
	}

	s.publish(event.OperationApplied{
		GroupID: groupID, Action: "QUERY", User: user,
		Before: ledger.Capital, After: ledger.Capital, At: s.now().UTC(),
	})
	return b.String(), true
}

func (s *CommandService) handleClear(groupID string, user *domain.UserInfo) (string, bool) {
	before, err := s.ledger.Get(groupID)
	if err != nil {
		return s.failure(groupID, "clear", "❌ 清账失败", err)
	}
	if err := s.ledger.Clear(groupID); err != nil {
		return s.failure(groupID, "clear", "❌ 清账失败", err)
	}

	s.publish(event.OperationApplied{
		GroupID: groupID, Action: "CLEAR", User: user,
		Before: before.Capital, After: 0, At: s.now().UTC(),
	})
	return "🔄 清账成功\n当前余额: 0\n历史记录已全部清除", true
}

func (s *CommandService) handleRevoke(groupID string, user *domain.UserInfo) (string, bool) {
	history, err := s.ledger.History(groupID, 2)
	if err != nil {
		return s.failure(groupID, "revoke", "❌ 撤回失败", err)
	}
	if len(history) == 0 {
		return "❌ 没有可撤回的操作", true
	}

	last := history[len(history)-1]
	currentValue := last.NewValue
	var previousValue float64
	if len(history) >= 2 {
		previousValue = history[len(history)-2].NewValue
	}

	// Revoking appends a forward entry rather than deleting one, so a
	// revoke can itself be revoked.
	_, err = s.ledger.UpdateCapital(groupID, previousValue, "撤回操作: "+last.Operation, user)
	if err != nil {
		return s.failure(groupID, "revoke", "❌ 撤回失败", err)
	}

	s.publish(event.OperationApplied{
		GroupID: groupID, Action: "REVOKE", User: user,
		Before: currentValue, After: previousValue,
		Expression: last.Operation, At: s.now().UTC(),
	})
	return fmt.Sprintf("↩️ 撤回成功\n撤回操作: %s\n撤回前余额: %s\n撤回后余额: %s",
		last.Operation, calc.FormatNumber(currentValue), calc.FormatNumber(previousValue)), true
}

func (s *CommandService) handleDelta(groupID string, user *domain.UserInfo, cmd domain.Command) (string, bool) {
	operator := string(cmd.Calculation[0])
	operand := strings.TrimSpace(cmd.Calculation[1:])

	ledger, err := s.ledger.Get(groupID)
	if err != nil {
		return s.failure(groupID, "calculation", "❌ 计算失败", err)
	}

	result, err := calc.ApplyDelta(ledger.Capital, operator, operand)
	if err != nil {
		return fmt.Sprintf("❌ 计算错误: %v", err), true
	}
	expression := fmt.Sprintf("(%s)%s(%s)", calc.FormatNumber(ledger.Capital), operator, operand)
	return s.commit(groupID, user, "CALCULATION", ledger.Capital, result, cmd, expression)
}

func (s *CommandService) handleExpression(groupID string, user *domain.UserInfo, cmd domain.Command) (string, bool) {
	ledger, err := s.ledger.Get(groupID)
	if err != nil {
		return s.failure(groupID, "calculation", "❌ 计算失败", err)
	}

	result, err := calc.Apply(ledger.Capital, cmd.Calculation)
	if err != nil {
		return fmt.Sprintf("❌ 计算错误: %v", err), true
	}
	expression := fmt.Sprintf("(%s)%s", calc.FormatNumber(ledger.Capital), cmd.Calculation)
	return s.commit(groupID, user, "MATH_EXPRESSION", ledger.Capital, result, cmd, expression)
}

// commit applies an evaluated result through the single mutation primitive
// and builds the before/after reply.
func (s *CommandService) commit(groupID string, user *domain.UserInfo, action string, before, result float64, cmd domain.Command, expression string) (string, bool) {
	description := fmt.Sprintf("计算: %s = %s", cmd.Calculation, calc.FormatNumber(result))
	if cmd.Comment != "" {
		description += fmt.Sprintf(" (%s)", cmd.Comment)
	}

	if _, err := s.ledger.UpdateCapital(groupID, result, description, user); err != nil {
		return s.failure(groupID, "calculation", "❌ 计算失败", err)
	}

	change := calc.Round4(result - before)
	changeText := calc.FormatNumber(change)
	if change >= 0 {
		changeText = "+" + changeText
	}
	reply := fmt.Sprintf("🔢 计算成功\n当前余额: %s\n原值: %s\n算式: %s = %s\n变化: %s",
		calc.FormatNumber(result), calc.FormatNumber(before), expression, calc.FormatNumber(result), changeText)
	if cmd.Comment != "" {
		reply += "\n备注: " + cmd.Comment
	}

	s.publish(event.OperationApplied{
		GroupID: groupID, Action: action, User: user,
		Before: before, After: result,
		Expression: expression, Comment: cmd.Comment, At: s.now().UTC(),
	})
	return reply, true
}

// failure reports a store error to the user as a generic message. The
// operation is treated as not applied even though in-memory and persisted
// state can diverge on a write failure.
func (s *CommandService) failure(groupID, context, prefix string, err error) (string, bool) {
	s.log.Error("Command handler failed", "group", groupID, "context", context, "err", err)
	s.publish(event.HandlerFailure{GroupID: groupID, Context: context, Err: err.Error(), At: s.now().UTC()})
	return prefix, true
}

// publish never blocks command handling: when the fanout channel is full
// the event is dropped with a debug log.
func (s *CommandService) publish(e event.DomainEvent) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- e:
	default:
		s.log.Debug("Domain event lost, fanout channel full")
	}
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
