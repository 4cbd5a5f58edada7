package services

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"capital-bot/auth"
	"capital-bot/domain"
	"capital-bot/domain/event"
	"capital-bot/repositories"
)

func newService(t *testing.T, admins ...string) (*CommandService, *repositories.LedgerRepository, chan event.DomainEvent) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ledger := repositories.NewLedgerRepository(filepath.Join(t.TempDir(), "capital.json"), 1000, log)
	events := make(chan event.DomainEvent, 64)
	service := NewCommandService(log, ledger, auth.NewAdminChecker(log, admins), events)
	return service, ledger, events
}

func adminMessage(body string) domain.InboundMessage {
	return domain.InboundMessage{
		ChatID:      "group-1",
		SenderID:    "447012345678",
		DisplayName: "老板",
		Body:        body,
		IsGroup:     true,
	}
}

func TestHandle_UnauthorizedIsSilent(t *testing.T) {
	req := require.New(t)
	service, _, events := newService(t, "447012345678")

	msg := adminMessage("+100")
	msg.SenderID = "447099999999"
	msg.DisplayName = "路人"

	reply, ok := service.Handle(context.Background(), msg)
	req.False(ok)
	req.Empty(reply)

	// One audit event per rejected attempt, with the body excerpt.
	evt := <-events
	rejected, isRejection := evt.(event.UnauthorizedAccess)
	req.True(isRejection)
	req.Equal("+100", rejected.Body)
}

func TestHandle_UnauthorizedBodyIsTruncated(t *testing.T) {
	req := require.New(t)
	service, _, events := newService(t, "447012345678")

	msg := adminMessage(strings.Repeat("长", 80))
	msg.SenderID = "447099999999"

	_, ok := service.Handle(context.Background(), msg)
	req.False(ok)

	rejected := (<-events).(event.UnauthorizedAccess)
	req.Len([]rune(rejected.Body), 50)
}

func TestHandle_NonCommandIsIgnored(t *testing.T) {
	req := require.New(t)
	service, ledger, _ := newService(t, "447012345678")

	reply, ok := service.Handle(context.Background(), adminMessage("100"))
	req.False(ok)
	req.Empty(reply)

	state, err := ledger.Get("group-1")
	req.NoError(err)
	req.Empty(state.History)
}

func TestHandle_DeltaThenExpressionThenRevokeThenClear(t *testing.T) {
	req := require.New(t)
	service, ledger, _ := newService(t, "447012345678")
	ctx := context.Background()

	reply, ok := service.Handle(ctx, adminMessage("+100#初始资金"))
	req.True(ok)
	req.Contains(reply, "当前余额: 100")
	req.Contains(reply, "备注: 初始资金")

	state, err := ledger.Get("group-1")
	req.NoError(err)
	req.Equal(100.0, state.Capital)
	req.Len(state.History, 1)

	reply, ok = service.Handle(ctx, adminMessage("*2"))
	req.True(ok)
	req.Contains(reply, "当前余额: 200")

	state, err = ledger.Get("group-1")
	req.NoError(err)
	req.Equal(200.0, state.Capital)
	req.Len(state.History, 2)

	reply, ok = service.Handle(ctx, adminMessage("撤回"))
	req.True(ok)
	req.Contains(reply, "撤回成功")
	req.Contains(reply, "撤回后余额: 100")

	state, err = ledger.Get("group-1")
	req.NoError(err)
	req.Equal(100.0, state.Capital)
	// The revoke is appended, not removed.
	req.Len(state.History, 3)

	reply, ok = service.Handle(ctx, adminMessage("清账"))
	req.True(ok)
	req.Contains(reply, "清账成功")

	state, err = ledger.Get("group-1")
	req.NoError(err)
	req.Zero(state.Capital)
	req.Empty(state.History)
}

func TestHandle_RevokeSingleRecordRestoresZero(t *testing.T) {
	req := require.New(t)
	service, ledger, _ := newService(t, "447012345678")
	ctx := context.Background()

	_, ok := service.Handle(ctx, adminMessage("+100"))
	req.True(ok)

	reply, ok := service.Handle(ctx, adminMessage("撤回"))
	req.True(ok)
	req.Contains(reply, "撤回后余额: 0")

	state, err := ledger.Get("group-1")
	req.NoError(err)
	req.Zero(state.Capital)
}

func TestHandle_RevokeEmptyHistory(t *testing.T) {
	req := require.New(t)
	service, _, _ := newService(t, "447012345678")

	reply, ok := service.Handle(context.Background(), adminMessage("撤回"))
	req.True(ok)
	req.Equal("❌ 没有可撤回的操作", reply)
}

func TestHandle_InvalidExpressionDoesNotMutate(t *testing.T) {
	req := require.New(t)
	service, ledger, _ := newService(t, "447012345678")
	ctx := context.Background()

	_, ok := service.Handle(ctx, adminMessage("+100"))
	req.True(ok)

	reply, ok := service.Handle(ctx, adminMessage("/0"))
	req.True(ok)
	req.Contains(reply, "计算错误")

	state, err := ledger.Get("group-1")
	req.NoError(err)
	req.Equal(100.0, state.Capital)
	req.Len(state.History, 1)
}

func TestHandle_QueryNeverMutates(t *testing.T) {
	req := require.New(t)
	service, ledger, _ := newService(t, "447012345678")
	ctx := context.Background()

	_, ok := service.Handle(ctx, adminMessage("+100"))
	req.True(ok)

	reply, ok := service.Handle(ctx, adminMessage("查账"))
	req.True(ok)
	req.Contains(reply, "当前余额: 100")
	req.Contains(reply, "最近操作")

	state, err := ledger.Get("group-1")
	req.NoError(err)
	req.Len(state.History, 1)
}

func TestHandle_Help(t *testing.T) {
	req := require.New(t)
	service, _, _ := newService(t, "447012345678")

	reply, ok := service.Handle(context.Background(), adminMessage("/帮助"))
	req.True(ok)
	req.Contains(reply, "可用命令")
}
