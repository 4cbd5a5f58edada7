package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify_ExactCommands(t *testing.T) {
	req := require.New(t)

	for text, kind := range map[string]CommandKind{
		"查账": KindQuery, "/查账": KindQuery,
		"清账": KindClear, "/清账": KindClear,
		"撤回": KindRevoke, "/撤回": KindRevoke,
		"帮助": KindHelp, "/帮助": KindHelp,
	} {
		req.Equal(kind, Classify(text).Kind, "text: %s", text)
	}
}

func TestClassify_SingleDelta(t *testing.T) {
	req := require.New(t)

	cmd := Classify("+100#deposit")
	req.Equal(KindDelta, cmd.Kind)
	req.Equal("+100", cmd.Calculation)
	req.Equal("deposit", cmd.Comment)

	cmd = Classify("-50.5")
	req.Equal(KindDelta, cmd.Kind)
	req.Equal("-50.5", cmd.Calculation)
	req.Empty(cmd.Comment)

	cmd = Classify("+ 100 #初始资金")
	req.Equal(KindDelta, cmd.Kind)
	req.Equal("初始资金", cmd.Comment)
}

func TestClassify_CompoundExpression(t *testing.T) {
	req := require.New(t)

	cmd := Classify("*2")
	req.Equal(KindExpression, cmd.Kind)
	req.Equal("*2", cmd.Calculation)

	cmd = Classify("+1+2*3")
	req.Equal(KindExpression, cmd.Kind)

	cmd = Classify("*(100+50)/2#结算")
	req.Equal(KindExpression, cmd.Kind)
	req.Equal("*(100+50)/2", cmd.Calculation)
	req.Equal("结算", cmd.Comment)

	cmd = Classify("×2")
	req.Equal(KindExpression, cmd.Kind)
}

func TestClassify_ExactTakesPrecedence(t *testing.T) {
	req := require.New(t)

	req.Equal(KindQuery, Classify(" 查账 ").Kind)
}

func TestClassify_NonCommands(t *testing.T) {
	req := require.New(t)

	// Plain numbers without a sign never mutate the ledger.
	req.Equal(KindNone, Classify("100").Kind)
	req.Equal(KindNone, Classify("hello").Kind)
	req.Equal(KindNone, Classify("查账一下").Kind)
	req.Equal(KindNone, Classify("").Kind)
}
