package agent

import (
	"fmt"

	"github.com/faize-ai/runner-agent/internal/coordinator"
)

// Callback payloads
const (
	cbTimePrefix = "time_"
	cbExtend     = "extend"
	cbInfo       = "info"
	cbKill       = "kill"
)

func controlKeyboard() *coordinator.Keyboard {
	return &coordinator.Keyboard{InlineKeyboard: [][]coordinator.Button{{
		{Text: "📊 Info", CallbackData: cbInfo},
		{Text: fmt.Sprintf("➕ Extend %dm", extendMinutes), CallbackData: cbExtend},
		{Text: "💀 KILL SESSION", CallbackData: cbKill},
	}}}
}

// durationKeyboard offers whole hours up to max, plus max itself when it is
// not a whole hour.
func durationKeyboard(max int) *coordinator.Keyboard {
	var row []coordinator.Button
	for m := 60; m <= max; m += 60 {
		row = append(row, durationButton(m))
	}
	if max%60 != 0 {
		row = append(row, durationButton(max))
	}
	return &coordinator.Keyboard{InlineKeyboard: [][]coordinator.Button{row}}
}

func durationButton(m int) coordinator.Button {
	return coordinator.Button{Text: humanMinutes(m), CallbackData: fmt.Sprintf("%s%d", cbTimePrefix, m)}
}
