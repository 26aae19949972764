package agent

import "fmt"

// Message keys
const (
	msgStart           = "start"
	msgStarting        = "starting"
	msgActive          = "active_text"
	msgTimeout         = "timeout"
	msgMaxLimit        = "max_limit"
	msgStatusInfo      = "status_info"
	msgNotStarted      = "not_started"
	msgAlreadyStarting = "already_starting"
	msgError           = "error"
	msgExtended        = "extended"
	msgPanel           = "panel"
	msgShutdown        = "shutdown"
)

// catalogue holds operator-facing texts per language. Unknown languages and
// missing keys fall back to English.
var catalogue = map[string]map[string]string{
	"en": {
		msgStart:           "👋 **Runner Ready**\n\nRustDesk session will be prepared on this machine.\nSelect duration to start:",
		msgStarting:        "🚀 **Starting Remote Access...**\nPlease wait (RustDesk + tmate setup)...",
		msgActive:          "🖥️ **SESSION READY**\n\n📍 **Location:** %s (%s)\n⚙️ **Specs:** %s Cores / %sGB RAM\n💻 **OS:** %s\n\nRustDesk and SSH endpoint have been sent via bot backend.",
		msgTimeout:         "🛑 Duration limit reached. Shutting down session.",
		msgMaxLimit:        "⚠️ **Max Limit!** Cannot exceed %s.",
		msgStatusInfo:      "📊 **System Status**\nCPU: %.1f%%\nRAM: %.1f%%\nTime Left: %dm",
		msgNotStarted:      "⏳ Session has not started yet. Choose a duration first.",
		msgAlreadyStarting: "⏳ Session is already starting/running.",
		msgError:           "❌ Error: %s",
		msgExtended:        "✅ +%d Mins",
		msgPanel:           "🎛️ **Control Panel:**",
		msgShutdown:        "💀 Shutdown...",
	},
}

func text(lang, key string, args ...any) string {
	tmpl, ok := catalogue[lang][key]
	if !ok {
		tmpl, ok = catalogue["en"][key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

// humanMinutes renders a minute count the way the duration buttons do.
func humanMinutes(m int) string {
	switch {
	case m == 60:
		return "1 Hour"
	case m%60 == 0:
		return fmt.Sprintf("%d Hours", m/60)
	default:
		return fmt.Sprintf("%d Minutes", m)
	}
}
