package printer

import (
	"github.com/fatih/color"
)

type ColorPrinter struct {
	Success func(format string, a ...interface{}) string
	Error   func(format string, a ...interface{}) string
	Warning func(format string, a ...interface{}) string
	Info    func(format string, a ...interface{}) string
	Debug   func(format string, a ...interface{}) string
}

// NewColorPrinter builds a printer; with enabled=false every func is a plain Sprintf.
func NewColorPrinter(enabled bool) *ColorPrinter {
	mk := func(attr color.Attribute) func(string, ...interface{}) string {
		c := color.New(attr)
		if !enabled {
			c.DisableColor()
		}
		return c.SprintfFunc()
	}
	return &ColorPrinter{
		Success: mk(color.FgGreen),
		Error:   mk(color.FgRed),
		Warning: mk(color.FgYellow),
		Info:    mk(color.FgBlue),
		Debug:   mk(color.FgCyan),
	}
}

// Lag colors a formatted lag value by how far behind the mirror is.
func (p *ColorPrinter) Lag(hours, warnAt, critAt float64, format string, a ...interface{}) string {
	behind := -hours
	switch {
	case behind >= critAt:
		return p.Error(format, a...)
	case behind >= warnAt:
		return p.Warning(format, a...)
	default:
		return p.Success(format, a...)
	}
}
