package utils

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	log1 "github.com/charmbracelet/log"
)

// Logs keeps the most recent records for GET /logs.
var Logs = NewLogBuffer(100)

var (
	Print   = log1.NewWithOptions(os.Stderr, log1.Options{ReportTimestamp: true, TimeFormat: time.DateTime})
	capture = newCapture(Logs)
)

func newCapture(w io.Writer) *log1.Logger {
	l := log1.NewWithOptions(w, log1.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       log1.JSONFormatter,
		Level:           log1.DebugLevel,
	})
	return l
}

func Init(level string) {
	Print = log1.NewWithOptions(os.Stderr, log1.Options{
		//ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "matchmaking",
	})
	if lvl, err := log1.ParseLevel(level); err == nil {
		Print.SetLevel(lvl)
		capture.SetLevel(lvl)
	}

	styles := log1.DefaultStyles()
	styles.Levels[log1.InfoLevel] = lipgloss.NewStyle().
		SetString("INFO").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("#90EE9080")).
		Foreground(lipgloss.Color("#006400FF")).Bold(true)

	styles.Levels[log1.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("#FFD70080")).
		Foreground(lipgloss.Color("#000000FF")).Bold(true)

	styles.Levels[log1.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("#FF0000FF")).
		Foreground(lipgloss.Color("#00FFFF00")).Bold(true)

	styles.Levels[log1.FatalLevel] = lipgloss.NewStyle().
		SetString("FATAL").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("#000000FF")).
		Foreground(lipgloss.Color("#00FFFF00")).Bold(true)
	Print.SetStyles(styles)
}

func Debug(msg string, keyvals ...any) {
	Print.Debug(msg, keyvals...)
	capture.Debug(msg, keyvals...)
}

func Info(msg string, keyvals ...any) {
	Print.Info(msg, keyvals...)
	capture.Info(msg, keyvals...)
}

func Warn(msg string, keyvals ...any) {
	Print.Warn(msg, keyvals...)
	capture.Warn(msg, keyvals...)
}

func Error(msg string, keyvals ...any) {
	Print.Error(msg, keyvals...)
	capture.Error(msg, keyvals...)
}

// Fatal logs and exits.
func Fatal(msg string, keyvals ...any) {
	capture.Error(msg, keyvals...)
	Print.Fatal(msg, keyvals...)
}
