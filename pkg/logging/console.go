// pkg/logging/console.go - colored console output for the command-line tools.

package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorBlue   = "\x1b[34m"
)

// Console is a lightweight colored printer used by the binaries for
// user-facing progress output. The package-level functions remain the
// structured session log.
type Console struct {
	mu     sync.Mutex
	logger *log.Logger
}

// NewConsole creates a console printer. When verbose is false, output goes to
// stderr so it can be separated from piped stdout.
func NewConsole(verbose bool) *Console {
	output := os.Stdout
	if !verbose {
		output = os.Stderr
	}
	return &Console{logger: log.New(output, "", 0)}
}

// SetOutput changes the output destination.
func (c *Console) SetOutput(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.SetOutput(w)
}

func (c *Console) colorPrintf(color, format string, v ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, v...)
	c.logger.Printf("%s[%s] %s%s", color, ts, msg, colorReset)
}

// Printf prints a regular message.
func (c *Console) Printf(format string, v ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, v...)
	c.logger.Printf("[%s] %s", ts, msg)
}

// Success prints a success message in green.
func (c *Console) Success(format string, v ...interface{}) {
	c.colorPrintf(colorGreen, format, v...)
}

// Error prints an error message in red.
func (c *Console) Error(format string, v ...interface{}) {
	c.colorPrintf(colorRed, format, v...)
}

// Warning prints a warning message in yellow.
func (c *Console) Warning(format string, v ...interface{}) {
	c.colorPrintf(colorYellow, format, v...)
}

// Debug prints a debug message in blue.
func (c *Console) Debug(format string, v ...interface{}) {
	c.colorPrintf(colorBlue, format, v...)
}

// Fatal prints an error message in red and exits.
func (c *Console) Fatal(format string, v ...interface{}) {
	c.Error(format, v...)
	CloseLogger()
	os.Exit(1)
}
