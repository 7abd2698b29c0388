package notifications

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"netsentry/internal/config"
)

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// DesktopSink shows events through notify-send or a compatible command.
type DesktopSink struct {
	command string
	appName string
	run     commandRunner
}

func NewDesktopSink(cfg config.DesktopConfig) *DesktopSink {
	return &DesktopSink{
		command: cfg.Command,
		appName: cfg.AppName,
		run:     runCommand,
	}
}

func (d *DesktopSink) Name() string { return "desktop" }

func (d *DesktopSink) Send(ctx context.Context, event Event) error {
	// notify-send urgency levels match the severity names.
	urgency := string(event.Severity)
	if !event.Severity.Valid() {
		urgency = string(SeverityNormal)
	}

	out, err := d.run(ctx, d.command, "-u", urgency, "-a", d.appName, event.Title, event.Body)
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", d.command, err, strings.TrimSpace(string(out)))
	}
	return nil
}
