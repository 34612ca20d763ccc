package volume

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// LoopDevices associates backing files with host loop devices
type LoopDevices interface {
	// Find returns the loop device backed by file, or "" if there is none
	Find(ctx context.Context, backingFile string) (string, error)

	// Attach associates file with the first free loop device
	Attach(ctx context.Context, backingFile string) error
}

// Losetup manages loop devices with the losetup(8) utility
type Losetup struct {
	// Path of the losetup binary, defaults to "losetup" on $PATH
	Path string
}

func (l *Losetup) binary() string {
	if l.Path == "" {
		return "losetup"
	}
	return l.Path
}

// Find returns the first loop device associated with backingFile
func (l *Losetup) Find(ctx context.Context, backingFile string) (string, error) {
	out, err := l.run(ctx, "--noheadings", "--output", "NAME", "--associated", backingFile)
	if err != nil {
		return "", err
	}

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		if device := strings.TrimSpace(scanner.Text()); device != "" {
			return device, nil
		}
	}
	return "", nil
}

// Attach associates backingFile with a free loop device
func (l *Losetup) Attach(ctx context.Context, backingFile string) error {
	_, err := l.run(ctx, "--find", backingFile)
	return err
}

func (l *Losetup) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, l.binary(), args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("losetup %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("losetup %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}
