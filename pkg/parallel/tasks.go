// pkg/parallel/tasks.go - the work item variants accepted by the runner.

package parallel

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// These abstractions allow us to override when testing
var (
	statPath   = os.Stat
	removePath = os.Remove
	removeTree = os.RemoveAll
)

// RemovalTask removes a single filesystem path. Removal is best-effort: a
// missing path is Skipped, and errors are reported per item.
type RemovalTask struct {
	Path      string
	Recursive bool
}

// Name identifies the task by its path.
func (t *RemovalTask) Name() string {
	return t.Path
}

// Execute removes the path.
func (t *RemovalTask) Execute(_ context.Context) (string, error) {
	if _, err := statPath(t.Path); os.IsNotExist(err) {
		return "", ErrSkipped
	}

	var err error
	if t.Recursive {
		err = removeTree(t.Path)
	} else {
		err = removePath(t.Path)
	}
	if err != nil {
		return "", fmt.Errorf("removing %s: %w", t.Path, err)
	}
	return "", nil
}

// RegistryWrite describes a single registry value write.
type RegistryWrite struct {
	Key  string // full key path, e.g. HKLM\WF_SOFTWARE\Policies\...
	Name string // value name
	Type string // registry value type, e.g. REG_DWORD, REG_SZ
	Data string // value data in reg.exe string form
}

// RegistryWriteTask applies one registry write through the external registry
// tool. Apply may be replaced for testing; nil uses reg.exe.
type RegistryWriteTask struct {
	Write RegistryWrite
	Apply func(ctx context.Context, write RegistryWrite) (string, error)
}

// Name identifies the task by key path and value name.
func (t *RegistryWriteTask) Name() string {
	return t.Write.Key + `\` + t.Write.Name
}

// Execute performs the registry write.
func (t *RegistryWriteTask) Execute(ctx context.Context) (string, error) {
	apply := t.Apply
	if apply == nil {
		apply = regAdd
	}
	return apply(ctx, t.Write)
}

// regAdd invokes `reg add` for a single value. Success is the tool's exit
// status.
func regAdd(ctx context.Context, write RegistryWrite) (string, error) {
	args := []string{"add", write.Key, "/v", write.Name, "/t", write.Type, "/d", write.Data, "/f"}
	cmd := exec.CommandContext(ctx, "reg.exe", args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("reg add %s\\%s: %w", write.Key, write.Name, err)
	}
	return out.String(), nil
}

// CommandTask wraps an arbitrary invocable as a work item.
type CommandTask struct {
	Label string
	Fn    func(ctx context.Context) (string, error)
}

// Name identifies the task by its label.
func (t *CommandTask) Name() string {
	return t.Label
}

// Execute invokes the wrapped function.
func (t *CommandTask) Execute(ctx context.Context) (string, error) {
	return t.Fn(ctx)
}
