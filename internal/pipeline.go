package internal

import (
	"context"
	"fmt"
	"log/slog"
)

// Task labels, in pipeline order.
const (
	TaskCA        = "CA certificate"
	TaskKey       = "private key"
	TaskCSR       = "certificate signing request"
	TaskCert      = "certificate"
	TaskPublicKey = "public key"
	TaskPKCS12    = "PKCS#12 bundle"
	TaskJKS       = "Java keystore"
	TaskP7B       = "PKCS#7 chain"
)

// Task is one named unit of work run against the Authority.
type Task struct {
	Label string
	Run   func(ctx context.Context, auth *Authority) error
}

// Hooks observe a pipeline run. Either may be nil.
type Hooks struct {
	// OnStart is called before each task runs.
	OnStart func(Task)
	// OnComplete is called exactly once, with nil or the first failure.
	OnComplete func(error)
}

// StepError is a pipeline failure, naming the task that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Plan returns the tasks for the requested outputs. The private key and the
// certificate are always present; the CA certificate, when requested, comes
// first so the certificate can be signed by it.
func Plan(outputs OutputSet) []Task {
	var tasks []Task
	if outputs.Has(OutputCA) {
		tasks = append(tasks, Task{Label: TaskCA, Run: createCA})
	}
	tasks = append(tasks, Task{Label: TaskKey, Run: generateKey})
	if outputs.Has(OutputCSR) {
		tasks = append(tasks, Task{Label: TaskCSR, Run: buildCSR})
	}
	tasks = append(tasks, Task{Label: TaskCert, Run: issueCert})
	if outputs.Has(OutputPubKey) {
		tasks = append(tasks, Task{Label: TaskPublicKey, Run: extractPublicKey})
	}
	if outputs.Has(OutputPKCS12) {
		tasks = append(tasks, Task{Label: TaskPKCS12, Run: bundlePKCS12})
	}
	if outputs.Has(OutputJKS) {
		tasks = append(tasks, Task{Label: TaskJKS, Run: buildJKS})
	}
	if outputs.Has(OutputP7B) {
		tasks = append(tasks, Task{Label: TaskP7B, Run: buildP7B})
	}
	return tasks
}

// Run executes tasks in order against auth, stopping at the first failure.
// The context is checked before each task; a task that has started runs to
// completion. The returned error, also passed to hooks.OnComplete, is a
// *StepError.
func Run(ctx context.Context, auth *Authority, tasks []Task, hooks Hooks) error {
	err := runTasks(ctx, auth, tasks, hooks.OnStart)
	if hooks.OnComplete != nil {
		hooks.OnComplete(err)
	}
	return err
}

func runTasks(ctx context.Context, auth *Authority, tasks []Task, onStart func(Task)) error {
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return &StepError{Step: task.Label, Err: err}
		}
		if onStart != nil {
			onStart(task)
		}
		slog.Debug("running step", "step", task.Label)
		if err := task.Run(ctx, auth); err != nil {
			slog.Debug("step failed", "step", task.Label, "error", err)
			return &StepError{Step: task.Label, Err: err}
		}
	}
	return nil
}
