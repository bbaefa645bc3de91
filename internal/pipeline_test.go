package internal

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func taskLabels(tasks []Task) []string {
	labels := make([]string, len(tasks))
	for i, task := range tasks {
		labels[i] = task.Label
	}
	return labels
}

func TestPlan(t *testing.T) {
	// WHY: The CA must exist before the certificate it signs, and the CSR
	// before the certificate issued from it; containers come last because
	// they read the certificate.
	t.Parallel()

	tests := []struct {
		name    string
		outputs OutputSet
		want    []string
	}{
		{name: "none", outputs: 0, want: []string{TaskKey, TaskCert}},
		{name: "csr", outputs: OutputCSR, want: []string{TaskKey, TaskCSR, TaskCert}},
		{
			name:    "all",
			outputs: OutputCA | OutputCSR | OutputPubKey | OutputPKCS12 | OutputJKS | OutputP7B,
			want:    []string{TaskCA, TaskKey, TaskCSR, TaskCert, TaskPublicKey, TaskPKCS12, TaskJKS, TaskP7B},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := taskLabels(Plan(tt.outputs)); !slices.Equal(got, tt.want) {
				t.Errorf("Plan(%s) = %v, want %v", tt.outputs, got, tt.want)
			}
		})
	}
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	// WHY: A failed step leaves later steps unrun, and the failure names the
	// step so the operator knows which artifact could not be produced.
	t.Parallel()

	boom := errors.New("boom")
	var ran []string
	task := func(label string, err error) Task {
		return Task{Label: label, Run: func(context.Context, *Authority) error {
			ran = append(ran, label)
			return err
		}}
	}
	tasks := []Task{task("one", nil), task("two", boom), task("three", nil)}

	var started []string
	completions := 0
	var completed error
	err := Run(context.Background(), NewAuthority(Config{}), tasks, Hooks{
		OnStart:    func(task Task) { started = append(started, task.Label) },
		OnComplete: func(err error) { completions++; completed = err },
	})

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "two" || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want StepError for two wrapping boom", err)
	}
	if !slices.Equal(ran, []string{"one", "two"}) || !slices.Equal(started, ran) {
		t.Errorf("ran = %v, started = %v", ran, started)
	}
	if completions != 1 || completed != err {
		t.Errorf("OnComplete called %d times with %v", completions, completed)
	}
}

func TestRun_Success(t *testing.T) {
	t.Parallel()

	completions := 0
	err := Run(context.Background(), NewAuthority(Config{}), []Task{
		{Label: "only", Run: func(context.Context, *Authority) error { return nil }},
	}, Hooks{OnComplete: func(err error) {
		completions++
		if err != nil {
			t.Errorf("OnComplete(%v)", err)
		}
	}})
	if err != nil || completions != 1 {
		t.Errorf("err = %v, completions = %d", err, completions)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	// WHY: A canceled run must not start any further step.
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := Run(ctx, NewAuthority(Config{}), []Task{
		{Label: TaskKey, Run: func(context.Context, *Authority) error { ran = true; return nil }},
	}, Hooks{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("task ran after cancellation")
	}
}
