package repl

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"enrollment-reconciler/internal/adapters/cli"
	"enrollment-reconciler/internal/app"
	"enrollment-reconciler/internal/core"

	"github.com/stretchr/testify/assert"
)

type fakeService struct {
	app.ApplicationService

	inspected  int
	reconciled int
	ran        bool
}

func (f *fakeService) InspectOrder(_ context.Context, req app.OrderRequest) (*app.InspectResult, error) {
	f.inspected++
	return &app.InspectResult{Trace: core.Trace{OrderID: req.OrderID, Tenant: req.TenantKey, Units: 2}}, nil
}

func (f *fakeService) ReconcileOrder(_ context.Context, req app.OrderRequest) (*app.OrderResult, error) {
	f.reconciled++
	return &app.OrderResult{Result: core.Result{OrderID: req.OrderID, Tenant: req.TenantKey, Success: true, State: core.StateCompleted}}, nil
}

func (f *fakeService) RunReconciliation(context.Context) (*app.RunSummary, error) {
	f.ran = true
	return &app.RunSummary{RunID: "run-1"}, nil
}

func session(svc *fakeService, input string) string {
	var out bytes.Buffer
	c := &Console{
		Runner: &cli.Runner{Svc: svc, Out: &out},
		In:     bufio.NewReader(strings.NewReader(input)),
		Out:    &out,
		Mode:   "TEST",
	}
	c.Run(context.Background())
	return out.String()
}

func TestConsole_ReconcileAsksFirst(t *testing.T) {
	svc := &fakeService{}
	out := session(svc, "/reconcile PF 7199\nn\n/exit\n")

	assert.Equal(t, 1, svc.inspected)
	assert.Zero(t, svc.reconciled)
	assert.Contains(t, out, `"units": 2`)
	assert.Contains(t, out, "Cancelled.")
	assert.Contains(t, out, "Goodbye!")
}

func TestConsole_ReconcileConfirmed(t *testing.T) {
	svc := &fakeService{}
	out := session(svc, "rec PF 7199\ny\n")

	assert.Equal(t, 1, svc.reconciled)
	assert.Contains(t, out, "Order 7199 (PF): OK")
}

func TestConsole_RunNeedsConfirmation(t *testing.T) {
	svc := &fakeService{}
	session(svc, "/run\nno\n")
	assert.False(t, svc.ran)

	session(svc, "/run\nyes\n")
	assert.True(t, svc.ran)
}

func TestConsole_ErrorsDoNotEndSession(t *testing.T) {
	out := session(&fakeService{}, "/bogus\n/help\n/q\n")
	assert.Contains(t, out, "Error: unknown command: bogus")
	assert.Contains(t, out, "exit")
	assert.Contains(t, out, "Goodbye!")
}
