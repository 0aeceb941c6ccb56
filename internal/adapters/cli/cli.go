package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"enrollment-reconciler/internal/app"
	"enrollment-reconciler/internal/core"
	"enrollment-reconciler/internal/tenant"
)

const dayLayout = "2006-01-02"

// Usage lists the one-shot commands.
const Usage = `Usage: reconciler [command]

  run                                   full reconciliation (default)
  reconcile <tenant> <order> [source]   reconcile one order (source: gateway|bank_transfer)
  inspect <tenant> <order> [source]     trace one order without writing
  transfers [tenant] [from] [to]        bank transfers by value date (YYYY-MM-DD)
  gateway [from] [to]                   settled gateway transactions
  tenants                               configured tenants`

// Runner executes one command against the service and writes to Out.
type Runner struct {
	Svc app.ApplicationService
	Out io.Writer
	Loc *time.Location
	Now func() time.Time
}

// Run executes a one-shot CLI command. args is os.Args[1:]; empty means run.
func (r *Runner) Run(ctx context.Context, args []string) error {
	if r.Loc == nil {
		r.Loc = time.Local
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	cmd := "run"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "run", "r":
		summary, err := r.Svc.RunReconciliation(ctx)
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}
		r.printSummary(summary)
		if summary.Failed > 0 {
			return fmt.Errorf("%d order(s) failed", summary.Failed)
		}
		return nil

	case "reconcile", "rec":
		req, err := orderRequest(args)
		if err != nil {
			return err
		}
		out, err := r.Svc.ReconcileOrder(ctx, req)
		if err != nil {
			return err
		}
		if out.Skipped {
			fmt.Fprintf(r.Out, "Order %d already in ledger, nothing written.\n", req.OrderID)
			return nil
		}
		r.printResult(out.Result)
		if !out.Result.Success {
			return errors.New(out.Result.Error)
		}
		return nil

	case "inspect", "i":
		req, err := orderRequest(args)
		if err != nil {
			return err
		}
		out, err := r.Svc.InspectOrder(ctx, req)
		if err != nil {
			return err
		}
		return r.printJSON(out)

	case "transfers", "bacs":
		var key string
		if len(args) > 0 && !looksLikeDay(args[0]) {
			key, args = args[0], args[1:]
		}
		now := r.Now().In(r.Loc)
		from, to, err := r.window(args, time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, r.Loc), now)
		if err != nil {
			return err
		}
		out, err := r.Svc.ListBankTransfers(ctx, key, from, to)
		if err != nil {
			return err
		}
		r.printTransfers(out)
		return nil

	case "gateway", "gw":
		now := r.Now()
		from, to, err := r.window(args, now.Add(-48*time.Hour), now)
		if err != nil {
			return err
		}
		out, err := r.Svc.ListGatewayTransactions(ctx, from, to)
		if err != nil {
			return err
		}
		r.printGateway(out)
		return nil

	case "tenants", "t":
		r.printTenants(r.Svc.ListTenants(ctx))
		return nil

	case "help", "-h", "--help":
		fmt.Fprintln(r.Out, Usage)
		return nil

	default:
		return fmt.Errorf("unknown command: %s\n%s", cmd, Usage)
	}
}

func orderRequest(args []string) (app.OrderRequest, error) {
	if len(args) < 2 {
		return app.OrderRequest{}, errors.New("usage: <tenant> <order id> [source]")
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return app.OrderRequest{}, fmt.Errorf("invalid order id %q", args[1])
	}
	req := app.OrderRequest{TenantKey: args[0], OrderID: id}
	if len(args) > 2 {
		switch s := tenant.SourceKind(args[2]); s {
		case tenant.SourceGateway, tenant.SourceBankTransfer:
			req.Source = s
		default:
			return app.OrderRequest{}, fmt.Errorf("invalid source %q", args[2])
		}
	}
	return req, nil
}

func looksLikeDay(s string) bool {
	_, err := time.Parse(dayLayout, s)
	return err == nil
}

// window parses optional [from] [to] days. to covers the whole day.
func (r *Runner) window(args []string, defFrom, defTo time.Time) (time.Time, time.Time, error) {
	from, to := defFrom, defTo
	if len(args) > 0 {
		d, err := time.ParseInLocation(dayLayout, args[0], r.Loc)
		if err != nil {
			return from, to, fmt.Errorf("invalid from date %q", args[0])
		}
		from = d
	}
	if len(args) > 1 {
		d, err := time.ParseInLocation(dayLayout, args[1], r.Loc)
		if err != nil {
			return from, to, fmt.Errorf("invalid to date %q", args[1])
		}
		to = d.Add(24*time.Hour - time.Second)
	}
	if to.Before(from) {
		return from, to, errors.New("to date is before from date")
	}
	return from, to, nil
}

func (r *Runner) printJSON(v any) error {
	enc := json.NewEncoder(r.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Runner) printSummary(s *app.RunSummary) {
	fmt.Fprintln(r.Out, strings.Repeat("=", 62))
	fmt.Fprintf(r.Out, "  RUN %s (%s)\n", s.RunID, s.Mode)
	fmt.Fprintln(r.Out, strings.Repeat("=", 62))
	fmt.Fprintf(r.Out, "  Gateway transactions : %d\n", s.GatewayTransactions)
	if s.GatewayError != "" {
		fmt.Fprintf(r.Out, "  Gateway error        : %s\n", s.GatewayError)
	}
	fmt.Fprintf(r.Out, "  Receipts (new)       : %d (%d)\n", s.Receipts, s.NewReceipts)
	fmt.Fprintf(r.Out, "  Reconciled           : %d\n", s.Reconciled)
	fmt.Fprintf(r.Out, "  Failed               : %d\n", s.Failed)
	fmt.Fprintf(r.Out, "  Already queued       : %d\n", s.Skipped)
	for key, msg := range s.TenantErrors {
		fmt.Fprintf(r.Out, "  Tenant %s skipped: %s\n", key, msg)
	}
	for _, res := range s.Results {
		if !res.Success {
			fmt.Fprintf(r.Out, "  ! %s order %d [%s] %s\n", res.Tenant, res.OrderID, res.State, res.Error)
		}
	}
	fmt.Fprintln(r.Out, strings.Repeat("=", 62))
}

func (r *Runner) printResult(res core.Result) {
	status := "OK"
	if !res.Success {
		status = "FAILED"
	}
	fmt.Fprintf(r.Out, "Order %d (%s): %s [%s]\n", res.OrderID, res.Tenant, status, res.State)
	if res.Error != "" {
		fmt.Fprintf(r.Out, "  error: %s\n", res.Error)
	}
	w := tabwriter.NewWriter(r.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  USER\tCOURSE\tUNIT\tCOST\tDATE")
	for _, e := range res.Entries {
		fmt.Fprintf(w, "  %d\t%d\t%d\t%s\t%s\n", e.LearningUserID, e.CourseID, e.UnitIndex+1, e.UnitCost.StringFixed(2), e.EffectiveDate.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}

func (r *Runner) printTransfers(out *app.TransfersResult) {
	w := tabwriter.NewWriter(r.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Bank transfers %s .. %s\n", out.From.Format(dayLayout), out.To.Format(dayLayout))
	fmt.Fprintln(w, "TENANT\tORDER\tSTATUS\tVALUE DATE\tTOTAL\tEMAIL")
	for _, t := range out.Tenants {
		if t.Error != "" {
			fmt.Fprintf(w, "%s\t-\terror: %s\t\t\t\n", t.Tenant, t.Error)
			continue
		}
		for _, bt := range t.Transfers {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", t.Tenant, bt.OrderID, bt.Status, bt.ValueDate, bt.Total.StringFixed(2), bt.Email)
		}
	}
	w.Flush()
}

func (r *Runner) printGateway(out *app.GatewayResult) {
	w := tabwriter.NewWriter(r.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRANSACTION\tDATE\tAMOUNT\tINVOICE\tTENANT\tORDER\tPAYER")
	for _, tx := range out.Transactions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", tx.ID, tx.Date.Format("2006-01-02 15:04"), tx.Amount.StringFixed(2),
			tx.InvoiceID, tx.Tenant, tx.OrderID, tx.PayerName)
	}
	w.Flush()
}

func (r *Runner) printTenants(tenants []tenant.Config) {
	w := tabwriter.NewWriter(r.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSTOREFRONT\tPREFIX\tLEDGER\tSOURCE\tFISCAL CODE")
	for _, t := range tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.Key, t.StorefrontDB, t.TablePrefix, t.LedgerDB, t.Source, t.FiscalCodeAttr())
	}
	w.Flush()
}
