package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"fintrack/internal/aggregate"
	"fintrack/internal/balance"
	"fintrack/internal/core"
	"fintrack/internal/ingest"
	"fintrack/internal/services"
)

func (a *app) cmdImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	source := fs.String("source", "", "institution tag (chase, citi, wells); detected from the header when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no files given")
	}

	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		report, err := a.imports.Import(ctx, services.ImportRequest{
			Source:   *source,
			Filename: filepath.Base(path),
			Data:     data,
		})
		if report != nil && report.Ingest != nil {
			printImport(path, report)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func printImport(path string, r *services.ImportReport) {
	res := r.Ingest
	fmt.Printf("%s (%s) batch %s\n", path, r.Source, res.BatchID)
	fmt.Printf("  accepted %d, duplicates %d, rejected %d, failed %d\n",
		res.Accepted, len(res.Duplicates), len(res.Rejected), len(res.Failed))
	if r.Recompute != nil {
		fmt.Printf("  months recomputed: %s\n", strings.Join(r.Recompute.Months(), ", "))
	}
	for _, w := range r.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}

func (a *app) cmdEdit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	id := fs.Int64("id", 0, "transaction ID")
	date := fs.String("date", "", "new date, YYYY-MM-DD")
	desc := fs.String("desc", "", "new description")
	amount := fs.String("amount", "", "new amount")
	category := fs.String("category", "", "new category")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("-id is required")
	}

	var e ingest.Edit
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "desc":
			e.Description = desc
		case "amount":
			e.Amount = amount
		case "category":
			e.Category = category
		}
	})
	if *date != "" {
		d, err := core.ParseISODate(*date)
		if err != nil {
			return fmt.Errorf("date %q: %w", *date, err)
		}
		e.Date = &d
	}
	if e == (ingest.Edit{}) {
		return errors.New("nothing to change")
	}

	tx, rep, err := a.imports.EditTransaction(ctx, *id, e)
	if err != nil {
		return err
	}
	fmt.Printf("transaction %d: %s %s %s %s\n", tx.ID, tx.Date, tx.Description, core.FormatAmount(tx.Amount), tx.Category)
	printReport(rep)
	return nil
}

func (a *app) cmdRecompute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("recompute", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("give one or more months as YYYY-MM")
	}
	rep, err := a.imports.RecomputeMonths(ctx, fs.Args())
	printReport(rep)
	return err
}

func (a *app) cmdReconcile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rep, err := a.imports.Reconcile(ctx)
	printReport(rep)
	return err
}

func printReport(rep *aggregate.Report) {
	if rep == nil {
		return
	}
	if months := rep.Months(); len(months) > 0 {
		fmt.Printf("recomputed: %s\n", strings.Join(months, ", "))
	}
	for _, w := range rep.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
}

func (a *app) cmdHistorical(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("historical", flag.ContinueOnError)
	force := fs.Bool("force", false, "import even when aggregates exist")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("give exactly one .xlsx file")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := a.imports.ImportHistorical(ctx, f, *force)
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Println("aggregates already exist; use -force to import anyway")
		return nil
	}
	fmt.Printf("imported %d months\n", len(res.Months))
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	return nil
}

func (a *app) cmdShow(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("give a month as YYYY-MM")
	}
	month := args[0]
	if _, _, err := core.ParseMonthKey(month); err != nil {
		return err
	}
	agg, err := a.store.GetAggregate(ctx, month)
	if err != nil {
		return err
	}
	if agg == nil {
		fmt.Printf("no aggregate for %s\n", month)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s\t\n", agg.MonthKey)
	for _, c := range agg.Categories() {
		fmt.Fprintf(w, "%s\t%s\t\n", c, core.FormatAmount(agg.CategoryTotals[c]))
	}
	fmt.Fprintf(w, "Investments\t%s\t\n", core.FormatAmount(agg.InvestmentTotal))
	fmt.Fprintf(w, "Total\t%s\t\n", core.FormatAmount(agg.Total))
	fmt.Fprintf(w, "Total - Investments\t%s\t\n", core.FormatAmount(agg.TotalMinusInvestment))
	return w.Flush()
}

func (a *app) cmdBalance(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("balance needs a subcommand: submit or summary")
	}
	switch args[0] {
	case "submit":
		return a.cmdBalanceSubmit(ctx, args[1:])
	case "summary":
		return a.cmdBalanceSummary(ctx, args[1:])
	default:
		return fmt.Errorf("unknown balance subcommand %q", args[0])
	}
}

// cmdBalanceSubmit stages conflicting writes and asks on stdin before
// confirming them. -yes skips the question. The staged write expires after
// PENDING_TTL like any other.
func (a *app) cmdBalanceSubmit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("balance submit", flag.ContinueOnError)
	account := fs.String("account", "", "account ID")
	date := fs.String("date", "", "snapshot date, YYYY-MM-DD")
	amount := fs.String("amount", "", "balance amount")
	source := fs.String("source", "manual", "where the figure came from")
	notes := fs.String("notes", "", "free text")
	yes := fs.Bool("yes", false, "confirm a staged write")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := core.ParseISODate(*date)
	if err != nil {
		return fmt.Errorf("date %q: %w", *date, err)
	}
	amt, err := core.ParseAmount(*amount)
	if err != nil {
		return fmt.Errorf("amount %q: %w", *amount, err)
	}

	out, err := a.balances.Submit(ctx, balance.Request{
		AccountID: *account,
		Date:      d,
		Amount:    amt,
		Source:    *source,
		Notes:     *notes,
	})
	if out != nil {
		printConflict(out.Conflict)
	}
	if err != nil {
		return err
	}
	if out.Saved != nil {
		fmt.Printf("saved balance %d\n", out.Saved.ID)
		return nil
	}

	if !*yes && !ask("save anyway?") {
		a.balances.Cancel(out.Token)
		fmt.Println("not saved")
		return nil
	}
	out, err = a.balances.Confirm(ctx, out.Token)
	if err != nil {
		return err
	}
	if out.Replaced != 0 {
		fmt.Printf("saved balance %d, replacing %d\n", out.Saved.ID, out.Replaced)
	} else {
		fmt.Printf("saved balance %d\n", out.Saved.ID)
	}
	return nil
}

func ask(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func printConflict(c core.ConflictResult) {
	fmt.Printf("%s (%s): %s\n", c.Classification, c.Recommendation, c.Message)
	if c.Existing != nil {
		fmt.Printf("  existing %d: %s %s, similarity %s%%\n",
			c.Existing.ID, c.Existing.Date, core.FormatAmount(c.Existing.Amount), c.SimilarityPercent().StringFixed(2))
	}
}

func (a *app) cmdBalanceSummary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("balance summary", flag.ContinueOnError)
	account := fs.String("account", "", "account ID")
	month := fs.String("month", "", "month, YYYY-MM")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sum, err := a.balances.MonthSummary(ctx, *account, *month)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s: %d snapshots\n", sum.AccountID, sum.MonthKey, sum.Count)
	if sum.Count == 0 {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, b := range sum.Balances {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", strconv.FormatInt(b.ID, 10), b.Date, core.FormatAmount(b.Amount), b.Source)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("latest %s on %s\n", core.FormatAmount(sum.LatestAmount), sum.LatestDate)
	return nil
}
