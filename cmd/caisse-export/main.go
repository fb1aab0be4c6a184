// Command caisse-export writes the reconciliation of a period as CSV or
// XLSX, optionally pushes it to Google Sheets, or lists the cash entries
// that look recorded one day early (-audit). With -import-revenue it fills
// the SQLite store's revenue records for the period instead.
//
//	caisse-export -year 2024 -month 3 -format xlsx -out mars.xlsx -sort date_desc
//	caisse-export -from 2024-01-01 -to 2024-06-30 -sheets
//	caisse-export -year 2024 -audit
//	caisse-export -year 2024 -import-revenue -import-from api
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"caisse/internal/backend"
	"caisse/internal/cli"
	"caisse/internal/config"
	"caisse/internal/core"
	apphttp "caisse/internal/http"
	"caisse/internal/log"
	"caisse/internal/reconcile"
	"caisse/internal/report"
	"caisse/internal/services"
	"caisse/internal/sheets/google"
)

type options struct {
	year, month int
	from, to    string
	format      string
	out         string
	sort        string
	sheets      bool
	audit       bool

	importRevenue bool
	importFrom    string
}

func main() {
	var opts options
	flag.IntVar(&opts.year, "year", 0, "year of the period (defaults to the current year)")
	flag.IntVar(&opts.month, "month", 0, "month of the period, 1-12; omit with -year for a whole year")
	flag.StringVar(&opts.from, "from", "", "first day of a custom range (YYYY-MM-DD)")
	flag.StringVar(&opts.to, "to", "", "last day of a custom range (YYYY-MM-DD)")
	flag.StringVar(&opts.format, "format", "csv", "output format: csv or xlsx")
	flag.StringVar(&opts.out, "out", "", "output file (default stdout)")
	flag.BoolVar(&opts.sheets, "sheets", false, "write the report to the configured Google spreadsheet")
	flag.StringVar(&opts.sort, "sort", "", "row order: day or date_desc (default revenue order)")
	flag.BoolVar(&opts.audit, "audit", false, "list cash entries recorded one day before their revenue day")
	flag.BoolVar(&opts.importRevenue, "import-revenue", false, "copy the period's revenue records into the SQLite store")
	flag.StringVar(&opts.importFrom, "import-from", "", "revenue source for -import-revenue: api or memory (default api when PERSISTENCE_API_URL is set)")
	flag.Parse()

	// Reports may go to stdout, so logs go to stderr.
	cfg, logger := cli.Bootstrap("caisse-export", os.Stderr)
	logger = logger.WithComponent(log.ComponentExport)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := run(ctx, cfg, logger, opts); err != nil {
		logger.Error("Export failed", log.FieldError, err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger, opts options) error {
	if opts.format != "csv" && opts.format != "xlsx" {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	p, err := apphttp.ParsePeriod(opts.query(), time.Now())
	if err != nil {
		return err
	}
	order, err := reconcile.ParseSortOrder(opts.sort)
	if err != nil {
		return err
	}

	if opts.importRevenue {
		n, err := importRevenue(ctx, cfg, logger, p, opts.importFrom)
		if err != nil {
			return fmt.Errorf("import revenue: %w", err)
		}
		logger.Info("Revenue records imported", log.FieldPeriod, p.Key(), log.FieldRows, n, "db_path", cfg.SQLiteDBPath)
		return nil
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	defer res.Close()

	recon := services.NewReconciliationService(res.Revenue, res.Store, logger)

	if opts.audit {
		candidates, err := recon.AuditDayOffset(ctx, p)
		if err != nil {
			return err
		}
		logger.Info("Day offset audit", log.FieldPeriod, p.Key(), "candidates", len(candidates))
		return writeOutput(opts.out, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(candidates)
		})
	}

	view, err := recon.Load(ctx, p)
	if err != nil {
		return err
	}
	table := report.NewTable(order.Sorted(view.Rows), view.Totals)

	if opts.sheets {
		if !cfg.SheetsEnabled() {
			return errors.New("-sheets needs GOOGLE_SPREADSHEET_ID")
		}
		client, err := google.New(ctx, google.ConfigFrom(cfg), logger)
		if err != nil {
			return err
		}
		rng, err := client.WriteReport(ctx, p, table)
		if err != nil {
			return err
		}
		logger.Info("Report written to Google Sheets", log.FieldPeriod, p.Key(), log.FieldSheetsRange, rng)
		if opts.out == "" {
			return nil
		}
	}

	err = writeOutput(opts.out, func(w io.Writer) error {
		if opts.format == "xlsx" {
			return report.WriteXLSX(w, cfg.GoogleReportSheetName, table)
		}
		return report.WriteCSV(w, table)
	})
	if err != nil {
		return err
	}
	logger.Info("Report exported", log.FieldOperation, log.OpExport, log.FieldPeriod, p.Key(),
		log.FieldRows, len(view.Rows), "format", opts.format,
		log.FieldDifference, core.FormatEuros(view.Totals.Difference))
	return nil
}

// query maps the flags onto the query parameters ParsePeriod reads.
func (o options) query() url.Values {
	q := url.Values{}
	if o.from != "" || o.to != "" {
		q.Set("from", o.from)
		q.Set("to", o.to)
		return q
	}
	if o.year != 0 {
		q.Set("year", strconv.Itoa(o.year))
	}
	if o.month != 0 {
		q.Set("month", strconv.Itoa(o.month))
	}
	return q
}

func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
