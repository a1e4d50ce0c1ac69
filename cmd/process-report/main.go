package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nerc-project/invoicing/pkg/coldfront"
	"github.com/nerc-project/invoicing/pkg/config"
	"github.com/nerc-project/invoicing/pkg/exports"
	"github.com/nerc-project/invoicing/pkg/institutes"
	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
	"github.com/nerc-project/invoicing/pkg/oldpi"
	"github.com/nerc-project/invoicing/pkg/prepay"
	"github.com/nerc-project/invoicing/pkg/processors"
	"github.com/nerc-project/invoicing/pkg/rates"
	"github.com/nerc-project/invoicing/pkg/storage"
)

func main() {
	var (
		invoiceMonthFlag  = flag.String("invoice-month", "", "Invoice month to process (YYYY-MM, required)")
		piFile            = flag.String("pi-file", "", "File listing non-billable PIs, one per line (required)")
		projectsFile      = flag.String("projects-file", "", "CSV of non-billable projects with Project and optional Cluster Name columns (required)")
		timedProjectsFile = flag.String("timed-projects-file", "", "CSV of projects non-billable between Start Date and End Date")
		prepayCredits     = flag.String("prepay-credits", "prepaid_credits.csv", "CSV listing all prepay group credits")
		prepayProjects    = flag.String("prepay-projects", "prepaid_projects.csv", "CSV listing all prepay group projects")
		prepayContacts    = flag.String("prepay-contacts", "prepaid_contacts.csv", "CSV listing all prepay group contact information")
		coldfrontFile     = flag.String("coldfront-data-file", "", "JSON allocation dump in the coldfront-plugin-api format; fetched from the API when unset")
		oldPIFile         = flag.String("old-pi-file", "", "CSV listing previously billed PIs; fetched from the ledger store when unset")
		aliasFile         = flag.String("alias-file", "", "CSV listing PI aliases, canonical PI first on each line; fetched from the ledger store when unset")
		prepayDebitsFile  = flag.String("prepay-debits", "", "CSV listing prepay group debits; fetched from the ledger store when unset")
		creditAmount      = flag.String("new-pi-credit-amount", "", "New PI credit amount; fetched from the rates document when unset")
		subsidyAmount     = flag.String("bu-subsidy-amount", "", "BU subsidy amount; fetched from the rates document when unset")
		outputDir         = flag.String("output-dir", "invoices", "Directory for exported invoice CSVs")
		upload            = flag.Bool("upload-to-s3", false, "Upload processed invoices and updated ledgers to the invoice bucket")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(context.Background(), log, driverArgs{
		invoiceMonth:      *invoiceMonthFlag,
		csvFiles:          flag.Args(),
		piFile:            *piFile,
		projectsFile:      *projectsFile,
		timedProjectsFile: *timedProjectsFile,
		prepayCredits:     *prepayCredits,
		prepayProjects:    *prepayProjects,
		prepayContacts:    *prepayContacts,
		coldfrontFile:     *coldfrontFile,
		oldPIFile:         *oldPIFile,
		aliasFile:         *aliasFile,
		prepayDebitsFile:  *prepayDebitsFile,
		creditAmount:      *creditAmount,
		subsidyAmount:     *subsidyAmount,
		outputDir:         *outputDir,
		upload:            *upload,
	}); err != nil {
		log.WithError(err).Fatal("invoice processing failed")
	}
}

type driverArgs struct {
	invoiceMonth      string
	csvFiles          []string
	piFile            string
	projectsFile      string
	timedProjectsFile string
	prepayCredits     string
	prepayProjects    string
	prepayContacts    string
	coldfrontFile     string
	oldPIFile         string
	aliasFile         string
	prepayDebitsFile  string
	creditAmount      string
	subsidyAmount     string
	outputDir         string
	upload            bool
}

func run(ctx context.Context, log *logrus.Logger, args driverArgs) error {
	month, err := invoices.ParseMonth(args.invoiceMonth)
	if err != nil {
		return err
	}
	log.WithField("invoice_month", month).Info("processing invoice month")

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	directory, err := loadInstitutes(cfg.InstituteListPath)
	if err != nil {
		return err
	}

	ratesClient := rates.NewClient(http.DefaultClient, cfg.RatesURL)
	rateTable, err := ratesClient.Fetch(ctx)
	if err != nil {
		return err
	}

	store, err := buildStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	// Historical ledgers: explicit files win over the ledger store.
	oldPIs, err := loadOldPIs(ctx, args.oldPIFile, store)
	if err != nil {
		return err
	}
	ledger, err := loadPrepayLedger(ctx, args, store)
	if err != nil {
		return err
	}

	records, err := mergeUsageCSVs(args.csvFiles)
	if err != nil {
		return err
	}
	ds := invoices.NewDataset(month, records)

	nonbillablePIs, err := readLines(args.piFile)
	if err != nil {
		return err
	}
	nonbillableProjects, err := loadNonbillableProjects(args.projectsFile)
	if err != nil {
		return err
	}
	if args.timedProjectsFile != "" {
		timed, err := loadTimedProjects(args.timedProjectsFile, month)
		if err != nil {
			return err
		}
		log.WithField("projects", timed).Info("timed projects non-billable for this period")
		for _, p := range timed {
			nonbillableProjects = append(nonbillableProjects, processors.NonbillableProject{Project: p})
		}
	}

	aliases, err := loadAliases(ctx, args.aliasFile, store)
	if err != nil {
		return err
	}

	source, err := buildAllocationSource(ctx, args.coldfrontFile, cfg.Coldfront)
	if err != nil {
		return err
	}

	initialCredit, err := amountOrRate(args.creditAmount, rateTable, "New PI Credit", month)
	if err != nil {
		return err
	}
	subsidy, err := amountOrRate(args.subsidyAmount, rateTable, "BU Subsidy", month)
	if err != nil {
		return err
	}
	limitToPartners, err := rateTable.BoolAt("Limit New PI Credit to MGHPCC Partners", month)
	if err != nil {
		return err
	}
	lenovoCharges, err := processors.LenovoCharges(rateTable, month)
	if err != nil {
		return err
	}

	var projectNames []string
	for _, p := range nonbillableProjects {
		projectNames = append(projectNames, p.Project)
	}

	creditStage := &processors.NewPICredit{
		OldPIs:          oldPIs,
		InitialCredit:   initialCredit,
		LimitToPartners: limitToPartners,
		Directory:       directory,
		Log:             logrus.NewEntry(log),
	}
	prepayStage := &processors.Prepay{Ledger: ledger}

	pipeline := processors.NewPipeline(logrus.NewEntry(log),
		&processors.ValidateClusterName{KnownClusters: processors.DefaultKnownClusters},
		&processors.ColdfrontEnrich{
			Source:              source,
			NonbillableProjects: projectNames,
			NonbillableClusters: invoices.NonbillableClusters,
		},
		&processors.PIAlias{Aliases: aliases},
		&processors.AddInstitution{Directory: directory, Log: logrus.NewEntry(log)},
		&processors.LenovoCharge{Charges: lenovoCharges},
		&processors.Billability{
			NonbillablePIs:      nonbillablePIs,
			NonbillableProjects: nonbillableProjects,
			CourseInstitutions:  directory.NonbillableCourseList(),
			Log:                 logrus.NewEntry(log),
		},
		creditStage,
		&processors.BUSubsidy{Amount: subsidy},
		prepayStage,
	)

	if err := pipeline.Run(ctx, ds); err != nil {
		return err
	}

	// Fold the run's draw-downs into the ledger so the snapshot export and
	// the persisted debits both reflect this month.
	ledger.Debits = append(ledger.Debits, prepayStage.NewDebits...)

	allExports := []exports.Export{
		exports.NewBillable("billable", ds),
		exports.NewNonbillable("nonbillable", ds),
		exports.NewOcpTest("OCP_TEST", ds),
		exports.NewLenovo("Lenovo", ds),
		exports.NewNERCTotal("NERC", ds, directory.IncludedInTotalInvoice()),
		exports.NewBUInternal("BU_Internal", ds, processors.DefaultSubsidizedInstitution),
		exports.NewPrepaySnapshot(ledger, month),
	}
	if err := writeExports(ctx, log, allExports, month, args.outputDir, args.upload, store); err != nil {
		return err
	}
	if err := writePIInvoices(ds, month, filepath.Join(args.outputDir, "pi_invoices")); err != nil {
		return err
	}
	if err := writeGroupInvoices(ds, ledger, month, filepath.Join(args.outputDir, "group_invoices")); err != nil {
		return err
	}

	// Persist the ledger state the run derived.
	if args.upload {
		if err := store.SaveOldPIs(ctx, creditStage.UpdatedOldPIs); err != nil {
			return err
		}
		if err := store.SavePrepayDebits(ctx, ledger.Debits); err != nil {
			return err
		}
	} else {
		if err := writeLocalLedgers(args.outputDir, creditStage.UpdatedOldPIs, ledger.Debits); err != nil {
			return err
		}
	}

	log.Info("invoice processing complete")
	return nil
}

// invoiceStore bundles the ledger and invoice persistence behind one value.
type invoiceStore interface {
	storage.LedgerStore
	storage.InvoiceSink
}

// sqliteWithSink pairs the SQLite ledger store with a filesystem invoice
// sink; SQLite holds ledgers only.
type sqliteWithSink struct {
	*storage.SQLiteStore
	*storage.FilesystemStore
}

func (s sqliteWithSink) FetchOldPIs(ctx context.Context) (*oldpi.Ledger, error) {
	return s.SQLiteStore.FetchOldPIs(ctx)
}

func (s sqliteWithSink) SaveOldPIs(ctx context.Context, l *oldpi.Ledger) error {
	return s.SQLiteStore.SaveOldPIs(ctx, l)
}

func (s sqliteWithSink) FetchPrepayDebits(ctx context.Context) ([]prepay.DebitEntry, error) {
	return s.SQLiteStore.FetchPrepayDebits(ctx)
}

func (s sqliteWithSink) SavePrepayDebits(ctx context.Context, d []prepay.DebitEntry) error {
	return s.SQLiteStore.SavePrepayDebits(ctx, d)
}

func (s sqliteWithSink) FetchAliases(ctx context.Context) (map[string][]string, error) {
	return s.SQLiteStore.FetchAliases(ctx)
}

func buildStore(ctx context.Context, cfg storage.Config) (invoiceStore, error) {
	switch cfg.Backend {
	case "s3":
		return storage.NewS3Store(ctx, cfg)
	case "filesystem":
		return storage.NewFilesystemStore(cfg.Root)
	case "sqlite":
		db, err := storage.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		fs, err := storage.NewFilesystemStore(cfg.Root)
		if err != nil {
			return nil, err
		}
		return sqliteWithSink{SQLiteStore: db, FilesystemStore: fs}, nil
	default:
		return nil, fmt.Errorf("invalid storage backend: %s", cfg.Backend)
	}
}

func loadInstitutes(path string) (*institutes.List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open institute list: %w", err)
	}
	defer f.Close()
	return institutes.Load(f)
}

func loadOldPIs(ctx context.Context, path string, s storage.LedgerStore) (*oldpi.Ledger, error) {
	if path == "" {
		return s.FetchOldPIs(ctx)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open old PI file: %w", err)
	}
	defer f.Close()
	return oldpi.Read(f)
}

func loadPrepayLedger(ctx context.Context, args driverArgs, s storage.LedgerStore) (*prepay.Ledger, error) {
	ledger := &prepay.Ledger{}

	var err error
	if ledger.Credits, err = readPrepayFile(args.prepayCredits, prepay.ReadCredits); err != nil {
		return nil, err
	}
	if ledger.Memberships, err = readPrepayFile(args.prepayProjects, prepay.ReadMemberships); err != nil {
		return nil, err
	}
	if ledger.Contacts, err = readPrepayFile(args.prepayContacts, prepay.ReadContacts); err != nil {
		return nil, err
	}

	if args.prepayDebitsFile != "" {
		ledger.Debits, err = readPrepayFile(args.prepayDebitsFile, prepay.ReadDebits)
	} else {
		ledger.Debits, err = s.FetchPrepayDebits(ctx)
	}
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

func readPrepayFile[T any](path string, decode func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return decode(f)
}

func mergeUsageCSVs(paths []string) ([]invoices.UsageRecord, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no usage invoice CSVs given")
	}
	var merged []invoices.UsageRecord
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open invoice %s: %w", path, err)
		}
		records, err := invoices.ReadRecords(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("invoice %s: %w", path, err)
		}
		merged = append(merged, records...)
	}
	return merged, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// loadNonbillableProjects reads the exclusion table: Project plus an
// optional Cluster Name column, an empty cluster meaning every cluster.
func loadNonbillableProjects(path string) ([]processors.NonbillableProject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open projects file: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("projects file: %w", err)
	}
	projectCol, clusterCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "Project":
			projectCol = i
		case invoices.ColClusterName:
			clusterCol = i
		}
	}
	if projectCol < 0 {
		return nil, fmt.Errorf("projects file is missing required column %q", "Project")
	}

	var result []processors.NonbillableProject
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("projects file: %w", err)
		}
		p := processors.NonbillableProject{Project: row[projectCol]}
		if clusterCol >= 0 && clusterCol < len(row) {
			p.Cluster = row[clusterCol]
		}
		result = append(result, p)
	}
	return result, nil
}

// loadTimedProjects returns projects excluded for the invoice month based on
// their Start Date and End Date columns.
func loadTimedProjects(path string, month invoices.Month) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open timed projects file: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("timed projects file: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range []string{"Project", "Start Date", "End Date"} {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("timed projects file is missing required column %q", name)
		}
	}

	var projects []string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("timed projects file: %w", err)
		}
		start, err := parseMonthOrDate(row[index["Start Date"]])
		if err != nil {
			return nil, fmt.Errorf("timed projects file: %w", err)
		}
		end, err := parseMonthOrDate(row[index["End Date"]])
		if err != nil {
			return nil, fmt.Errorf("timed projects file: %w", err)
		}
		if !month.Before(start) && !month.After(end) {
			projects = append(projects, row[index["Project"]])
		}
	}
	return projects, nil
}

// parseMonthOrDate accepts either YYYY-MM or a full YYYY-MM-DD date, the two
// formats the exclusion sheets have used.
func parseMonthOrDate(s string) (invoices.Month, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return invoices.Month(t.Format("2006-01")), nil
	}
	return invoices.ParseMonth(s)
}

// loadAliases reads the PI alias file, falling back to the ledger store so a
// run without the flag still folds aliased logins into one PI.
func loadAliases(ctx context.Context, path string, s storage.LedgerStore) (map[string][]string, error) {
	if path == "" {
		return s.FetchAliases(ctx)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open alias file: %w", err)
	}
	defer f.Close()
	return processors.ReadAliases(f)
}

func buildAllocationSource(ctx context.Context, path string, cfg config.ColdfrontConfig) (coldfront.Source, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open coldfront data file: %w", err)
		}
		// The file source reads once during the enrichment stage; the
		// handle stays open for the process lifetime.
		return coldfront.NewFileSource(f), nil
	}
	return coldfront.NewAPIClient(ctx, coldfront.APIConfig{
		Endpoint:     cfg.Endpoint,
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	})
}

func amountOrRate(override string, r *rates.Rates, name string, month invoices.Month) (money.Decimal, error) {
	if override != "" {
		return money.NewDecimal(override)
	}
	return r.DecimalAt(name, month)
}

func writeExports(ctx context.Context, log *logrus.Logger, all []exports.Export, month invoices.Month, dir string, upload bool, sink storage.InvoiceSink) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, e := range all {
		var buf bytes.Buffer
		if err := e.WriteCSV(&buf); err != nil {
			return fmt.Errorf("export %s: %w", e.Name(), err)
		}
		filename := exports.Filename(e, month)
		if err := os.WriteFile(filepath.Join(dir, filename), buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", filename, err)
		}
		log.WithField("file", filename).Info("wrote invoice export")
		if upload {
			if err := sink.PutInvoice(ctx, month, filename, buf.Bytes()); err != nil {
				return err
			}
		}
	}
	return nil
}

func writePIInvoices(ds *invoices.Dataset, month invoices.Month, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create PI invoice directory: %w", err)
	}
	for _, inv := range exports.SplitByPI(ds) {
		var buf bytes.Buffer
		if err := inv.WriteCSV(&buf); err != nil {
			return fmt.Errorf("PI invoice for %s: %w", inv.PI, err)
		}
		path := filepath.Join(dir, inv.FileName(month))
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

func writeGroupInvoices(ds *invoices.Dataset, ledger *prepay.Ledger, month invoices.Month, dir string) error {
	invs := exports.SplitByGroup(ds, ledger, month)
	if len(invs) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create group invoice directory: %w", err)
	}
	for _, inv := range invs {
		var buf bytes.Buffer
		if err := inv.WriteCSV(&buf); err != nil {
			return fmt.Errorf("group invoice for %s: %w", inv.Group, err)
		}
		path := filepath.Join(dir, inv.FileName(month))
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

func writeLocalLedgers(dir string, pis *oldpi.Ledger, debits []prepay.DebitEntry) error {
	var buf bytes.Buffer
	if err := oldpi.Write(&buf, pis); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "PI.csv"), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write updated old PI ledger: %w", err)
	}
	buf.Reset()
	if err := prepay.WriteDebits(&buf, debits); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "prepay_debits.csv"), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write updated prepay debits: %w", err)
	}
	return nil
}
