package processors

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nerc-project/invoicing/pkg/invoices"
)

// Stage is one transformation over the shared record set. Stages run in the
// order the pipeline declares; each documents the stages it depends on via
// Requires, checked before it runs.
type Stage interface {
	Name() string
	Requires() []string
	Process(ctx context.Context, ds *invoices.Dataset) error
}

// Stage names, used both for pipeline composition and for precondition
// declarations.
const (
	StageValidateClusterName = "validate-cluster-name"
	StageColdfrontEnrich     = "coldfront-enrich"
	StagePIAlias             = "pi-alias"
	StageAddInstitution      = "add-institution"
	StageLenovoCharge        = "lenovo-charge"
	StageBillability         = "billability"
	StageNewPICredit         = "new-pi-credit"
	StageBUSubsidy           = "bu-subsidy"
	StagePrepay              = "prepay"
)

// Pipeline executes stages in declared order against a single dataset. Any
// stage error is fatal: the remaining stages do not run and the error
// propagates to the driver.
type Pipeline struct {
	stages []Stage
	log    *logrus.Entry
}

func NewPipeline(log *logrus.Entry, stages ...Stage) *Pipeline {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{stages: stages, log: log}
}

// Run processes the dataset through every stage.
func (p *Pipeline) Run(ctx context.Context, ds *invoices.Dataset) error {
	for _, stage := range p.stages {
		if err := ds.RequireApplied(stage.Name(), stage.Requires()); err != nil {
			return err
		}
		p.log.WithField("stage", stage.Name()).Info("running pipeline stage")
		if err := stage.Process(ctx, ds); err != nil {
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		ds.MarkApplied(stage.Name())
	}
	return nil
}
