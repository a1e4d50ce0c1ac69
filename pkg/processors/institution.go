package processors

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nerc-project/invoicing/pkg/institutes"
	"github.com/nerc-project/invoicing/pkg/invoices"
)

// AddInstitution derives the institution column from the PI email via the
// directory. An email matching no directory domain is a data-quality
// warning; the record keeps an empty institution.
type AddInstitution struct {
	Directory *institutes.List
	Log       *logrus.Entry
}

func (s *AddInstitution) Name() string       { return StageAddInstitution }
func (s *AddInstitution) Requires() []string { return []string{StagePIAlias} }

func (s *AddInstitution) Process(ctx context.Context, ds *invoices.Dataset) error {
	log := s.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	for i := range ds.Records {
		r := &ds.Records[i]
		if r.PI == "" {
			continue
		}
		name := s.Directory.ResolveEmail(r.PI)
		if name == "" {
			log.WithFields(logrus.Fields{
				"pi":      r.PI,
				"project": r.ProjectName,
			}).Warn("PI email matches no known institution")
		}
		r.Institution = name
	}
	return nil
}
