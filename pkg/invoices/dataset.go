package invoices

import "fmt"

// Dataset is the shared record set threaded through the pipeline. The driver
// owns it exclusively and hands it to one stage at a time; stages mutate the
// records in place and mark themselves applied so later stages can assert
// their preconditions.
type Dataset struct {
	Month   Month
	Records []UsageRecord

	applied map[string]bool
}

func NewDataset(month Month, records []UsageRecord) *Dataset {
	return &Dataset{
		Month:   month,
		Records: records,
		applied: make(map[string]bool),
	}
}

// MarkApplied records that the named stage has run against this dataset.
func (d *Dataset) MarkApplied(stage string) {
	if d.applied == nil {
		d.applied = make(map[string]bool)
	}
	d.applied[stage] = true
}

// Applied reports whether the named stage has run.
func (d *Dataset) Applied(stage string) bool {
	return d.applied[stage]
}

// RequireApplied returns an error naming the first missing prerequisite stage.
func (d *Dataset) RequireApplied(stage string, prereqs []string) error {
	for _, p := range prereqs {
		if !d.Applied(p) {
			return fmt.Errorf("stage %s requires stage %s to have run first", stage, p)
		}
	}
	return nil
}
