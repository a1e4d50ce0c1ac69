package processors

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerc-project/invoicing/pkg/invoices"
)

// fakeStage records whether it ran and optionally fails.
type fakeStage struct {
	name     string
	requires []string
	err      error
	ran      bool
}

func (s *fakeStage) Name() string       { return s.name }
func (s *fakeStage) Requires() []string { return s.requires }

func (s *fakeStage) Process(ctx context.Context, ds *invoices.Dataset) error {
	s.ran = true
	return s.err
}

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	first := &fakeStage{name: "first"}
	second := &fakeStage{name: "second", requires: []string{"first"}}

	p := NewPipeline(testLog(), first, second)
	ds := invoices.NewDataset("2024-03", nil)
	require.NoError(t, p.Run(context.Background(), ds))

	assert.True(t, first.ran)
	assert.True(t, second.ran)
	assert.True(t, ds.Applied("first"))
	assert.True(t, ds.Applied("second"))
}

func TestPipelineRejectsMissingPrerequisite(t *testing.T) {
	second := &fakeStage{name: "second", requires: []string{"first"}}

	p := NewPipeline(testLog(), second)
	err := p.Run(context.Background(), invoices.NewDataset("2024-03", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires stage first")
	assert.False(t, second.ran)
}

func TestPipelineStopsOnError(t *testing.T) {
	first := &fakeStage{name: "first", err: assert.AnError}
	second := &fakeStage{name: "second"}

	p := NewPipeline(testLog(), first, second)
	ds := invoices.NewDataset("2024-03", nil)
	err := p.Run(context.Background(), ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage first")
	assert.False(t, second.ran)
	assert.False(t, ds.Applied("first"))
}
