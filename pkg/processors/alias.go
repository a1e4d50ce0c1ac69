package processors

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/nerc-project/invoicing/pkg/invoices"
)

// ReadAliases decodes the PI alias file: one line per canonical PI, the
// canonical identifier first and the known aliases after, comma separated.
// Lines with no alias are skipped.
func ReadAliases(r io.Reader) (map[string][]string, error) {
	aliases := make(map[string][]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		aliases[parts[0]] = parts[1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read PI aliases: %w", err)
	}
	return aliases, nil
}

// PIAlias rewrites PI identifiers through an alias map so one PI billed
// under several logins is credited and invoiced as a single person. The map
// goes from canonical PI to their known aliases.
type PIAlias struct {
	Aliases map[string][]string
}

func (s *PIAlias) Name() string       { return StagePIAlias }
func (s *PIAlias) Requires() []string { return []string{StageColdfrontEnrich} }

func (s *PIAlias) Process(ctx context.Context, ds *invoices.Dataset) error {
	canonical := make(map[string]string)
	for pi, aliases := range s.Aliases {
		for _, alias := range aliases {
			canonical[alias] = pi
		}
	}
	for i := range ds.Records {
		if pi, ok := canonical[ds.Records[i].PI]; ok {
			ds.Records[i].PI = pi
		}
	}
	return nil
}
