package institutes

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerc-project/invoicing/pkg/invoices"
)

// domainPattern accepts registrable domains like "bu.edu" or
// "dfci.harvard.edu". Single labels ("edu") are rejected.
var domainPattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)

// InstituteInfo describes one billed institution.
type InstituteInfo struct {
	DisplayName           string   `yaml:"display_name"`
	Domains               []string `yaml:"domains"`
	PartnershipStartDate  string   `yaml:"mghpcc_partnership_start_date,omitempty"`
	IncludeInTotalInvoice bool     `yaml:"include_in_nerc_total_invoice,omitempty"`
	CoursesNonbillable    bool     `yaml:"courses_nonbillable,omitempty"`
}

// List is the validated institution directory. It is immutable after Load;
// the derived views are computed once.
type List struct {
	institutes []InstituteInfo
	domainMap  map[string]string
}

// Load parses and validates a YAML institute list. Duplicate display names,
// duplicate domains, malformed domains and malformed partnership dates are
// configuration errors that abort the run.
func Load(r io.Reader) (*List, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read institute list: %w", err)
	}

	var institutes []InstituteInfo
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&institutes); err != nil {
		return nil, fmt.Errorf("failed to parse institute list: %w", err)
	}

	l := &List{
		institutes: institutes,
		domainMap:  make(map[string]string),
	}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *List) validate() error {
	names := make(map[string]bool)
	for _, inst := range l.institutes {
		if inst.DisplayName == "" {
			return fmt.Errorf("institute with domains %v has no display name", inst.Domains)
		}
		if names[inst.DisplayName] {
			return fmt.Errorf("duplicate institute display name found: %s", inst.DisplayName)
		}
		names[inst.DisplayName] = true

		if inst.PartnershipStartDate != "" {
			if _, err := invoices.ParseMonth(inst.PartnershipStartDate); err != nil {
				return fmt.Errorf("institute %s: invalid partnership start date: %w", inst.DisplayName, err)
			}
		}

		for _, domain := range inst.Domains {
			if !domainPattern.MatchString(domain) {
				return fmt.Errorf("institute %s: invalid domain %q", inst.DisplayName, domain)
			}
			if _, ok := l.domainMap[domain]; ok {
				return fmt.Errorf("duplicate domain: %s", domain)
			}
			l.domainMap[domain] = inst.DisplayName
		}
	}
	return nil
}

// ResolveEmail maps a PI email to an institution display name by
// longest-suffix domain matching: the leftmost label is stripped until the
// remainder matches a directory domain. Sub-units owning a more specific
// subdomain therefore win over their parent institution. Returns "" when no
// suffix matches.
func (l *List) ResolveEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	domain := strings.ToLower(email[at+1:])
	for domain != "" {
		if name, ok := l.domainMap[domain]; ok {
			return name
		}
		dot := strings.Index(domain, ".")
		if dot < 0 {
			return ""
		}
		domain = domain[dot+1:]
	}
	return ""
}

// NonbillableCourseList returns the display names of institutions whose
// course projects are not billed.
func (l *List) NonbillableCourseList() []string {
	var names []string
	for _, inst := range l.institutes {
		if inst.CoursesNonbillable {
			names = append(names, inst.DisplayName)
		}
	}
	return names
}

// IncludedInTotalInvoice returns the display names of institutions included
// in the consortium-wide total invoice.
func (l *List) IncludedInTotalInvoice() []string {
	var names []string
	for _, inst := range l.institutes {
		if inst.IncludeInTotalInvoice {
			names = append(names, inst.DisplayName)
		}
	}
	return names
}

// PartnershipStartDate returns the partnership start month for the named
// institution, or false when the institution is unknown or not a partner.
func (l *List) PartnershipStartDate(displayName string) (invoices.Month, bool) {
	for _, inst := range l.institutes {
		if inst.DisplayName == displayName {
			if inst.PartnershipStartDate == "" {
				return "", false
			}
			return invoices.Month(inst.PartnershipStartDate), true
		}
	}
	return "", false
}
