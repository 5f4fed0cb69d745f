package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadmap/internal/model"
)

// maxBatchSize is the Salesforce Collections API limit per request.
const maxBatchSize = 200

// LeadSource marks every Lead record this module creates.
const LeadSource = "leadmap"

// unknownName fills the required Lead fields when a place has no name.
const unknownName = "Unknown"

// ExistingLead is the slice of a Salesforce Lead used for duplicate checks.
type ExistingLead struct {
	ID      string `json:"Id" salesforce:"Id"`
	Company string `json:"Company" salesforce:"Company"`
	Street  string `json:"Street" salesforce:"Street"`
}

// InsertResult counts what InsertLeads did.
type InsertResult struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// FindExistingLeads returns the Lead records previously created by this
// module.
func FindExistingLeads(ctx context.Context, c Client) ([]ExistingLead, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Company, Street FROM Lead WHERE LeadSource = '%s'",
		escapeSoql(LeadSource),
	)
	var out []ExistingLead
	if err := c.Query(ctx, soql, &out); err != nil {
		return nil, eris.Wrap(err, "sf: find existing leads")
	}
	return out, nil
}

// InsertLeads creates one Lead per lead in collections of 200. Leads whose
// company and street already exist from an earlier hand-off are skipped.
// Per-record failures are counted, not returned as an error.
func InsertLeads(ctx context.Context, c Client, leads []model.Lead) (*InsertResult, error) {
	res := &InsertResult{}
	if len(leads) == 0 {
		return res, nil
	}

	existing, err := FindExistingLeads(ctx, c)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[dedupKey(e.Company, e.Street)] = true
	}

	var records []map[string]any
	for _, l := range leads {
		k := dedupKey(l.Name, l.Address)
		if seen[k] {
			res.Skipped++
			continue
		}
		seen[k] = true
		records = append(records, leadRecord(l))
	}

	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))
		results, err := c.InsertCollection(ctx, "Lead", records[start:end])
		if err != nil {
			return res, eris.Wrap(err, fmt.Sprintf("sf: insert leads batch %d-%d", start, end))
		}
		for _, r := range results {
			if r.Success {
				res.Inserted++
				continue
			}
			res.Failed++
			res.Errors = append(res.Errors, r.Errors...)
		}
	}

	zap.L().Info("sf: leads inserted",
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// LeadSink delivers leads to Salesforce as Lead records.
type LeadSink struct {
	Client Client
}

// Name implements export.Sink.
func (s *LeadSink) Name() string { return "salesforce" }

// Send implements export.Sink. Skipped duplicates count as delivered.
func (s *LeadSink) Send(ctx context.Context, leads []model.Lead) (int, error) {
	res, err := InsertLeads(ctx, s.Client, leads)
	if res == nil {
		return 0, err
	}
	if err == nil && res.Failed > 0 {
		err = eris.Errorf("sf: %d leads rejected: %s", res.Failed, strings.Join(res.Errors, "; "))
	}
	return res.Inserted + res.Skipped, err
}

// leadRecord maps a lead onto Lead SObject fields. Rating and the map link
// have no standard field and go into Description.
func leadRecord(l model.Lead) map[string]any {
	name := l.Name
	if name == "" {
		name = unknownName
	}
	rec := map[string]any{
		"Company":    name,
		"LastName":   name,
		"LeadSource": LeadSource,
	}
	if l.Address != "" {
		rec["Street"] = l.Address
	}
	if l.Phone != "" {
		rec["Phone"] = l.Phone
	}
	if d := description(l); d != "" {
		rec["Description"] = d
	}
	return rec
}

func description(l model.Lead) string {
	var lines []string
	switch {
	case l.Rating != "" && l.Reviews != "":
		lines = append(lines, fmt.Sprintf("Rating: %s (%s reviews)", l.Rating, l.Reviews))
	case l.Rating != "":
		lines = append(lines, "Rating: "+l.Rating)
	case l.Reviews != "":
		lines = append(lines, "Reviews: "+l.Reviews)
	}
	if l.MapsURL != "" {
		lines = append(lines, "Google Maps: "+l.MapsURL)
	}
	return strings.Join(lines, "\n")
}

func dedupKey(company, street string) string {
	return strings.ToLower(strings.TrimSpace(company)) + "|" + strings.ToLower(strings.TrimSpace(street))
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
