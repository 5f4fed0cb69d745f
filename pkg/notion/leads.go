package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadmap/internal/model"
)

// Property names of the lead database.
const (
	PropName    = "Name"
	PropAddress = "Address"
	PropPhone   = "Phone"
	PropRating  = "Rating"
	PropReviews = "Reviews"
	PropMaps    = "Google Maps"
	PropLeadKey = "Lead Key"
)

// ExportResult counts what ExportLeads did.
type ExportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// ExportLeads writes one page per lead into the database. A lead whose key
// already has a page updates that page instead of creating a duplicate.
func ExportLeads(ctx context.Context, c Client, dbID string, leads []model.Lead) (*ExportResult, error) {
	existing, err := LeadPages(ctx, c, dbID)
	if err != nil {
		return nil, err
	}

	res := &ExportResult{}
	for _, l := range leads {
		if ctx.Err() != nil {
			return res, eris.Wrap(ctx.Err(), "notion: export leads cancelled")
		}

		props := buildLeadProperties(l)
		if pageID, ok := existing[l.Key]; ok {
			if _, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
				return res, eris.Wrapf(err, "notion: update lead %s", l.Key)
			}
			res.Updated++
			continue
		}

		page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: props,
		})
		if err != nil {
			return res, eris.Wrapf(err, "notion: create lead %s", l.Key)
		}
		existing[l.Key] = string(page.ID)
		res.Created++
	}

	zap.L().Info("notion: leads exported",
		zap.String("database", dbID),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
	)
	return res, nil
}

// LeadSink delivers leads to a Notion database.
type LeadSink struct {
	Client     Client
	DatabaseID string
}

// Name implements export.Sink.
func (s *LeadSink) Name() string { return "notion" }

// Send implements export.Sink.
func (s *LeadSink) Send(ctx context.Context, leads []model.Lead) (int, error) {
	res, err := ExportLeads(ctx, s.Client, s.DatabaseID, leads)
	if res == nil {
		return 0, err
	}
	return res.Created + res.Updated, err
}

// buildLeadProperties converts a lead to page properties. Name is the
// title; the map link is a URL property and is omitted when empty.
func buildLeadProperties(l model.Lead) notionapi.Properties {
	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{textOf(l.Name)},
		},
		PropAddress: richText(l.Address),
		PropPhone:   richText(l.Phone),
		PropRating:  richText(l.Rating),
		PropReviews: richText(l.Reviews),
		PropLeadKey: richText(l.Key),
	}
	if l.MapsURL != "" {
		props[PropMaps] = notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  l.MapsURL,
		}
	}
	return props
}

func richText(v string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{textOf(v)},
	}
}

func textOf(v string) notionapi.RichText {
	return notionapi.RichText{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}}
}
