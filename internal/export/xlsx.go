// Package export writes persisted campaign leads to XLSX workbooks.
package export

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/store"
)

// pageSize is the number of leads read per store query.
const pageSize = 1000

// LeadLister pages through stored leads.
type LeadLister interface {
	ListLeads(ctx context.Context, filter store.LeadFilter) ([]model.Lead, error)
}

// Leads writes every lead of a campaign to path as one sheet with the same
// columns as the campaign spreadsheet. It returns the number of rows
// written, excluding the header.
func Leads(ctx context.Context, st LeadLister, campaignID, path string) (int, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return 0, eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, model.SheetHeader)

	total := 0
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return total, eris.Wrap(err, "export: cancelled")
		}
		leads, err := st.ListLeads(ctx, store.LeadFilter{CampaignID: campaignID, Limit: pageSize, Offset: offset})
		if err != nil {
			return total, eris.Wrap(err, "export: list leads")
		}
		for i := range leads {
			addRow(sheet, model.NewSheetRow(&leads[i]).Values)
		}
		total += len(leads)
		if len(leads) < pageSize {
			break
		}
	}

	if err := f.Save(path); err != nil {
		return total, eris.Wrapf(err, "export: save %s", path)
	}
	zap.L().Info("export: leads written",
		zap.String("campaign_id", campaignID),
		zap.String("path", path),
		zap.Int("rows", total),
	)
	return total, nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
