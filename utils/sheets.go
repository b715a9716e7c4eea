// utils/sheets.go
package utils

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	promoCodeHeader = "promo_code"
	isUsedHeader    = "is_used"
)

// PromoRow is one data row of the promo sheet. Row is the 1-based sheet row.
type PromoRow struct {
	Code string
	Used bool
	Row  int
}

// SheetsClient reads the eligibility and promo spreadsheets and writes claimed
// status back. Both spreadsheets are read from their first sheet.
type SheetsClient struct {
	svc *sheets.Service
}

func NewSheetsClient(ctx context.Context, opts ...option.ClientOption) (*SheetsClient, error) {
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsClient{svc: svc}, nil
}

func (c *SheetsClient) values(ctx context.Context, sheetID, rng string) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(sheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s of sheet %s: %w", rng, sheetID, err)
	}
	return resp.Values, nil
}

func cell(row []interface{}, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

// ReadEmails returns column A without the header row. Blank cells are skipped.
func (c *SheetsClient) ReadEmails(ctx context.Context, sheetID string) ([]string, error) {
	rows, err := c.values(ctx, sheetID, "A:A")
	if err != nil {
		return nil, err
	}
	var out []string
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if v := cell(row, 0); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// ReadPromos returns the data rows of the promo sheet. Columns are located by
// their header names.
func (c *SheetsClient) ReadPromos(ctx context.Context, sheetID string) ([]PromoRow, error) {
	rows, err := c.values(ctx, sheetID, "A:Z")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	codeCol, usedCol, err := promoColumns(rows[0])
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetID, err)
	}
	var out []PromoRow
	for i, row := range rows[1:] {
		code := cell(row, codeCol)
		if code == "" {
			continue
		}
		out = append(out, PromoRow{
			Code: code,
			Used: strings.EqualFold(cell(row, usedCol), "TRUE"),
			Row:  i + 2,
		})
	}
	return out, nil
}

// MarkUsed sets is_used to TRUE on the given sheet rows.
func (c *SheetsClient) MarkUsed(ctx context.Context, sheetID string, rows []int) error {
	if len(rows) == 0 {
		return nil
	}
	header, err := c.values(ctx, sheetID, "1:1")
	if err != nil {
		return err
	}
	if len(header) == 0 {
		return fmt.Errorf("sheet %s has no header row", sheetID)
	}
	_, usedCol, err := promoColumns(header[0])
	if err != nil {
		return fmt.Errorf("sheet %s: %w", sheetID, err)
	}
	column := string(rune('A' + usedCol))

	data := make([]*sheets.ValueRange, 0, len(rows))
	for _, r := range rows {
		data = append(data, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s%d", column, r),
			Values: [][]interface{}{{"TRUE"}},
		})
	}
	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: data}
	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(sheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("mark %d row(s) used in sheet %s: %w", len(rows), sheetID, err)
	}
	return nil
}

func promoColumns(header []interface{}) (codeCol, usedCol int, err error) {
	codeCol, usedCol = -1, -1
	for i := range header {
		switch strings.ToLower(cell(header, i)) {
		case promoCodeHeader:
			codeCol = i
		case isUsedHeader:
			usedCol = i
		}
	}
	if codeCol < 0 || usedCol < 0 || usedCol >= 26 {
		return 0, 0, fmt.Errorf("header must contain %q and %q in columns A-Z", promoCodeHeader, isUsedHeader)
	}
	return codeCol, usedCol, nil
}
