package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cofrinho/internal/core"
)

// RowTimestampLayout is how the Data column is written.
const RowTimestampLayout = "02/01/2006 15:04"

// transactionRow lays out one ledger entry in header order:
// short id, user id, timestamp, amount, description.
func transactionRow(tx core.Transaction, loc *time.Location) []any {
	if loc == nil {
		loc = time.UTC
	}
	return []any{
		tx.ShortID,
		strconv.FormatInt(tx.UserID, 10),
		tx.CreatedAt.In(loc).Format(RowTimestampLayout),
		tx.Amount.Decimal().InexactFloat64(),
		tx.Category,
	}
}

// findRow returns the zero-based index of the row whose first column holds
// shortID, or -1. Matching ignores case, surrounding blanks and the leading
// apostrophe Sheets uses to force text.
func findRow(values [][]any, shortID string) int {
	target := strings.ToUpper(strings.TrimSpace(shortID))
	if target == "" {
		return -1
	}
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) == 0 {
			continue
		}
		if strings.ToUpper(strings.TrimPrefix(cols[0], "'")) == target {
			return i
		}
	}
	return -1
}

// sheetRange quotes the sheet title when needed, e.g. 'Meus gastos'!A:E.
func sheetRange(sheet, cells string) string {
	if strings.ContainsAny(sheet, " '!") {
		sheet = "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	}
	return fmt.Sprintf("%s!%s", sheet, cells)
}

// rowRef formats a one-based A1 reference for a mirrored row.
func rowRef(sheet string, index int) string {
	return sheetRange(sheet, fmt.Sprintf("A%d:E%d", index+1, index+1))
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
