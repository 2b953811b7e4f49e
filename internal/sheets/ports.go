package sheets

import (
	"context"

	"cofrinho/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionWriter appends one ledger entry as a spreadsheet row.
	TransactionWriter interface {
		AppendTransaction(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}

	// TransactionDeleter removes the row mirroring a ledger entry. Deleting a
	// row that is not present is not an error.
	TransactionDeleter interface {
		DeleteTransaction(ctx context.Context, shortID string) error
	}

	// LedgerMirror keeps a spreadsheet in step with the ledger.
	LedgerMirror interface {
		TransactionWriter
		TransactionDeleter
	}
)

// Header is the first row of the mirror sheet.
var Header = []string{"Código", "Usuário", "Data", "Valor", "Descrição"}
