// Package postgres implements the engine's domain repository ports against
// Postgres with pgx, hand-rolled rather than sqlc-generated: the teacher's
// repository layer was built on sqlc queries, but the generated db/sqlc
// package those queries compile to is not part of this module's sources,
// so these repositories issue raw SQL through pgxpool directly while
// keeping the teacher's decimal<->pgtype.Numeric conversion pattern.
package postgres

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func decimalToPgNumeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var num pgtype.Numeric
	if err := num.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, err
	}
	return num, nil
}

func pgNumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
