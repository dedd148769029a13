package database

import "database/sql"

// SP converts a NullString to a *string.
func SP(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// IP converts a NullInt64 to a *int.
func IP(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int64)
	return &i
}

// TP converts a NullTime to a *string in the canonical
// "2006-01-02 15:04:05" form used across the schema.
func TP(nt sql.NullTime) *string {
	if !nt.Valid {
		return nil
	}
	s := nt.Time.UTC().Format("2006-01-02 15:04:05")
	return &s
}

// NS converts a *string to a NullString.
func NS(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// NI converts a *int to a NullInt64.
func NI(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
