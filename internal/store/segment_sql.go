package store

import "fmt"

// placeholderFunc renders the n-th (1-based) bind placeholder for a
// backend: "?" for SQLite, "$n" for Postgres.
type placeholderFunc func(n int) string

func sqlitePlaceholder(int) string      { return "?" }
func postgresPlaceholder(n int) string  { return fmt.Sprintf("$%d", n) }

// segmentDaySQL renders the target-day slice query for one dimension.
// The rendered text is what gets recorded as evidence, so it must stay
// byte-stable for a given DimensionQuery.
func segmentDaySQL(q DimensionQuery, ph placeholderFunc) string {
	where := q.ExtraWhere
	if where == "" {
		where = "1=1"
	}
	return fmt.Sprintf(
		"SELECT %s AS segment, %s AS numerator, %s AS denominator\n"+
			"FROM %s\n"+
			"WHERE %s AND date = %s\n"+
			"GROUP BY %s",
		q.SegmentExpr, q.NumeratorExpr, q.DenominatorExpr,
		q.FromClause, where, ph(1), q.SegmentExpr,
	)
}

// segmentRangeSQL renders the per-day baseline slice query for one
// dimension.
func segmentRangeSQL(q DimensionQuery, ph placeholderFunc) string {
	where := q.ExtraWhere
	if where == "" {
		where = "1=1"
	}
	return fmt.Sprintf(
		"SELECT date, %s AS segment, %s AS numerator, %s AS denominator\n"+
			"FROM %s\n"+
			"WHERE %s AND date BETWEEN %s AND %s\n"+
			"GROUP BY date, %s",
		q.SegmentExpr, q.NumeratorExpr, q.DenominatorExpr,
		q.FromClause, where, ph(1), ph(2), q.SegmentExpr,
	)
}
