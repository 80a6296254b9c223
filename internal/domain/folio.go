package domain

import "fmt"

var folioPrefixes = map[TicketCategory]string{
	CategorySystems:     "SYS",
	CategoryMaintenance: "MNT",
}

// FormatFolio builds the human-readable reference string for a ticket,
// e.g. SYS-2025-000042. Unknown categories fall back to the TCK prefix.
func FormatFolio(category TicketCategory, year int, seq int64) string {
	prefix, ok := folioPrefixes[category]
	if !ok {
		prefix = "TCK"
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, year, seq)
}

// CounterKey returns the partition key under which folio sequence numbers
// are independently monotonic.
func CounterKey(category TicketCategory, year int) string {
	return fmt.Sprintf("ticket-%s-%d", category, year)
}
