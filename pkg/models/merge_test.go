package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func amount(v float64) *float64 { return &v }

func TestMerge(t *testing.T) {
	day1 := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	existing := ProductRecord{
		Reference:   "15510ST.OO.1320ST.06",
		Brand:       "Audemars Piguet",
		Case:        "Stainless steel case",
		Price:       Price{Formatted: "CHF 45'000", Currency: "CHF", Amount: amount(45000)},
		SourceURL:   "https://example.com/a",
		Aliases:     []string{"15510ST"},
		Movement:    NewMovementSpec(),
		LastUpdated: day1,
	}
	existing.Movement.Name = "4302"

	incoming := ProductRecord{
		Reference:   " 15510st.oo.1320st.06 ",
		Dial:        "Blue dial",
		Price:       UnknownPrice(),
		SourceURL:   "https://example.com/b",
		Aliases:     []string{"15510st", "15510-ST"},
		Movement:    NewMovementSpec(),
		LastUpdated: day2,
	}
	incoming.Movement.PowerReserve = "70 hours"

	got := Merge(existing, incoming)

	assert.Equal(t, "15510ST.OO.1320ST.06", got.Reference)
	assert.Equal(t, "Audemars Piguet", got.Brand)
	assert.Equal(t, "Stainless steel case", got.Case)
	assert.Equal(t, "Blue dial", got.Dial)
	assert.Equal(t, "https://example.com/a", got.SourceURL, "sourceUrl is immutable")
	assert.Equal(t, []string{"15510ST", "15510-ST"}, got.Aliases)
	assert.Equal(t, 45000.0, *got.Price.Amount, "unknown price does not clobber a known one")
	assert.Equal(t, "4302", got.Movement.Name)
	assert.Equal(t, "70 hours", got.Movement.PowerReserve)
	assert.Equal(t, NotAvailable, got.Movement.Thickness)
	assert.Equal(t, day2, got.LastUpdated)
}

func TestMerge_IntoEmpty(t *testing.T) {
	rec := ProductRecord{
		Reference: "5711/1A",
		SourceURL: "https://example.com/5711",
		Price:     UnknownPrice(),
		Movement:  NewMovementSpec(),
	}
	got := Merge(ProductRecord{}, rec)
	assert.Equal(t, "5711/1A", got.Reference)
	assert.Equal(t, "https://example.com/5711", got.SourceURL)
	assert.Equal(t, NotAvailable, got.Price.Currency)
	assert.Nil(t, got.Price.Amount)
	assert.Empty(t, got.Aliases)
}

func TestPartialFields(t *testing.T) {
	rec := ProductRecord{
		Reference: "5711/1a",
		Brand:     "Patek Philippe",
		Case:      "",
		Price:     UnknownPrice(),
		Movement:  NewMovementSpec(),
	}
	rec.Movement.Name = "26-330 S C"

	fields := PartialFields(rec)
	assert.Equal(t, "5711/1A", fields["reference"])
	assert.Equal(t, "Patek Philippe", fields["brand"])
	assert.Equal(t, "26-330 S C", fields["movement.name"])
	assert.NotContains(t, fields, "case")
	assert.NotContains(t, fields, "price")
	assert.NotContains(t, fields, "movement.thickness")
	assert.NotContains(t, fields, "sourceUrl")
}
