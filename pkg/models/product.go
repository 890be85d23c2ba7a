package models

import (
	"strings"
	"time"
)

// NotAvailable marks a field that was searched for but not found.
const NotAvailable = "N/A"

type Price struct {
	Formatted string   `json:"formatted" bson:"formatted"`
	Currency  string   `json:"currency" bson:"currency"`
	Amount    *float64 `json:"amount" bson:"amount"`
}

func UnknownPrice() Price {
	return Price{Formatted: NotAvailable, Currency: NotAvailable}
}

func (p Price) Known() bool {
	return p.Amount != nil
}

type MovementSpec struct {
	Name           string   `json:"name" bson:"name"`
	Mechanism      string   `json:"mechanism" bson:"mechanism"`
	TotalDiameter  string   `json:"totalDiameter" bson:"totalDiameter"`
	Frequency      string   `json:"frequency" bson:"frequency"`
	NumberOfJewels string   `json:"numberOfJewels" bson:"numberOfJewels"`
	PowerReserve   string   `json:"powerReserve" bson:"powerReserve"`
	NumberOfParts  string   `json:"numberOfParts" bson:"numberOfParts"`
	Thickness      string   `json:"thickness" bson:"thickness"`
	Functions      []string `json:"functions" bson:"functions"`
	Image          string   `json:"image" bson:"image"`
}

// NewMovementSpec returns a movement with every field set to NotAvailable.
func NewMovementSpec() MovementSpec {
	return MovementSpec{
		Name:           NotAvailable,
		Mechanism:      NotAvailable,
		TotalDiameter:  NotAvailable,
		Frequency:      NotAvailable,
		NumberOfJewels: NotAvailable,
		PowerReserve:   NotAvailable,
		NumberOfParts:  NotAvailable,
		Thickness:      NotAvailable,
		Functions:      []string{},
		Image:          NotAvailable,
	}
}

// Normalize fills empty movement fields with NotAvailable so consumers can tell
// "not found" apart from "never populated".
func (m *MovementSpec) Normalize() {
	for _, f := range []*string{
		&m.Name, &m.Mechanism, &m.TotalDiameter, &m.Frequency,
		&m.NumberOfJewels, &m.PowerReserve, &m.NumberOfParts, &m.Thickness, &m.Image,
	} {
		if strings.TrimSpace(*f) == "" {
			*f = NotAvailable
		}
	}
	if m.Functions == nil {
		m.Functions = []string{}
	}
}

type ProductRecord struct {
	Reference   string       `json:"reference" bson:"reference"`
	Brand       string       `json:"brand" bson:"brand"`
	Collection  string       `json:"collection" bson:"collection"`
	Description string       `json:"description" bson:"description"`
	Details     string       `json:"details" bson:"details"`
	Case        string       `json:"case" bson:"case"`
	Dial        string       `json:"dial" bson:"dial"`
	Bracelet    string       `json:"bracelet" bson:"bracelet"`
	Price       Price        `json:"price" bson:"price"`
	ImageURL    string       `json:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
	Movement    MovementSpec `json:"movement" bson:"movement"`
	SourceURL   string       `json:"sourceUrl" bson:"sourceUrl"`
	Aliases     []string     `json:"aliases" bson:"aliases"`
	LastUpdated time.Time    `json:"lastUpdated" bson:"lastUpdated"`
}

// NormalizeReference upper-cases a reference and collapses inner whitespace.
func NormalizeReference(ref string) string {
	return strings.ToUpper(strings.Join(strings.Fields(ref), " "))
}

// CrawlQueueEntry is an in-memory work item. Reference is empty when it cannot
// be derived from the URL alone.
type CrawlQueueEntry struct {
	URL       string `json:"url"`
	Reference string `json:"reference,omitempty"`
	Family    string `json:"family,omitempty"`
}
