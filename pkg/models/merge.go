package models

import "strings"

func provided(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != NotAvailable
}

func mergeString(dst *string, src string) {
	if provided(src) || !provided(*dst) && src != "" {
		*dst = src
	}
}

// Merge folds incoming into existing field by field. Provided fields win,
// sourceUrl never changes once set, and aliases accumulate.
func Merge(existing, incoming ProductRecord) ProductRecord {
	out := existing
	out.Reference = NormalizeReference(incoming.Reference)
	if out.Reference == "" {
		out.Reference = NormalizeReference(existing.Reference)
	}

	mergeString(&out.Brand, incoming.Brand)
	mergeString(&out.Collection, incoming.Collection)
	mergeString(&out.Description, incoming.Description)
	mergeString(&out.Details, incoming.Details)
	mergeString(&out.Case, incoming.Case)
	mergeString(&out.Dial, incoming.Dial)
	mergeString(&out.Bracelet, incoming.Bracelet)
	mergeString(&out.ImageURL, incoming.ImageURL)

	// price is replaced as a whole so amount and formatted never diverge
	if incoming.Price.Known() || !existing.Price.Known() && incoming.Price.Formatted != "" {
		out.Price = incoming.Price
	}

	m := &out.Movement
	in := incoming.Movement
	mergeString(&m.Name, in.Name)
	mergeString(&m.Mechanism, in.Mechanism)
	mergeString(&m.TotalDiameter, in.TotalDiameter)
	mergeString(&m.Frequency, in.Frequency)
	mergeString(&m.NumberOfJewels, in.NumberOfJewels)
	mergeString(&m.PowerReserve, in.PowerReserve)
	mergeString(&m.NumberOfParts, in.NumberOfParts)
	mergeString(&m.Thickness, in.Thickness)
	mergeString(&m.Image, in.Image)
	if len(in.Functions) > 0 {
		m.Functions = append([]string(nil), in.Functions...)
	}
	m.Normalize()

	if out.SourceURL == "" {
		out.SourceURL = incoming.SourceURL
	}
	out.Aliases = UnionAliases(out.Reference, existing.Aliases, incoming.Aliases)
	if incoming.LastUpdated.After(out.LastUpdated) {
		out.LastUpdated = incoming.LastUpdated
	}
	return out
}

// UnionAliases merges alias lists, dropping blanks, duplicates and the
// reference itself.
func UnionAliases(reference string, lists ...[]string) []string {
	seen := map[string]bool{NormalizeReference(reference): true}
	out := []string{}
	for _, list := range lists {
		for _, a := range list {
			a = NormalizeReference(a)
			if a == "" || seen[a] {
				continue
			}
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// PartialFields returns the provided top-level fields of r keyed by their
// document names. sourceUrl and aliases are left to the caller because they
// do not follow last-write-wins.
func PartialFields(r ProductRecord) map[string]any {
	fields := map[string]any{
		"reference":   NormalizeReference(r.Reference),
		"lastUpdated": r.LastUpdated,
	}
	set := func(key, val string) {
		if provided(val) {
			fields[key] = val
		}
	}
	set("brand", r.Brand)
	set("collection", r.Collection)
	set("description", r.Description)
	set("details", r.Details)
	set("case", r.Case)
	set("dial", r.Dial)
	set("bracelet", r.Bracelet)
	set("imageUrl", r.ImageURL)
	if r.Price.Known() {
		fields["price"] = r.Price
	}
	mv := r.Movement
	setMv := func(key, val string) {
		if provided(val) {
			fields["movement."+key] = val
		}
	}
	setMv("name", mv.Name)
	setMv("mechanism", mv.Mechanism)
	setMv("totalDiameter", mv.TotalDiameter)
	setMv("frequency", mv.Frequency)
	setMv("numberOfJewels", mv.NumberOfJewels)
	setMv("powerReserve", mv.PowerReserve)
	setMv("numberOfParts", mv.NumberOfParts)
	setMv("thickness", mv.Thickness)
	setMv("image", mv.Image)
	if len(mv.Functions) > 0 {
		fields["movement.functions"] = mv.Functions
	}
	return fields
}
