package domain

// GeneratedPair is a question/answer pair produced by the generator for one
// corpus item. The generator never sees or returns the item's ID.
type GeneratedPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// EvalRecord is a GeneratedPair stamped with the ID of the item it was
// generated from. It is the unit persisted to the output dataset.
type EvalRecord struct {
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
	SourceID string `json:"source_id" validate:"required"`
}

// Validate checks that every field of the record is populated.
func (r *EvalRecord) Validate() error { return validate.Struct(r) }

// StampPairs maps pairs to records carrying sourceID, preserving pair order.
// Returns an empty, non-nil slice for no pairs so a success with zero pairs
// is distinguishable from a failure.
func StampPairs(sourceID string, pairs []GeneratedPair) []EvalRecord {
	records := make([]EvalRecord, 0, len(pairs))
	for _, p := range pairs {
		records = append(records, EvalRecord{
			Question: p.Question,
			Answer:   p.Answer,
			SourceID: sourceID,
		})
	}
	return records
}
