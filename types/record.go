package types

import (
	"time"
)

// RecordCategory classifies a record for scope policies
type RecordCategory string

const (
	CategoryGeneral      RecordCategory = "general"
	CategoryLab          RecordCategory = "lab"
	CategoryDiagnosis    RecordCategory = "diagnosis"
	CategoryPrescription RecordCategory = "prescription"
)

// Valid reports whether c is a known category
func (c RecordCategory) Valid() bool {
	switch c {
	case CategoryGeneral, CategoryLab, CategoryDiagnosis, CategoryPrescription:
		return true
	}
	return false
}

// Record is an encrypted medical record blob owned by a data subject.
// Records are never mutated in place; an update stores a new Record.
type Record struct {
	ID          string         `json:"id" bson:"_id"`
	OwnerID     string         `json:"ownerId" bson:"ownerId"`
	AuthorID    string         `json:"authorId,omitempty" bson:"authorId,omitempty"` // Doctor who created the record, if not the owner
	Category    RecordCategory `json:"category" bson:"category"`
	Ciphertext  []byte         `json:"ciphertext" bson:"ciphertext"`
	Nonce       []byte         `json:"nonce" bson:"nonce"`
	ContentHash string         `json:"contentHash" bson:"contentHash"` // Hex SHA-256 over ciphertext and nonce
	CreatedAt   time.Time      `json:"createdAt" bson:"createdAt"`
}

// Clone returns a deep copy so stored records cannot be modified through returned values
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Ciphertext = append([]byte(nil), r.Ciphertext...)
	c.Nonce = append([]byte(nil), r.Nonce...)
	return &c
}
