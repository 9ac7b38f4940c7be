package store

// Chunk is an immutable unit of retrievable text, produced by ingestion.
// The retrieval engine never mutates chunks; Embedding may be nil until
// computed by an external pipeline.
type Chunk struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	DocumentID string    `json:"document_id" gorm:"index"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Embedding  []float64 `json:"embedding,omitempty" gorm:"serializer:json"`
	Terms      []string  `json:"terms,omitempty" gorm:"serializer:json"`
}

// Entity is a named concept extracted from one or more chunks.
type Entity struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Label      string    `json:"label" gorm:"index"`
	Type       string    `json:"type"`
	Embedding  []float64 `json:"embedding,omitempty" gorm:"serializer:json"`
	Confidence float64   `json:"confidence"`
	ChunkIDs   []string  `json:"chunk_ids,omitempty" gorm:"serializer:json"`
}

// Relation is a typed edge between two entities, grounded in a source chunk.
type Relation struct {
	ID         uint    `json:"-" gorm:"primaryKey;autoIncrement"`
	SubjectID  string  `json:"subject_id" gorm:"index"`
	Predicate  string  `json:"predicate"`
	ObjectID   string  `json:"object_id" gorm:"index"`
	Confidence float64 `json:"confidence"`
	ChunkID    string  `json:"chunk_id"`
}

// Common entity type tags. Extraction pipelines may introduce others;
// the engine treats the tag as opaque.
const (
	EntityPerson       = "person"
	EntityOrganization = "organization"
	EntityLocation     = "location"
	EntityConcept      = "concept"
)
