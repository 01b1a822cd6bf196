package memory

import (
	"encoding/json"
	"fmt"
)

// Snapshot bucket names used by the durable backends.
const (
	BucketFamilyTrees   = "family_trees"
	BucketPersons       = "persons"
	BucketRelationships = "relationships"
)

// Buckets lists the snapshot buckets in persistence order.
func Buckets() []string {
	return []string{BucketFamilyTrees, BucketPersons, BucketRelationships}
}

// EncodeBuckets marshals each snapshot bucket to JSON.
func EncodeBuckets(s Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, 3)
	for _, bucket := range Buckets() {
		var (
			data []byte
			err  error
		)
		switch bucket {
		case BucketFamilyTrees:
			data, err = json.Marshal(s.FamilyTrees)
		case BucketPersons:
			data, err = json.Marshal(s.Persons)
		case BucketRelationships:
			data, err = json.Marshal(s.Relationships)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket unmarshals a persisted bucket into the snapshot. Unknown
// buckets are ignored so older tables can carry retired data.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketFamilyTrees:
		target = &s.FamilyTrees
	case BucketPersons:
		target = &s.Persons
	case BucketRelationships:
		target = &s.Relationships
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
