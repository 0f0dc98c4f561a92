package models

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrMalformedProject is returned when a stored document doesn't match the project schema
var ErrMalformedProject = errors.New("malformed project document")

// DecodeResult is the per-document outcome of decoding a snapshot
type DecodeResult struct {
	ID      string
	Project Project
	Err     error
}

// OK reports whether the document decoded cleanly
func (r DecodeResult) OK() bool {
	return r.Err == nil
}

// DecodeProject strictly decodes a raw project document.
// Type mismatches and missing required fields are reported as ErrMalformedProject.
func DecodeProject(id string, raw bson.Raw) (Project, error) {
	if id == "" {
		return Project{}, fmt.Errorf("%w: missing document id", ErrMalformedProject)
	}
	if err := raw.Validate(); err != nil {
		return Project{}, fmt.Errorf("%w: %v", ErrMalformedProject, err)
	}

	var p Project
	if err := bson.Unmarshal(raw, &p); err != nil {
		return Project{}, fmt.Errorf("%w: %v", ErrMalformedProject, err)
	}

	switch {
	case p.Code == "":
		return Project{}, fmt.Errorf("%w: missing %s", ErrMalformedProject, FieldCode)
	case p.OwnerID == "":
		return Project{}, fmt.Errorf("%w: missing %s", ErrMalformedProject, FieldOwnerID)
	}

	p.ID = id
	return p, nil
}
