package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Document field names used in partial updates
const (
	FieldCode      = "code"
	FieldTitle     = "title"
	FieldDirector  = "director"
	FieldDeadline  = "deadline"
	FieldDays      = "days"
	FieldFiles     = "files"
	FieldMembers   = "members"
	FieldOwnerID   = "ownerId"
	FieldVersion   = "version"
	FieldUpdatedAt = "updatedAt"
)

// ProjectCodeLength is the length of the short shareable join code
const ProjectCodeLength = 4

const projectCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Project is the top-level shared production a schedule belongs to.
// The whole tree (days, scenes, files) is stored as one document.
type Project struct {
	ID         string       `bson:"-" json:"id"` // Assigned by the store, empty before the first write
	Code       string       `bson:"code" json:"code"`
	Director   string       `bson:"director" json:"director"`
	Title      string       `bson:"title" json:"title"`
	CoverPhoto string       `bson:"coverPhoto,omitempty" json:"cover_photo,omitempty"`
	Screenplay string       `bson:"screenplay,omitempty" json:"screenplay,omitempty"`
	Deadline   *time.Time   `bson:"deadline,omitempty" json:"deadline,omitempty"`
	Files      []FileRecord `bson:"files" json:"files"`
	Days       []Day        `bson:"days" json:"days"`
	OwnerID    string       `bson:"ownerId" json:"owner_id"`
	Members    []string     `bson:"members" json:"members"`
	Version    int64        `bson:"version" json:"version"` // Incremented by the store on every update
	CreatedAt  time.Time    `bson:"createdAt" json:"created_at"`
	UpdatedAt  time.Time    `bson:"updatedAt" json:"updated_at"`
}

// FileRecord is an attachment stored alongside the project
type FileRecord struct {
	ID          string    `bson:"id" json:"id"`
	Name        string    `bson:"name" json:"name"`
	URL         string    `bson:"url" json:"url"`
	ContentType string    `bson:"contentType,omitempty" json:"content_type,omitempty"`
	UploadedAt  time.Time `bson:"uploadedAt" json:"uploaded_at"`
}

// NewProject builds a project owned by ownerID with a fresh join code.
// The owner is always the first member.
func NewProject(ownerID, title, director string) (*Project, error) {
	code, err := NewProjectCode()
	if err != nil {
		return nil, err
	}
	return &Project{
		Code:     code,
		Title:    title,
		Director: director,
		OwnerID:  ownerID,
		Members:  []string{ownerID},
		Files:    []FileRecord{},
		Days:     []Day{},
	}, nil
}

// NewProjectCode generates a short shareable code with every character drawn uniformly.
// Codes are not unique by construction; collisions are resolved by the join query limit.
func NewProjectCode() (string, error) {
	n := big.NewInt(int64(len(projectCodeAlphabet)))
	buf := make([]byte, ProjectCodeLength)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("failed to generate project code: %w", err)
		}
		buf[i] = projectCodeAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

// HasMember reports whether userID is in the member set
func (p *Project) HasMember(userID string) bool {
	for _, m := range p.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// SceneCount returns the number of scenes across all days
func (p *Project) SceneCount() int {
	n := 0
	for _, d := range p.Days {
		n += len(d.Scenes)
	}
	return n
}

// DayIndex returns the index of the first day on the same calendar day as date, or -1
func (p *Project) DayIndex(cal Calendar, date time.Time) int {
	for i := range p.Days {
		if cal.SameDay(p.Days[i].Date, date) {
			return i
		}
	}
	return -1
}

// FileIndex returns the index of the file record with the given ID, or -1
func (p *Project) FileIndex(fileID string) int {
	for i := range p.Files {
		if p.Files[i].ID == fileID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can't mutate the projection
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	if p.Deadline != nil {
		d := *p.Deadline
		c.Deadline = &d
	}
	c.Files = append([]FileRecord(nil), p.Files...)
	c.Members = append([]string(nil), p.Members...)
	c.Days = CloneDays(p.Days)
	return &c
}
