package access

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryDirectory is an in-memory directory for demo mode and tests.
type MemoryDirectory struct {
	users   map[string]string // hr email -> company id
	resumes map[string]memoryResume
	mu      sync.RWMutex
}

type memoryResume struct {
	companyID string
	content   json.RawMessage
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:   make(map[string]string),
		resumes: make(map[string]memoryResume),
	}
}

// AddUser registers an HR user under a company.
func (d *MemoryDirectory) AddUser(email, companyID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[email] = companyID
}

// AddResume registers a resume owned by a company.
func (d *MemoryDirectory) AddResume(resumeID, companyID string, content json.RawMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resumes[resumeID] = memoryResume{companyID: companyID, content: content}
}

func (d *MemoryDirectory) CompanyOfUser(ctx context.Context, email string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	companyID, ok := d.users[email]
	if !ok {
		return "", ErrUserNotFound
	}
	return companyID, nil
}

func (d *MemoryDirectory) ResumeOwner(ctx context.Context, resumeID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.resumes[resumeID]
	if !ok {
		return "", ErrResumeNotFound
	}
	return r.companyID, nil
}

func (d *MemoryDirectory) FetchResume(ctx context.Context, resumeID string) (json.RawMessage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.resumes[resumeID]
	if !ok {
		return nil, ErrResumeNotFound
	}
	return r.content, nil
}
