// Package catalog holds the closed registry of role-default permissions.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Resource is a protected domain noun.
type Resource string

// Closed resource enumeration. Grants and catalog entries outside this set
// are rejected before any write.
const (
	ResourceStudents      Resource = "STUDENTS"
	ResourceTeachers      Resource = "TEACHERS"
	ResourceClasses       Resource = "CLASSES"
	ResourceSections      Resource = "SECTIONS"
	ResourceSubjects      Resource = "SUBJECTS"
	ResourceAcademicTerms Resource = "ACADEMIC_TERMS"
	ResourceFeeCategories Resource = "FEE_CATEGORIES"
	ResourceFeePayments   Resource = "FEE_PAYMENTS"
	ResourceLibrary       Resource = "LIBRARY"
	ResourceAttendance    Resource = "ATTENDANCE"
	ResourceExams         Resource = "EXAMS"
	ResourceReports       Resource = "REPORTS"
	ResourceUsers         Resource = "USERS"
	ResourcePermissions   Resource = "PERMISSIONS"
)

// Action is an operation kind on a resource.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionView   Action = "VIEW"
)

var (
	// ErrInvalidResource indicates a resource outside the closed enumeration.
	ErrInvalidResource = errors.New("catalog: invalid resource kind")
	// ErrInvalidAction indicates an action outside the closed enumeration.
	ErrInvalidAction = errors.New("catalog: invalid action kind")
	// ErrNotFound indicates the requested catalog entry does not exist.
	ErrNotFound = errors.New("catalog: not found")
)

var resources = map[Resource]struct{}{
	ResourceStudents:      {},
	ResourceTeachers:      {},
	ResourceClasses:       {},
	ResourceSections:      {},
	ResourceSubjects:      {},
	ResourceAcademicTerms: {},
	ResourceFeeCategories: {},
	ResourceFeePayments:   {},
	ResourceLibrary:       {},
	ResourceAttendance:    {},
	ResourceExams:         {},
	ResourceReports:       {},
	ResourceUsers:         {},
	ResourcePermissions:   {},
}

var actions = map[Action]struct{}{
	ActionCreate: {},
	ActionRead:   {},
	ActionUpdate: {},
	ActionDelete: {},
	ActionView:   {},
}

// ParseResource validates a raw resource value against the closed enumeration.
func ParseResource(raw string) (Resource, error) {
	r := Resource(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := resources[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidResource, raw)
	}
	return r, nil
}

// ParseAction validates a raw action value against the closed enumeration.
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := actions[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, raw)
	}
	return a, nil
}

// Pair identifies one permission tuple.
type Pair struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// ParsePair validates both halves of a raw (resource, action) pair.
func ParsePair(resource, action string) (Pair, error) {
	r, err := ParseResource(resource)
	if err != nil {
		return Pair{}, err
	}
	a, err := ParseAction(action)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Resource: r, Action: a}, nil
}

// Permission is one catalog entry: a (resource, action) tuple plus the roles
// it is granted to by default. Identity is immutable; AllowedRoles and
// IsActive are not.
type Permission struct {
	Resource     Resource  `json:"resource"`
	Action       Action    `json:"action"`
	AllowedRoles []string  `json:"allowedRoles"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
