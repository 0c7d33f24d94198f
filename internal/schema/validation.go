package schema

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// ValidationError is returned when a decoded response does not have the
// shape the client expects
type ValidationError struct {
	Kind   string
	Errors field.ErrorList
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Kind, e.Errors.ToAggregate().Error())
}

var validStatuses = []string{
	string(DeploymentRevisionStatusActive),
	string(DeploymentRevisionStatusInactive),
}

// ValidateDeploymentRevision checks the fields callers rely on
func ValidateDeploymentRevision(r *DeploymentRevision) error {
	if r == nil {
		return &ValidationError{
			Kind:   "DeploymentRevision",
			Errors: field.ErrorList{field.Required(field.NewPath("body"), "empty response body")},
		}
	}
	if errs := validateRevision(r, nil); len(errs) > 0 {
		return &ValidationError{Kind: "DeploymentRevision", Errors: errs}
	}
	return nil
}

// ValidateDeploymentRevisionList checks the list metadata and every item
func ValidateDeploymentRevisionList(l *List[DeploymentRevision]) error {
	if l == nil {
		return &ValidationError{
			Kind:   "DeploymentRevisionList",
			Errors: field.ErrorList{field.Required(field.NewPath("body"), "empty response body")},
		}
	}

	var errs field.ErrorList
	if l.Items == nil {
		errs = append(errs, field.Required(field.NewPath("items"), ""))
	}
	if uint(len(l.Items)) > l.Total {
		errs = append(errs, field.Invalid(field.NewPath("total"), l.Total,
			fmt.Sprintf("smaller than the number of items (%d)", len(l.Items))))
	}
	itemsPath := field.NewPath("items")
	for i := range l.Items {
		errs = append(errs, validateRevision(&l.Items[i], itemsPath.Index(i))...)
	}

	if len(errs) > 0 {
		return &ValidationError{Kind: "DeploymentRevisionList", Errors: errs}
	}
	return nil
}

func validateRevision(r *DeploymentRevision, path *field.Path) field.ErrorList {
	var errs field.ErrorList
	if r.Uid == "" {
		errs = append(errs, field.Required(path.Child("uid"), ""))
	}
	if r.Status != "" {
		switch r.Status {
		case DeploymentRevisionStatusActive, DeploymentRevisionStatusInactive:
		default:
			errs = append(errs, field.NotSupported(path.Child("status"), r.Status, validStatuses))
		}
	}
	if r.ResourceType != "" && r.ResourceType != ResourceTypeDeploymentRevision {
		errs = append(errs, field.Invalid(path.Child("resource_type"), r.ResourceType,
			fmt.Sprintf("expected %q", ResourceTypeDeploymentRevision)))
	}
	return errs
}
