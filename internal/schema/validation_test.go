package schema

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDeploymentRevision(t *testing.T) {
	tests := []struct {
		name    string
		rev     *DeploymentRevision
		wantErr string
	}{
		{
			name: "valid",
			rev: &DeploymentRevision{
				ResourceSchema: ResourceSchema{Uid: "rev-1", ResourceType: ResourceTypeDeploymentRevision},
				Status:         DeploymentRevisionStatusActive,
			},
		},
		{
			name:    "nil body",
			rev:     nil,
			wantErr: "body",
		},
		{
			name:    "missing uid",
			rev:     &DeploymentRevision{Status: DeploymentRevisionStatusInactive},
			wantErr: "uid",
		},
		{
			name: "unknown status",
			rev: &DeploymentRevision{
				ResourceSchema: ResourceSchema{Uid: "rev-1"},
				Status:         "archived",
			},
			wantErr: "status",
		},
		{
			name: "wrong resource type",
			rev: &DeploymentRevision{
				ResourceSchema: ResourceSchema{Uid: "rev-1", ResourceType: "deployment"},
			},
			wantErr: "resource_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeploymentRevision(tt.rev)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected no error, got: %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected *ValidationError, got: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error to mention %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestValidateDeploymentRevisionList(t *testing.T) {
	valid := &List[DeploymentRevision]{
		Total: 3,
		Items: []DeploymentRevision{
			{ResourceSchema: ResourceSchema{Uid: "rev-1"}},
		},
	}
	if err := ValidateDeploymentRevisionList(valid); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	missingItems := &List[DeploymentRevision]{Total: 0}
	if err := ValidateDeploymentRevisionList(missingItems); err == nil {
		t.Error("Expected error for missing items")
	}

	badTotal := &List[DeploymentRevision]{
		Total: 1,
		Items: []DeploymentRevision{
			{ResourceSchema: ResourceSchema{Uid: "rev-1"}},
			{ResourceSchema: ResourceSchema{Uid: "rev-2"}},
		},
	}
	if err := ValidateDeploymentRevisionList(badTotal); err == nil {
		t.Error("Expected error when total is smaller than item count")
	}

	badItem := &List[DeploymentRevision]{
		Total: 1,
		Items: []DeploymentRevision{{}},
	}
	err := ValidateDeploymentRevisionList(badItem)
	if err == nil || !strings.Contains(err.Error(), "items[0].uid") {
		t.Errorf("Expected error for items[0].uid, got %v", err)
	}
}
