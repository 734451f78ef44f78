package domain_test

import (
	"testing"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestInputData_Validate(t *testing.T) {
	tests := []struct {
		name    string
		data    domain.InputData
		value   string
		wantErr bool
	}{
		{"optional empty", domain.InputData{InputType: domain.InputText}, "", false},
		{"required empty", domain.InputData{InputType: domain.InputText, Required: true}, "  ", true},
		{"email ok", domain.InputData{InputType: domain.InputEmail}, "a@b.com", false},
		{"email display name rejected", domain.InputData{InputType: domain.InputEmail}, "Bob <a@b.com>", true},
		{"email garbage", domain.InputData{InputType: domain.InputEmail}, "not-an-email", true},
		{"number ok", domain.InputData{InputType: domain.InputNumber}, "42.5", false},
		{"number bad", domain.InputData{InputType: domain.InputNumber}, "forty", true},
		{"phone ok", domain.InputData{InputType: domain.InputPhone}, "+1 (555) 123-4567", false},
		{"phone short", domain.InputData{InputType: domain.InputPhone}, "12345", true},
		{"phone letters", domain.InputData{InputType: domain.InputPhone}, "555-CALL-NOW", true},
		{"select ok", domain.InputData{InputType: domain.InputSelect, Options: []string{"a", "b"}}, "b", false},
		{"select unknown", domain.InputData{InputType: domain.InputSelect, Options: []string{"a", "b"}}, "c", true},
		{"select without options", domain.InputData{InputType: domain.InputSelect}, "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.Validate("ask", tt.value)
			if tt.wantErr {
				var verr *domain.InputValidationError
				assert.ErrorAs(t, err, &verr)
				assert.Equal(t, "ask", verr.NodeID)
				return
			}
			assert.NoError(t, err)
		})
	}
}
