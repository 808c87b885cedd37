package appliance

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want Code
	}{
		{"Option 'opt7' was not found", CodeInterfaceNotFound},
		{"interface opt3 not found in list", CodeInterfaceNotFound},
		{"VLAN vlan0.210 is assigned as an interface (opt2)", CodeInterfaceAssigned},
		{"This VLAN cannot be deleted because it is in use", CodeInterfaceAssigned},
		{"tag 210 already exists on vtnet0", CodeDuplicate},
		{"Description should be unique", CodeDuplicate},
		{"endpoint foo not found", CodeNotFound},
		{"something odd happened", CodeUnknown},
		{"", CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyMessage(tt.msg))
		})
	}
}

func TestResourceErrorHelpers(t *testing.T) {
	err := NewResourceError(OpDnsmasqRange, "dnsmasq/settings/addRange", "Option 'opt7' was not found", nil)
	wrapped := fmt.Errorf("create range: %w", err)

	assert.True(t, IsCode(wrapped, CodeInterfaceNotFound))
	assert.False(t, IsCode(wrapped, CodeDuplicate))
	assert.False(t, IsCode(errors.New("plain"), CodeInterfaceNotFound))
	assert.Contains(t, err.Error(), "dnsmasq_range dnsmasq/settings/addRange")
	assert.Contains(t, err.Error(), "was not found")

	empty := &ResourceError{Op: OpRule, Status: 500}
	assert.Equal(t, "rule (status 500): rejected by appliance", empty.Error())
}

func TestConnectionError(t *testing.T) {
	inner := errors.New("connection refused")
	err := fmt.Errorf("ping: %w", &ConnectionError{Host: "fw:443", Err: inner})

	assert.True(t, IsConnection(err))
	assert.ErrorIs(t, err, inner)
	assert.False(t, IsConnection(inner))
	assert.Equal(t, "interface_assigned", CodeInterfaceAssigned.String())
}
