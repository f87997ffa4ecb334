package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapability_IsValid(t *testing.T) {
	for _, c := range AllCapabilities() {
		assert.True(t, c.IsValid(), c.String())
	}
	assert.False(t, Capability("audio").IsValid())
	assert.False(t, Capability("").IsValid())
}

func TestModelDescriptor_ID(t *testing.T) {
	assert.Equal(t, "ollama/nomic-embed-text",
		ModelDescriptor{Name: "nomic-embed-text", Provider: AIProviderOllama}.ID())
	assert.Equal(t, "stub", ModelDescriptor{Name: "stub"}.ID())
}

func TestModelDescriptor_Supports(t *testing.T) {
	d := ModelDescriptor{Capabilities: []Capability{CapabilityChat, CapabilityEmbedding}}
	assert.True(t, d.Supports(CapabilityChat))
	assert.True(t, d.Supports(CapabilityEmbedding))
	assert.False(t, d.Supports(CapabilityImage))
}

func TestModelDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		desc    ModelDescriptor
		wantErr bool
	}{
		{
			name: "valid embedding",
			desc: ModelDescriptor{Name: "e", Capabilities: []Capability{CapabilityEmbedding}, Dimensions: 384},
		},
		{
			name: "valid chat without dimensions",
			desc: ModelDescriptor{Name: "c", Capabilities: []Capability{CapabilityChat}},
		},
		{
			name:    "missing name",
			desc:    ModelDescriptor{Capabilities: []Capability{CapabilityChat}},
			wantErr: true,
		},
		{
			name:    "no capabilities",
			desc:    ModelDescriptor{Name: "x"},
			wantErr: true,
		},
		{
			name:    "unknown capability",
			desc:    ModelDescriptor{Name: "x", Capabilities: []Capability{"audio"}},
			wantErr: true,
		},
		{
			name:    "embedding without dimensions",
			desc:    ModelDescriptor{Name: "e", Capabilities: []Capability{CapabilityEmbedding}},
			wantErr: true,
		},
		{
			name:    "negative batch size",
			desc:    ModelDescriptor{Name: "c", Capabilities: []Capability{CapabilityChat}, MaxBatchSize: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidConfiguration))
				return
			}
			assert.NoError(t, err)
		})
	}
}
