package hcl

import (
	"github.com/vk/forgebuild/internal/config"
	"github.com/vk/forgebuild/internal/schema"
)

// translateAction converts the HCL-specific action schema into the agnostic
// model. An empty mandatory_inputs list means every input is mandatory.
func translateAction(s *schema.Action) *config.ActionSpec {
	mandatory := s.MandatoryInputs
	if len(mandatory) == 0 {
		mandatory = s.Inputs
	}
	return &config.ActionSpec{
		Name:             s.Name,
		Owner:            s.Owner,
		Command:          s.Command,
		Inputs:           s.Inputs,
		MandatoryInputs:  mandatory,
		Outputs:          s.Outputs,
		Volatile:         s.Volatile,
		DiscoversInputs:  s.DiscoversInputs,
		NotifyOnCacheHit: s.NotifyOnCacheHit,
		SharedKey:        s.SharedKey,
	}
}

// translateGroup converts the HCL-specific group schema into the agnostic
// model.
func translateGroup(s *schema.Group) *config.GroupSpec {
	return &config.GroupSpec{
		Name:    s.Name,
		Owner:   s.Owner,
		Members: s.Members,
	}
}
