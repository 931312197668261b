package mockbackend

import (
	"context"
	"fmt"

	"github.com/arcmetric/contactctl/internal/model"
)

var sampleContacts = []model.Contact{
	{Name: "Ada Lovelace", Email: "ada@analytical.io", Title: "Chief Scientist", Company: "Analytical Engines", Phone: "+44 20 7946 0001", LinkedInURL: "https://www.linkedin.com/in/ada-lovelace"},
	{Name: "Grace Hopper", Email: "grace@cobol.dev", Title: "VP Engineering", Company: "Compiler Works", Phone: "+1 202 555 0143"},
	{Name: "Alan Turing", Email: "alan@bletchley.org", Title: "Senior Researcher", Company: "Bletchley Labs", LinkedInURL: "https://www.linkedin.com/in/alan-turing"},
	{Name: "Katherine Johnson", Email: "katherine@orbit.space", Title: "Lead Mathematician", Company: "Orbit Dynamics"},
	{Name: "Linus Torvalds", Email: "linus@kernel.example", Title: "Maintainer", Company: "Kernel Co", Phone: "+1 503 555 0199"},
}

// Seed inserts sample contacts when the store is empty. It reports how many
// contacts were added.
func (s *Server) Seed(ctx context.Context) (int, error) {
	empty, err := s.store.IsEmpty(ctx)
	if err != nil {
		return 0, err
	}
	if !empty {
		return 0, nil
	}

	for i, c := range sampleContacts {
		if _, err := s.store.Create(ctx, c); err != nil {
			return i, fmt.Errorf("seeding contacts: %w", err)
		}
	}
	s.logger.Info("seeded sample contacts", "count", len(sampleContacts))
	return len(sampleContacts), nil
}
